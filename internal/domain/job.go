package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindDailyGuidance   JobKind = "DAILY_GUIDANCE"
	JobKindNatalChartShort JobKind = "NATAL_CHART_SHORT"
	JobKindNatalChartPro   JobKind = "NATAL_CHART_PRO"
	JobKindKarmicAstrology JobKind = "KARMIC_ASTROLOGY"
	JobKindOneTimeReport   JobKind = "ONE_TIME_REPORT"
)

// JobKinds lists every known kind in a stable order.
var JobKinds = []JobKind{
	JobKindDailyGuidance,
	JobKindNatalChartShort,
	JobKindNatalChartPro,
	JobKindKarmicAstrology,
	JobKindOneTimeReport,
}

// ParseJobKind normalizes raw input (case and separators) into a known kind.
func ParseJobKind(raw string) (JobKind, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, k := range JobKinds {
		if string(k) == normalized {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJobKind, raw)
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusReady   JobStatus = "READY"
	JobStatusFailed  JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// allowedFrom maps a target status to the statuses it may be entered from.
var allowedFrom = map[JobStatus][]JobStatus{
	JobStatusRunning: {JobStatusPending},
	JobStatusReady:   {JobStatusRunning},
	JobStatusFailed:  {JobStatusPending, JobStatusRunning},
}

// AllowedPredecessors returns the statuses a job must be in to move to target.
// PENDING is never a valid target.
func AllowedPredecessors(target JobStatus) []JobStatus {
	return allowedFrom[target]
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to JobStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// GenerationJob tracks a request to produce a resource asynchronously.
type GenerationJob struct {
	ID           string
	Kind         JobKind
	Status       JobStatus
	OwnerID      string
	DateKey      string
	Locale       string
	ResultRef    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobUpdate carries the fields a status transition may set.
type JobUpdate struct {
	Status       JobStatus
	ResultRef    string
	ErrorMessage string
}

// Validate enforces that resultRef and errorMessage accompany the matching terminal status.
func (u JobUpdate) Validate() error {
	switch u.Status {
	case JobStatusRunning:
		if u.ResultRef != "" || u.ErrorMessage != "" {
			return fmt.Errorf("%w: running update must not carry result or error", ErrInvalidTransition)
		}
	case JobStatusReady:
		if strings.TrimSpace(u.ResultRef) == "" {
			return fmt.Errorf("%w: ready requires a result reference", ErrInvalidTransition)
		}
		if u.ErrorMessage != "" {
			return fmt.Errorf("%w: ready must not carry an error message", ErrInvalidTransition)
		}
	case JobStatusFailed:
		if strings.TrimSpace(u.ErrorMessage) == "" {
			return fmt.Errorf("%w: failed requires an error message", ErrInvalidTransition)
		}
		if u.ResultRef != "" {
			return fmt.Errorf("%w: failed must not carry a result reference", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, u.Status)
	}
	return nil
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status  JobStatus
	OwnerID string
	Limit   int
}

// JobStats counts jobs grouped by kind and status.
type JobStats map[JobKind]map[JobStatus]int
