package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateKeyLayout is the canonical format of a resource date key.
const DateKeyLayout = "2006-01-02"

// GuidanceStatus enumerates the states of a generated document.
type GuidanceStatus string

const (
	GuidanceStatusPending GuidanceStatus = "PENDING"
	GuidanceStatusReady   GuidanceStatus = "READY"
)

// Guidance is a generated astrology document identified by (owner, kind, date).
type Guidance struct {
	ID          string
	OwnerID     string
	Kind        JobKind
	DateKey     string
	Locale      string
	Status      GuidanceStatus
	Title       string
	Content     json.RawMessage
	Provider    string
	GeneratedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsReady reports whether the document has been fully generated.
func (g Guidance) IsReady() bool {
	return g.Status == GuidanceStatusReady && len(g.Content) > 0
}

// NaturalKey uniquely identifies one logical guidance document.
type NaturalKey struct {
	OwnerID string
	Kind    JobKind
	DateKey string
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.OwnerID, k.Kind, k.DateKey)
}

// ParseDateKey validates a YYYY-MM-DD key. An empty value resolves to the UTC date of now.
func ParseDateKey(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC().Format(DateKeyLayout), nil
	}
	t, err := time.Parse(DateKeyLayout, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDateKey, raw)
	}
	return t.Format(DateKeyLayout), nil
}
