package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"astroguide/internal/domain"
)

var titleCaser = cases.Title(language.English)

// formatStatusLabel turns READY into Ready for table cells.
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "-"
	}
	return titleCaser.String(strings.ToLower(strings.ReplaceAll(status, "_", " ")))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func buildJobDetailRows(job *domain.GenerationJob) [][]string {
	return [][]string{
		{"ID", job.ID},
		{"Kind", string(job.Kind)},
		{"Status", formatStatusLabel(string(job.Status))},
		{"Owner", job.OwnerID},
		{"Date", orDash(job.DateKey)},
		{"Locale", orDash(job.Locale)},
		{"Result", orDash(job.ResultRef)},
		{"Error", orDash(job.ErrorMessage)},
		{"Created", formatTime(job.CreatedAt)},
		{"Updated", formatTime(job.UpdatedAt)},
	}
}

func buildJobListRows(items []domain.GenerationJob) [][]string {
	rows := make([][]string, 0, len(items))
	for _, job := range items {
		rows = append(rows, []string{
			job.ID,
			string(job.Kind),
			formatStatusLabel(string(job.Status)),
			job.OwnerID,
			orDash(job.DateKey),
			formatTime(job.UpdatedAt),
		})
	}
	return rows
}

// buildJobStatsRows lists kinds in catalog order, skipping kinds with no jobs.
func buildJobStatsRows(stats domain.JobStats) [][]string {
	var rows [][]string
	for _, kind := range domain.JobKinds {
		counts, ok := stats[kind]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(kind),
			fmt.Sprintf("%d", counts[domain.JobStatusPending]),
			fmt.Sprintf("%d", counts[domain.JobStatusRunning]),
			fmt.Sprintf("%d", counts[domain.JobStatusReady]),
			fmt.Sprintf("%d", counts[domain.JobStatusFailed]),
		})
	}
	return rows
}

func buildGuidanceRows(g *domain.Guidance) [][]string {
	generated := "-"
	if g.GeneratedAt != nil {
		generated = formatTime(*g.GeneratedAt)
	}
	return [][]string{
		{"ID", g.ID},
		{"Kind", string(g.Kind)},
		{"Status", formatStatusLabel(string(g.Status))},
		{"Owner", g.OwnerID},
		{"Date", g.DateKey},
		{"Locale", orDash(g.Locale)},
		{"Title", orDash(g.Title)},
		{"Provider", orDash(g.Provider)},
		{"Generated", generated},
	}
}
