package storage

import (
	"time"

	"github.com/goodtune/screentime/internal/schedule"
)

// AppLimit caps a single package's daily foreground time while its owning
// routine is active. Zero minutes blocks the package outright.
type AppLimit struct {
	Package      string `json:"package"`
	LimitMinutes int    `json:"limit_minutes"`
}

// Routine is a named, schedulable bundle of per-app limits. Routines are
// owned by the store; consumers only read snapshots.
type Routine struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Enabled   bool              `json:"enabled"`
	Schedule  schedule.Schedule `json:"schedule"`
	Limits    []AppLimit        `json:"limits"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DedupeLimits collapses duplicate packages in the limit list, last write
// wins, preserving first-seen order.
func DedupeLimits(limits []AppLimit) []AppLimit {
	index := make(map[string]int, len(limits))
	deduped := make([]AppLimit, 0, len(limits))
	for _, limit := range limits {
		if i, ok := index[limit.Package]; ok {
			deduped[i] = limit
			continue
		}
		index[limit.Package] = len(deduped)
		deduped = append(deduped, limit)
	}
	return deduped
}

// DailyUsage aggregates foreground time per day and package. Date is a
// "2006-01-02" local calendar day.
type DailyUsage struct {
	Date    string `json:"date"`
	Package string `json:"package"`
	TotalMs int64  `json:"total_ms"`
}
