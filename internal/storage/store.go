package storage

import (
	"context"
	"errors"

	"github.com/goodtune/screentime/internal/usage"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Routines() RoutineStore
	Limits() LimitStore
	Usage() UsageStore
	State() StateStore
}

// RoutineStore manages routine records.
type RoutineStore interface {
	Get(ctx context.Context, id string) (*Routine, error)
	List(ctx context.Context) ([]Routine, error)
	ListEnabled(ctx context.Context) ([]Routine, error)
	Upsert(ctx context.Context, routine Routine) error
	Delete(ctx context.Context, id string) error
}

// LimitStore manages standing daily limits and the whitelist of packages
// exempt from limiting.
type LimitStore interface {
	GetLimit(ctx context.Context, pkg string) (int, error)
	ListLimits(ctx context.Context) (map[string]int, error)
	SetLimit(ctx context.Context, pkg string, minutes int) error
	RemoveLimit(ctx context.Context, pkg string) error

	IsWhitelisted(ctx context.Context, pkg string) (bool, error)
	ListWhitelist(ctx context.Context) ([]string, error)
	AddToWhitelist(ctx context.Context, pkg string) error
	RemoveFromWhitelist(ctx context.Context, pkg string) error
}

// UsageStore manages the raw event log and daily usage aggregates.
type UsageStore interface {
	AddEvent(ctx context.Context, event usage.Event) error
	QueryEvents(ctx context.Context, start, end int64) ([]usage.Event, error)
	DeleteEventsBefore(ctx context.Context, cutoff int64) (int, error)

	GetDailyUsage(ctx context.Context, date, pkg string) (*DailyUsage, error)
	ListDailyUsage(ctx context.Context, date string) ([]DailyUsage, error)
	IncrementDailyUsage(ctx context.Context, date, pkg string, ms int64) error
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}

// StateStore holds scheduler bookkeeping: the active-routine marker and the
// date of the last completed daily summary.
type StateStore interface {
	ActiveRoutine(ctx context.Context) (string, error)
	SetActiveRoutine(ctx context.Context, id string) error
	ClearActiveRoutine(ctx context.Context) error

	LastSummaryDate(ctx context.Context) (string, error)
	SetLastSummaryDate(ctx context.Context, date string) error
}
