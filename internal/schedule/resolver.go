package schedule

import "time"

// Edge selects which boundary of a recurring window a trigger fires on.
type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

// ActiveStart returns the instant at which the currently active occurrence of
// the schedule began, and whether the schedule is active at now.
//
// A window that spans midnight (end before start) is handled by checking two
// candidate occurrences: one anchored on today's date and one on yesterday's.
// Occurrences are half-open intervals [start, end). Manual schedules and
// schedules missing either time are never active.
func ActiveStart(s Schedule, now time.Time) (time.Time, bool) {
	if s.Type == TypeManual {
		return time.Time{}, false
	}
	if s.Start == nil || s.End == nil {
		return time.Time{}, false
	}

	candidates := [2]time.Time{
		s.Start.On(now),
		s.Start.On(now.AddDate(0, 0, -1)),
	}

	for _, start := range candidates {
		end := s.End.On(start)
		if s.End.Before(*s.Start) {
			end = end.AddDate(0, 0, 1)
		}

		if now.Before(start) || !now.Before(end) {
			continue
		}

		if s.Type == TypeWeekly && !s.Days.Has(start.Weekday()) {
			continue
		}

		return start, true
	}

	return time.Time{}, false
}

// NextTrigger returns the next instant strictly after now at which the given
// edge of the schedule fires, and whether such an instant exists.
//
// For weekly schedules whose window spans midnight, the end edge fires on the
// day after each configured start day, so the trigger days are shifted
// forward by one.
func NextTrigger(s Schedule, now time.Time, edge Edge) (time.Time, bool) {
	if s.Type == TypeManual {
		return time.Time{}, false
	}

	tod := s.Start
	if edge == EdgeEnd {
		tod = s.End
	}
	if tod == nil {
		return time.Time{}, false
	}

	switch s.Type {
	case TypeDaily:
		next := tod.On(now)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, true

	case TypeWeekly:
		days := s.Days
		if edge == EdgeEnd && s.Start != nil && s.End != nil && s.End.Before(*s.Start) {
			days = days.Shift(1)
		}
		if days.Empty() {
			return time.Time{}, false
		}

		candidate := tod.On(now)
		for i := 0; i < 7; i++ {
			if days.Has(candidate.Weekday()) && candidate.After(now) {
				return candidate, true
			}
			candidate = candidate.AddDate(0, 0, 1)
		}
		// Non-empty day sets always match within 7 days; keep a defined
		// result for the degenerate case anyway.
		return candidate, true
	}

	return time.Time{}, false
}

// MaxDuration returns the longest a single occurrence of the schedule can
// run. Schedules missing either time are unconstrained and report a full day.
func MaxDuration(s Schedule) time.Duration {
	if s.Start == nil || s.End == nil {
		return 24 * time.Hour
	}

	startMinutes := s.Start.Minutes()
	endMinutes := s.End.Minutes()

	var durationMinutes int
	if endMinutes > startMinutes {
		durationMinutes = endMinutes - startMinutes
	} else {
		durationMinutes = (24*60 - startMinutes) + endMinutes
	}

	return time.Duration(durationMinutes) * time.Minute
}
