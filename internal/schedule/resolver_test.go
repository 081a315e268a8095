package schedule

import (
	"testing"
	"time"
)

// 2024-01-01 is a Monday.
func date(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.Local)
}

func tod(hour, minute int) *TimeOfDay {
	return &TimeOfDay{Hour: hour, Minute: minute}
}

func TestActiveStartWeekly(t *testing.T) {
	sched := Schedule{
		Type:  TypeWeekly,
		Start: tod(9, 0),
		End:   tod(17, 0),
		Days:  Days(time.Monday),
	}

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantOK    bool
	}{
		{"monday mid-window", date(1, 10, 0), date(1, 9, 0), true},
		{"monday at start", date(1, 9, 0), date(1, 9, 0), true},
		{"monday at end", date(1, 17, 0), time.Time{}, false},
		{"monday before start", date(1, 8, 59), time.Time{}, false},
		{"tuesday mid-window time", date(2, 10, 0), time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, ok := ActiveStart(sched, tt.now)
			if ok != tt.wantOK {
				t.Fatalf("ActiveStart() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !start.Equal(tt.wantStart) {
				t.Errorf("ActiveStart() = %v, want %v", start, tt.wantStart)
			}
		})
	}
}

func TestActiveStartSpansMidnight(t *testing.T) {
	sched := Schedule{
		Type:  TypeDaily,
		Start: tod(22, 0),
		End:   tod(6, 0),
	}

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantOK    bool
	}{
		{"late evening", date(1, 23, 0), date(1, 22, 0), true},
		{"after midnight", date(2, 1, 0), date(1, 22, 0), true},
		{"just before end", date(2, 5, 59), date(1, 22, 0), true},
		{"at end", date(2, 6, 0), time.Time{}, false},
		{"midday", date(2, 12, 0), time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, ok := ActiveStart(sched, tt.now)
			if ok != tt.wantOK {
				t.Fatalf("ActiveStart() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !start.Equal(tt.wantStart) {
				t.Errorf("ActiveStart() = %v, want %v", start, tt.wantStart)
			}
		})
	}
}

func TestActiveStartWeeklySpansMidnight(t *testing.T) {
	// Monday 22:00 - Tuesday 06:00; only Monday is a start day.
	sched := Schedule{
		Type:  TypeWeekly,
		Start: tod(22, 0),
		End:   tod(6, 0),
		Days:  Days(time.Monday),
	}

	// Tuesday 01:00 falls inside the occurrence that started Monday 22:00.
	start, ok := ActiveStart(sched, date(2, 1, 0))
	if !ok {
		t.Fatal("expected schedule active Tuesday 01:00")
	}
	if want := date(1, 22, 0); !start.Equal(want) {
		t.Errorf("ActiveStart() = %v, want %v", start, want)
	}

	// Wednesday 01:00 has no Tuesday start day, so the window is closed.
	if _, ok := ActiveStart(sched, date(3, 1, 0)); ok {
		t.Error("expected schedule inactive Wednesday 01:00")
	}
}

func TestActiveStartDegenerateInputs(t *testing.T) {
	tests := []struct {
		name  string
		sched Schedule
	}{
		{"manual", Schedule{Type: TypeManual}},
		{"manual with times", Schedule{Type: TypeManual, Start: tod(9, 0), End: tod(17, 0)}},
		{"daily missing end", Schedule{Type: TypeDaily, Start: tod(9, 0)}},
		{"daily missing start", Schedule{Type: TypeDaily, End: tod(17, 0)}},
		{"weekly empty days", Schedule{Type: TypeWeekly, Start: tod(9, 0), End: tod(17, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ActiveStart(tt.sched, date(1, 10, 0)); ok {
				t.Error("expected schedule not active")
			}
		})
	}
}

func TestNextTriggerDaily(t *testing.T) {
	sched := Schedule{
		Type:  TypeDaily,
		Start: tod(9, 0),
		End:   tod(17, 0),
	}

	tests := []struct {
		name string
		now  time.Time
		edge Edge
		want time.Time
	}{
		{"before start", date(1, 8, 0), EdgeStart, date(1, 9, 0)},
		{"exactly at start counts as passed", date(1, 9, 0), EdgeStart, date(2, 9, 0)},
		{"after start", date(1, 10, 0), EdgeStart, date(2, 9, 0)},
		{"end edge before end", date(1, 10, 0), EdgeEnd, date(1, 17, 0)},
		{"end edge after end", date(1, 18, 0), EdgeEnd, date(2, 17, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextTrigger(sched, tt.now, tt.edge)
			if !ok {
				t.Fatal("NextTrigger() returned no trigger")
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextTrigger() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextTriggerWeekly(t *testing.T) {
	sched := Schedule{
		Type:  TypeWeekly,
		Start: tod(9, 0),
		End:   tod(17, 0),
		Days:  Days(time.Monday, time.Wednesday),
	}

	tests := []struct {
		name string
		now  time.Time
		edge Edge
		want time.Time
	}{
		{"monday before start", date(1, 8, 0), EdgeStart, date(1, 9, 0)},
		{"monday after start", date(1, 10, 0), EdgeStart, date(3, 9, 0)},
		{"tuesday", date(2, 12, 0), EdgeStart, date(3, 9, 0)},
		{"thursday wraps to next monday", date(4, 12, 0), EdgeStart, date(8, 9, 0)},
		{"end edge monday", date(1, 10, 0), EdgeEnd, date(1, 17, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextTrigger(sched, tt.now, tt.edge)
			if !ok {
				t.Fatal("NextTrigger() returned no trigger")
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextTrigger() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextTriggerWeeklyMidnightWrapShiftsEndDays(t *testing.T) {
	// Monday 22:00 - 06:00: the end edge fires Tuesday morning.
	sched := Schedule{
		Type:  TypeWeekly,
		Start: tod(22, 0),
		End:   tod(6, 0),
		Days:  Days(time.Monday),
	}

	got, ok := NextTrigger(sched, date(1, 23, 0), EdgeEnd)
	if !ok {
		t.Fatal("NextTrigger() returned no trigger")
	}
	if want := date(2, 6, 0); !got.Equal(want) {
		t.Errorf("NextTrigger() = %v, want %v", got, want)
	}

	// Start edge is unaffected by the shift.
	got, ok = NextTrigger(sched, date(1, 10, 0), EdgeStart)
	if !ok {
		t.Fatal("NextTrigger() returned no trigger")
	}
	if want := date(1, 22, 0); !got.Equal(want) {
		t.Errorf("NextTrigger() = %v, want %v", got, want)
	}
}

func TestNextTriggerNone(t *testing.T) {
	tests := []struct {
		name  string
		sched Schedule
		edge  Edge
	}{
		{"manual", Schedule{Type: TypeManual, Start: tod(9, 0), End: tod(17, 0)}, EdgeStart},
		{"weekly empty days", Schedule{Type: TypeWeekly, Start: tod(9, 0), End: tod(17, 0)}, EdgeStart},
		{"daily no end time", Schedule{Type: TypeDaily, Start: tod(9, 0)}, EdgeEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := NextTrigger(tt.sched, date(1, 10, 0), tt.edge); ok {
				t.Error("expected no trigger")
			}
		})
	}
}

func TestMaxDuration(t *testing.T) {
	tests := []struct {
		name  string
		sched Schedule
		want  time.Duration
	}{
		{"working hours", Schedule{Type: TypeDaily, Start: tod(9, 0), End: tod(17, 0)}, 8 * time.Hour},
		{"spans midnight", Schedule{Type: TypeDaily, Start: tod(22, 0), End: tod(6, 0)}, 8 * time.Hour},
		{"missing end", Schedule{Type: TypeDaily, Start: tod(9, 0)}, 24 * time.Hour},
		{"missing both", Schedule{Type: TypeManual}, 24 * time.Hour},
		{"equal start and end", Schedule{Type: TypeDaily, Start: tod(9, 0), End: tod(9, 0)}, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxDuration(tt.sched); got != tt.want {
				t.Errorf("MaxDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
