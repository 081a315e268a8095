package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type determines how a schedule recurs.
type Type string

const (
	TypeDaily  Type = "DAILY"
	TypeWeekly Type = "WEEKLY"
	TypeManual Type = "MANUAL"
)

// UnmarshalJSON implements json.Unmarshaler to normalize the type to uppercase.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := Type(strings.ToUpper(s))

	switch normalized {
	case TypeDaily, TypeWeekly, TypeManual:
		*t = normalized
		return nil
	default:
		return fmt.Errorf("invalid schedule type: %s (must be DAILY, WEEKLY, or MANUAL)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// Minutes returns the time of day as minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Before reports whether t is chronologically before other within a day.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.Minutes() < other.Minutes()
}

// On anchors the time of day to the calendar date of ref, in ref's location.
func (t TimeOfDay) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

// String returns the "HH:MM" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalJSON encodes the time of day as an "HH:MM" string.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes an "HH:MM" string.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DaySet is a set of weekdays stored as a 7-bit mask (bit 0 = Sunday).
type DaySet uint8

// Days builds a DaySet from the given weekdays.
func Days(days ...time.Weekday) DaySet {
	var set DaySet
	for _, d := range days {
		set = set.Add(d)
	}
	return set
}

// Add returns a copy of the set with the weekday included.
func (d DaySet) Add(day time.Weekday) DaySet {
	return d | DaySet(1)<<uint(day)
}

// Has reports whether the weekday is in the set.
func (d DaySet) Has(day time.Weekday) bool {
	return d&(DaySet(1)<<uint(day)) != 0
}

// Empty reports whether the set contains no days.
func (d DaySet) Empty() bool {
	return d&0x7f == 0
}

// Shift returns the set with every day moved forward by n days, wrapping
// around the week. Used when a window spans midnight and the end edge fires
// on the day after its matching start day.
func (d DaySet) Shift(n int) DaySet {
	var shifted DaySet
	for day := time.Sunday; day <= time.Saturday; day++ {
		if d.Has(day) {
			shifted = shifted.Add(time.Weekday((int(day) + n) % 7))
		}
	}
	return shifted
}

// Weekdays returns the members of the set in Sunday-first order.
func (d DaySet) Weekdays() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		if d.Has(day) {
			days = append(days, day)
		}
	}
	return days
}

// MarshalJSON encodes the set as a sorted array of weekday numbers
// (0 = Sunday, 6 = Saturday).
func (d DaySet) MarshalJSON() ([]byte, error) {
	nums := make([]int, 0, 7)
	for _, day := range d.Weekdays() {
		nums = append(nums, int(day))
	}
	return json.Marshal(nums)
}

// UnmarshalJSON decodes an array of weekday numbers.
func (d *DaySet) UnmarshalJSON(data []byte) error {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	var set DaySet
	for _, n := range nums {
		if n < 0 || n > 6 {
			return fmt.Errorf("invalid weekday: %d (must be 0-6)", n)
		}
		set = set.Add(time.Weekday(n))
	}
	*d = set
	return nil
}

// Schedule describes when a routine recurs. Manual schedules carry no times
// and are only ever started by explicit user action.
type Schedule struct {
	Type  Type       `json:"type"`
	Start *TimeOfDay `json:"start_time,omitempty"`
	End   *TimeOfDay `json:"end_time,omitempty"`
	Days  DaySet     `json:"days_of_week,omitempty"`
}
