package usage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind classifies an app lifecycle event.
type EventKind string

const (
	KindResumed EventKind = "RESUMED"
	KindPaused  EventKind = "PAUSED"
	KindStopped EventKind = "STOPPED"
)

// UnmarshalJSON implements json.Unmarshaler to normalize the kind to uppercase.
func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := EventKind(strings.ToUpper(s))

	switch normalized {
	case KindResumed, KindPaused, KindStopped:
		*k = normalized
		return nil
	default:
		return fmt.Errorf("invalid event kind: %s (must be RESUMED, PAUSED, or STOPPED)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// Event is a single app foreground/background transition reported by a
// device. Timestamp is milliseconds since the Unix epoch. Component
// distinguishes concurrent windows of the same package and may be empty.
type Event struct {
	Package   string    `json:"package"`
	Component string    `json:"component,omitempty"`
	Kind      EventKind `json:"kind"`
	Timestamp int64     `json:"timestamp"`
}

// trackingKey identifies a foreground session. Events without a component
// degrade to package-level tracking, folding concurrent windows of the same
// app into one session.
func (e Event) trackingKey() string {
	if e.Component == "" {
		return e.Package
	}
	return e.Package + "/" + e.Component
}
