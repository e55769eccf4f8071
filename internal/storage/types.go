package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ActivityKind identifies one of the fixed trackable activity categories.
type ActivityKind string

const (
	ActivityTransport ActivityKind = "transport"
	ActivityStudy     ActivityKind = "study"
	ActivityWalking   ActivityKind = "walking"
	ActivitySport     ActivityKind = "sport"
)

// AllActivityKinds returns the activity kinds in display order.
func AllActivityKinds() []ActivityKind {
	return []ActivityKind{ActivityTransport, ActivityStudy, ActivityWalking, ActivitySport}
}

// ParseActivityKind converts a string to an ActivityKind, case-insensitively.
func ParseActivityKind(s string) (ActivityKind, error) {
	kind := ActivityKind(strings.ToLower(s))
	switch kind {
	case ActivityTransport, ActivityStudy, ActivityWalking, ActivitySport:
		return kind, nil
	default:
		return "", fmt.Errorf("invalid activity kind: %s (must be transport, study, walking, or sport)", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler to normalize and validate the kind.
func (k *ActivityKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseActivityKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// MarshalJSON implements json.Marshaler.
func (k ActivityKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// DateFormat is the calendar date layout used throughout storage.
const DateFormat = "2006-01-02"

// DateOf formats an instant as the local calendar date it falls on.
func DateOf(t time.Time) string {
	return t.Format(DateFormat)
}

// Interval is one contiguous start/stop timing record for a single activity
// on a single calendar date. EndMillis == 0 means the interval is still open.
type Interval struct {
	ID             int64        `json:"id"`
	Kind           ActivityKind `json:"kind"`
	StartMillis    int64        `json:"start_millis"`
	EndMillis      int64        `json:"end_millis,omitempty"`
	DurationMillis int64        `json:"duration_millis"`
	Date           string       `json:"date"`
}

// Open reports whether the interval has no recorded end time.
func (i Interval) Open() bool {
	return i.EndMillis == 0
}

// Start returns the start instant.
func (i Interval) Start() time.Time {
	return time.UnixMilli(i.StartMillis)
}
