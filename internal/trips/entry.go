// Package trips reconstructs trip lifecycles and aligns the raw poll logs
// that the collector writes.
package trips

import (
	"time"

	"github.com/route109-tracker/internal/mbta"
)

// RawEntry is one line of a raw poll log: the poll timestamp plus the full
// API document returned at that instant.
type RawEntry struct {
	Timestamp string        `json:"timestamp"`
	Data      mbta.Document `json:"data"`
}

// Time parses the entry timestamp; ok is false for missing or malformed
// timestamps, which callers skip.
func (e RawEntry) Time() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
