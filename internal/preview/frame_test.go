package preview

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/display"
	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/scorer"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func quietLogger() logger.Logger {
	return logger.New(zerolog.Disabled, io.Discard)
}

func prediction(tripID, vehicleID string, departure time.Time) mbta.Resource {
	dep := departure.Format(time.RFC3339)
	pred := mbta.Resource{
		Type:       "prediction",
		Attributes: mbta.Attributes{DepartureTime: &dep},
		Relationships: map[string]mbta.Relationship{
			"trip": {Data: &mbta.ResourceRef{ID: tripID, Type: "trip"}},
		},
	}
	if vehicleID != "" {
		pred.Relationships["vehicle"] = mbta.Relationship{Data: &mbta.ResourceRef{ID: vehicleID, Type: "vehicle"}}
	}
	return pred
}

func vehicle(id string, direction, seq int, updatedAt time.Time) mbta.Resource {
	return mbta.Resource{
		ID:   id,
		Type: "vehicle",
		Attributes: mbta.Attributes{
			DirectionID:         intPtr(direction),
			CurrentStopSequence: intPtr(seq),
			UpdatedAt:           strPtr(updatedAt.Format(time.RFC3339)),
		},
	}
}

func missingSchedulePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "no_schedules.jsonl")
}

func TestBuildSortsAndScores(t *testing.T) {
	now := time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)
	builder := NewFrameBuilder(missingSchedulePath(t), quietLogger())

	snapshot := &Snapshot{
		Predictions: []mbta.Resource{
			prediction("t2", "", now.Add(40*time.Minute)),
			prediction("t1", "y1", now.Add(20*time.Minute)),
		},
		Vehicles:  []mbta.Resource{vehicle("y1", 0, 35, now)},
		FetchedAt: now,
	}

	data := builder.Build(snapshot, now)
	require.Len(t, data.Trips, 2)

	first := data.Trips[0]
	assert.InDelta(t, 20.0, first.MinutesAway, 0.01)
	assert.Equal(t, "7:20", first.ClockTime)
	assert.Equal(t, scorer.Good, first.Reliability)
	assert.False(t, first.Departed)

	second := data.Trips[1]
	assert.InDelta(t, 40.0, second.MinutesAway, 0.01)
	assert.Equal(t, scorer.Risky, second.Reliability)
}

func TestBuildSkipsFarDepartures(t *testing.T) {
	now := time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)
	builder := NewFrameBuilder(missingSchedulePath(t), quietLogger())

	snapshot := &Snapshot{
		Predictions: []mbta.Resource{prediction("t1", "", now.Add(2*time.Hour))},
		FetchedAt:   now,
	}
	data := builder.Build(snapshot, now)
	assert.Empty(t, data.Trips)
}

func TestBuildMarksDeparted(t *testing.T) {
	now := time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)
	builder := NewFrameBuilder(missingSchedulePath(t), quietLogger())

	t.Run("departure in the past", func(t *testing.T) {
		snapshot := &Snapshot{
			Predictions: []mbta.Resource{prediction("t1", "", now.Add(10*time.Second))},
			FetchedAt:   now,
		}
		data := builder.Build(snapshot, now)
		require.Len(t, data.Trips, 1)
		assert.True(t, data.Trips[0].Departed)
	})

	t.Run("vehicle already past the boarding stop", func(t *testing.T) {
		snapshot := &Snapshot{
			Predictions: []mbta.Resource{prediction("t1", "y1", now.Add(5*time.Minute))},
			Vehicles:    []mbta.Resource{vehicle("y1", 1, 6, now)},
			FetchedAt:   now,
		}
		data := builder.Build(snapshot, now)
		require.Len(t, data.Trips, 1)
		assert.True(t, data.Trips[0].Departed)
	})
}

func TestBuildTrendAcrossPolls(t *testing.T) {
	now := time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)
	builder := NewFrameBuilder(missingSchedulePath(t), quietLogger())

	poll := func(seq int, at time.Time) display.FrameData {
		snapshot := &Snapshot{
			Predictions: []mbta.Resource{prediction("t1", "y1", now.Add(40*time.Minute))},
			Vehicles:    []mbta.Resource{vehicle("y1", 0, seq, at)},
			FetchedAt:   at,
		}
		return builder.Build(snapshot, at)
	}

	first := poll(20, now)
	require.Len(t, first.Trips, 1)
	assert.Equal(t, display.TrendStable, first.Trips[0].Trend)

	// The vehicle advanced three stops so less time is needed.
	second := poll(23, now.Add(30*time.Second))
	require.Len(t, second.Trips, 1)
	assert.Equal(t, display.TrendImproving, second.Trips[0].Trend)

	// No movement keeps the trend stable.
	third := poll(23, now.Add(time.Minute))
	require.Len(t, third.Trips, 1)
	assert.Equal(t, display.TrendStable, third.Trips[0].Trend)
}

func writeScheduleSnapshot(t *testing.T, departures map[string]time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule_snapshots.jsonl")
	entries := ""
	for tripID, dep := range departures {
		entries += fmt.Sprintf(`{"trip_id": %q, "departure_time": %q, "stop_sequence": 10},`, tripID, dep.Format(time.RFC3339))
	}
	if entries != "" {
		entries = entries[:len(entries)-1]
	}
	line := fmt.Sprintf(`{"timestamp": "2026-08-30T06:00:00Z", "boarding": {"schedules": [%s]}, "terminal": {"schedules": []}, "error": null}`, entries)
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o644))
	return path
}

func TestBuildPadsFromSchedule(t *testing.T) {
	now := time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)
	path := writeScheduleSnapshot(t, map[string]time.Time{
		"t1": now.Add(10 * time.Minute),
		"s1": now.Add(25 * time.Minute),
		"s2": now.Add(55 * time.Minute),
		"s3": now.Add(2 * time.Hour),
	})
	builder := NewFrameBuilder(path, quietLogger())

	snapshot := &Snapshot{
		Predictions: []mbta.Resource{prediction("t1", "", now.Add(12*time.Minute))},
		FetchedAt:   now,
	}
	data := builder.Build(snapshot, now)

	// The predicted trip plus the two schedule-only trips in the horizon.
	require.Len(t, data.Trips, 3)
	assert.False(t, data.Trips[0].ScheduledOnly)
	assert.True(t, data.Trips[1].ScheduledOnly)
	assert.Equal(t, scorer.Risky, data.Trips[1].Reliability)
	assert.True(t, data.Trips[2].ScheduledOnly)
}

func TestBuildCancelledFallsBackToSchedule(t *testing.T) {
	now := time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)
	scheduled := now.Add(30 * time.Minute)
	path := writeScheduleSnapshot(t, map[string]time.Time{"t1": scheduled})
	builder := NewFrameBuilder(path, quietLogger())

	cancelled := prediction("t1", "", now.Add(28*time.Minute))
	cancelled.Attributes.ScheduleRelationship = strPtr("CANCELLED")

	snapshot := &Snapshot{
		Predictions: []mbta.Resource{cancelled},
		FetchedAt:   now,
	}
	data := builder.Build(snapshot, now)
	require.Len(t, data.Trips, 1)

	row := data.Trips[0]
	assert.True(t, row.Cancelled)
	assert.Equal(t, formatClock(scheduled), row.ClockTime)
	assert.InDelta(t, 30.0, row.MinutesAway, 0.01)
}

func TestBuildCancelledPastScheduleDropped(t *testing.T) {
	now := time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)
	path := writeScheduleSnapshot(t, map[string]time.Time{"t1": now.Add(-5 * time.Minute)})
	builder := NewFrameBuilder(path, quietLogger())

	cancelled := prediction("t1", "", now.Add(10*time.Minute))
	cancelled.Attributes.ScheduleRelationship = strPtr("CANCELLED")

	data := builder.Build(&Snapshot{Predictions: []mbta.Resource{cancelled}, FetchedAt: now}, now)
	assert.Empty(t, data.Trips)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "7:05", formatClock(time.Date(2026, 8, 30, 7, 5, 0, 0, time.Local)))
	assert.Equal(t, "12:30", formatClock(time.Date(2026, 8, 30, 12, 30, 0, 0, time.Local)))
	assert.Equal(t, "4:59", formatClock(time.Date(2026, 8, 30, 16, 59, 0, 0, time.Local)))
}
