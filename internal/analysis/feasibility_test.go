package analysis

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/scorer"
	"github.com/route109-tracker/internal/trips"
)

func boardingPrediction(tripID, vehicleID string, departure time.Time) mbta.Resource {
	dep := departure.Format(time.RFC3339)
	return mbta.Resource{
		Type: "prediction",
		Attributes: mbta.Attributes{
			DepartureTime: &dep,
			DirectionID:   intPtr(BoardingDirection),
		},
		Relationships: map[string]mbta.Relationship{
			"trip":    {Data: &mbta.ResourceRef{ID: tripID, Type: "trip"}},
			"stop":    {Data: &mbta.ResourceRef{ID: BoardingStop, Type: "stop"}},
			"vehicle": {Data: &mbta.ResourceRef{ID: vehicleID, Type: "vehicle"}},
		},
	}
}

func includedVehicle(id string, direction, seq int) mbta.Resource {
	return mbta.Resource{
		ID:   id,
		Type: "vehicle",
		Attributes: mbta.Attributes{
			DirectionID:         intPtr(direction),
			CurrentStopSequence: intPtr(seq),
		},
	}
}

func TestBacktestFeasibility(t *testing.T) {
	start := time.Date(2026, 8, 30, 7, 0, 0, 0, time.UTC)
	departure := start.Add(20 * time.Minute)
	dir := t.TempDir()

	// One GOOD prediction for a trip whose vehicle reaches the boarding
	// stop two minutes early.
	predEntries := []trips.RawEntry{
		{
			Timestamp: start.Format(time.RFC3339),
			Data: mbta.Document{
				Data:     []mbta.Resource{boardingPrediction("t1", "y1", departure)},
				Included: []mbta.Resource{includedVehicle("y1", 0, 35)},
			},
		},
		{
			Timestamp: start.Add(18 * time.Minute).Format(time.RFC3339),
			Data:      mbta.Document{},
		},
	}
	vehEntries := []trips.RawEntry{
		vehicleEntry(start, rawVehicle("y1", "t1", "109", 0, 35)),
		vehicleEntry(start.Add(18*time.Minute), rawVehicle("y1", "t1", "109", BoardingDirection, scorer.BoardingStopSeq)),
	}

	predsPath := writeRawLog(t, dir, "preds.jsonl", predEntries)
	vehsPath := writeRawLog(t, dir, "vehs.jsonl", vehEntries)

	var out bytes.Buffer
	require.NoError(t, BacktestFeasibility(predsPath, vehsPath, "109", BoardingStop, BoardingDirection, scorer.BoardingStopSeq, &out))

	report := out.String()
	assert.Contains(t, report, "Total predictions scored: 1")
	assert.Contains(t, report, "on_time: 1")
	assert.Contains(t, report, "GOOD: 1")
	assert.Contains(t, report, "GOOD / on_time: 1")
	assert.Contains(t, report, "BAD: 0")
}

func TestBacktestFeasibilityMiss(t *testing.T) {
	start := time.Date(2026, 8, 30, 7, 0, 0, 0, time.UTC)
	departure := start.Add(10 * time.Minute)
	dir := t.TempDir()

	// The assigned vehicle is early in its inbound run and never arrives.
	predEntries := []trips.RawEntry{
		{
			Timestamp: start.Format(time.RFC3339),
			Data: mbta.Document{
				Data:     []mbta.Resource{boardingPrediction("t1", "y1", departure)},
				Included: []mbta.Resource{includedVehicle("y1", 1, 2)},
			},
		},
	}
	vehEntries := []trips.RawEntry{
		vehicleEntry(start, rawVehicle("y1", "t1", "109", 1, 2)),
	}

	predsPath := writeRawLog(t, dir, "preds.jsonl", predEntries)
	vehsPath := writeRawLog(t, dir, "vehs.jsonl", vehEntries)

	var out bytes.Buffer
	require.NoError(t, BacktestFeasibility(predsPath, vehsPath, "109", BoardingStop, BoardingDirection, scorer.BoardingStopSeq, &out))

	report := out.String()
	assert.Contains(t, report, "Total predictions scored: 1")
	assert.Contains(t, report, "miss: 1")
	assert.Contains(t, report, "BAD / miss: 1")
	assert.Contains(t, report, "Precision: 1.000")
	assert.Contains(t, report, "Recall: 1.000")
}

func TestClassifyOutcome(t *testing.T) {
	dep := time.Date(2026, 8, 30, 7, 20, 0, 0, time.UTC)
	sample := feasibilitySample{predictedDeparture: dep}

	t.Run("no arrival is a miss", func(t *testing.T) {
		outcome, isFailure, delta := classifyOutcome(sample, nil)
		assert.Equal(t, "miss", outcome)
		assert.True(t, isFailure)
		assert.Nil(t, delta)
	})

	t.Run("within five minutes is on time", func(t *testing.T) {
		arrival := dep.Add(4 * time.Minute)
		outcome, isFailure, delta := classifyOutcome(sample, &arrival)
		assert.Equal(t, "on_time", outcome)
		assert.False(t, isFailure)
		require.NotNil(t, delta)
		assert.InDelta(t, 4.0, *delta, 0.01)
	})

	t.Run("ten minutes late", func(t *testing.T) {
		arrival := dep.Add(10 * time.Minute)
		outcome, isFailure, _ := classifyOutcome(sample, &arrival)
		assert.Equal(t, "late", outcome)
		assert.True(t, isFailure)
	})

	t.Run("forty minutes off is a miss", func(t *testing.T) {
		arrival := dep.Add(40 * time.Minute)
		outcome, _, _ := classifyOutcome(sample, &arrival)
		assert.Equal(t, "miss", outcome)
	})

	t.Run("ten minutes early is a miss", func(t *testing.T) {
		arrival := dep.Add(-10 * time.Minute)
		outcome, isFailure, _ := classifyOutcome(sample, &arrival)
		assert.Equal(t, "miss", outcome)
		assert.True(t, isFailure)
	})
}
