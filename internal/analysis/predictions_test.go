package analysis

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/trips"
)

func stopPrediction(tripID, vehicleID, stopID string, direction int, departure *time.Time) mbta.Resource {
	res := mbta.Resource{
		Type: "prediction",
		Attributes: mbta.Attributes{
			DirectionID: intPtr(direction),
		},
		Relationships: map[string]mbta.Relationship{
			"trip": {Data: &mbta.ResourceRef{ID: tripID, Type: "trip"}},
			"stop": {Data: &mbta.ResourceRef{ID: stopID, Type: "stop"}},
		},
	}
	if vehicleID != "" {
		res.Relationships["vehicle"] = mbta.Relationship{Data: &mbta.ResourceRef{ID: vehicleID, Type: "vehicle"}}
	}
	if departure != nil {
		dep := departure.Format(time.RFC3339)
		res.Attributes.DepartureTime = &dep
	}
	return res
}

func predictionEntry(ts time.Time, preds ...mbta.Resource) trips.RawEntry {
	return trips.RawEntry{
		Timestamp: ts.Format(time.RFC3339),
		Data:      mbta.Document{Data: preds},
	}
}

func TestPredictionQuality(t *testing.T) {
	start := time.Date(2026, 8, 30, 7, 0, 0, 0, time.UTC)
	ts2 := start.Add(40 * time.Second)
	ts3 := start.Add(80 * time.Second)

	depFar := start.Add(20 * time.Minute)
	depSoon := ts2.Add(4 * time.Minute)
	depImminent := ts2.Add(3 * time.Minute)
	terminalDep := start.Add(45 * time.Minute)

	// Trip t1 comes within 5 minutes of departure and then vanishes;
	// trip t3 stays but loses its departure time.
	entries := []trips.RawEntry{
		predictionEntry(start,
			stopPrediction("t1", "y1", BoardingStop, BoardingDirection, &depFar),
			stopPrediction("t2", "", TerminalStop, BoardingDirection, &terminalDep),
		),
		predictionEntry(ts2,
			stopPrediction("t1", "y1", BoardingStop, BoardingDirection, &depSoon),
			stopPrediction("t3", "y3", BoardingStop, BoardingDirection, &depImminent),
		),
		predictionEntry(ts3,
			stopPrediction("t3", "y3", BoardingStop, BoardingDirection, nil),
		),
	}

	path := writeRawLog(t, t.TempDir(), "predictions.jsonl", entries)

	var out bytes.Buffer
	require.NoError(t, PredictionQuality(path, BoardingStop, TerminalStop, BoardingDirection, &out))

	report := out.String()
	assert.Contains(t, report, "Total polls: 3")
	assert.Contains(t, report, "Assigned: 4 (100.0%)")
	assert.Contains(t, report, "Unassigned: 0 (0.0%)")

	// First observed assignments: t1 at 20 min and again for the revised
	// departure at 4 min, t3 at 3 min.
	assert.Contains(t, report, "15-30: 1")
	assert.Contains(t, report, "3-5: 1")
	assert.Contains(t, report, "1-3: 1")

	assert.Contains(t, report, "Disappear count: 1")
	assert.Contains(t, report, "Departure time null count: 1")

	assert.Contains(t, report, fmt.Sprintf("Polls missing stop %s predictions: 0 (0.0%%)", BoardingStop))
	assert.Contains(t, report, fmt.Sprintf("Polls missing stop %s predictions: 2 (66.7%%)", TerminalStop))

	// Both 40 second gaps exceed the 10s and 30s thresholds.
	assert.Contains(t, report, ">10s: 2")
	assert.Contains(t, report, ">30s: 2")
	assert.Contains(t, report, ">60s: 0")
}

func TestPredictionQualityMissingFile(t *testing.T) {
	var out bytes.Buffer
	err := PredictionQuality("does-not-exist.jsonl", BoardingStop, TerminalStop, BoardingDirection, &out)
	assert.Error(t, err)
}
