// Package scorer classifies how likely an upcoming Route 109 departure is
// to actually be served by its assigned vehicle.
package scorer

import (
	"fmt"
	"time"

	"github.com/route109-tracker/internal/mbta"
)

// Classifications.
const (
	Good    = "GOOD"
	Risky   = "RISKY"
	Bad     = "BAD"
	Unknown = "UNKNOWN"
)

// Route 109 profile, measured from collected vehicle logs: the inbound
// pattern ends at stop sequence 44 after ~66 minutes, the outbound at 41
// after ~54 minutes. The boarding stop is served early in the inbound run.
const (
	InboundEndSeq       = 44
	OutboundEndSeq      = 41
	InboundDurationMin  = 66.0
	OutboundDurationMin = 54.0

	BoardingStopSeq = 10
)

// Classification buffers in minutes.
const (
	BufferGoodMin  = 10.0
	BufferRiskyMin = 20.0
)

// Staleness thresholds for live data.
const (
	StaleRiskyAfter = 45 * time.Second
	StaleBadAfter   = 120 * time.Second
)

// Assessment is the result of scoring a departure.
type Assessment struct {
	Classification string
	Reason         string
}

// TimeToLinden estimates the minutes a vehicle needs before it can serve
// the boarding stop on the inbound run toward Linden Square. A vehicle
// already inbound must finish the current inbound run and the full outbound
// leg before coming back; a vehicle at sequence 1 inbound is at the stop.
func TimeToLinden(directionID, currentStopSequence *int) (float64, bool) {
	if directionID == nil || currentStopSequence == nil {
		return 0, false
	}
	seq := *currentStopSequence
	switch *directionID {
	case 1:
		if seq <= 1 {
			return 0, true
		}
		remaining := float64(max(InboundEndSeq-seq, 0)) / InboundEndSeq * InboundDurationMin
		return remaining + OutboundDurationMin, true
	case 0:
		return float64(max(OutboundEndSeq-seq, 0)) / OutboundEndSeq * OutboundDurationMin, true
	default:
		return 0, false
	}
}

// Classify compares the minutes a vehicle needs against the minutes
// available before the predicted departure.
func Classify(timeNeededMin, availableMin float64) string {
	if timeNeededMin <= availableMin-BufferGoodMin {
		return Good
	}
	if timeNeededMin <= availableMin+BufferRiskyMin {
		return Risky
	}
	return Bad
}

// ScoreTrip scores a single boarding prediction against the vehicle
// snapshot. minutesUntil is the time from now to the predicted departure.
func ScoreTrip(pred mbta.Resource, vehicles map[string]mbta.Resource, minutesUntil float64) Assessment {
	if rel := pred.Attributes.ScheduleRelationship; rel != nil && *rel == "CANCELLED" {
		return Assessment{Unknown, "Prediction is cancelled"}
	}

	vehicleID := pred.VehicleID()
	if vehicleID == "" {
		return Assessment{Risky, "Prediction has no assigned vehicle"}
	}

	vehicle, ok := vehicles[vehicleID]
	if !ok {
		return Assessment{Risky, "Assigned vehicle missing from snapshot"}
	}

	if _, ok := vehicle.UpdatedAt(); !ok {
		return Assessment{Risky, "Vehicle has no update timestamp"}
	}

	timeNeeded, ok := TimeToLinden(vehicle.Attributes.DirectionID, vehicle.Attributes.CurrentStopSequence)
	if !ok {
		return Assessment{Risky, "Vehicle position unusable for estimate"}
	}

	classification := Classify(timeNeeded, minutesUntil)
	return Assessment{
		classification,
		fmt.Sprintf("Needs %.0f min with %.0f min available", timeNeeded, minutesUntil),
	}
}

// AssessSnapshot scores the first non-cancelled prediction in a poll
// snapshot, folding in fetch errors and data staleness.
func AssessSnapshot(predictions []mbta.Resource, vehicles []mbta.Resource, fetchedAt time.Time, fetchErr error, now time.Time) Assessment {
	if len(predictions) == 0 {
		return Assessment{Unknown, "No active predictions"}
	}
	if fetchErr != nil {
		return Assessment{Unknown, fmt.Sprintf("Fetch error: %v", fetchErr)}
	}

	age := now.Sub(fetchedAt)
	if age > StaleBadAfter {
		return Assessment{Bad, fmt.Sprintf("Data is stale (%ds old)", int(age.Seconds()))}
	}
	if age > StaleRiskyAfter {
		return Assessment{Risky, fmt.Sprintf("Data is aging (%ds old)", int(age.Seconds()))}
	}

	byID := mbta.VehiclesByID(vehicles)
	for _, pred := range predictions {
		if rel := pred.Attributes.ScheduleRelationship; rel != nil && *rel == "CANCELLED" {
			continue
		}
		minutes := 0.0
		if dep, ok := pred.DepartureTime(); ok {
			minutes = dep.Sub(now).Minutes()
		}
		return ScoreTrip(pred, byID, minutes)
	}

	return Assessment{Unknown, "No active predictions"}
}
