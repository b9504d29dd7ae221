package analysis

import (
	"fmt"
	"io"
	"time"

	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/trips"
)

// CoverageParams names the stop/direction pair the collector currently
// watches and the pair it watched before the filters changed.
type CoverageParams struct {
	NewStop      string
	NewDirection int
	OldStop      string
	OldDirection int
}

// Coverage verifies that a predictions log covers the updated stop and
// direction filters and that side-loaded vehicle data is present for
// assigned predictions.
func Coverage(predictionsPath string, params CoverageParams, w io.Writer) error {
	scanner, err := jsonl.Open[trips.RawEntry](predictionsPath)
	if err != nil {
		return err
	}
	defer scanner.Close()

	var (
		totalPolls      int
		firstTS, lastTS time.Time
		countNew        int
		countOld        int
		assignment      assignmentStats
		binCounts       = make(map[string]int)
		includedHits    int
		includedMissing int
		includedTotal   int
	)
	firstAssignments := make(map[[2]string]struct{})

	for scanner.Scan() {
		entry := scanner.Entry()
		ts, ok := entry.Time()
		if !ok {
			continue
		}
		totalPolls++
		if firstTS.IsZero() {
			firstTS = ts
		}
		lastTS = ts

		includedVehicles := make(map[string]struct{})
		for _, res := range entry.Data.Included {
			if res.Type == "vehicle" && res.ID != "" {
				includedVehicles[res.ID] = struct{}{}
			}
		}

		for _, pred := range entry.Data.Data {
			stopID := pred.StopID()
			if stopID == params.NewStop && directionMatches(pred, params.NewDirection) {
				countNew++
				vehicleID := pred.VehicleID()
				if vehicleID != "" {
					assignment.assigned++
				} else {
					assignment.unassigned++
				}

				tripID := pred.TripID()
				if dep, ok := pred.DepartureTime(); ok && tripID != "" && vehicleID != "" {
					key := [2]string{tripID, dep.Format(time.RFC3339)}
					if _, seen := firstAssignments[key]; !seen {
						firstAssignments[key] = struct{}{}
						minutes := dep.Sub(ts).Minutes()
						for _, bin := range assignmentBins {
							if minutes > bin.low && minutes <= bin.high {
								binCounts[bin.label]++
								break
							}
						}
					}
				}

				if vehicleID != "" {
					includedTotal++
					if _, present := includedVehicles[vehicleID]; present {
						includedHits++
					} else {
						includedMissing++
					}
				}
			}

			if stopID == params.OldStop && directionMatches(pred, params.OldDirection) {
				countOld++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Prediction log coverage summary\n")
	fmt.Fprintf(w, "File: %s\n", predictionsPath)
	fmt.Fprintf(w, "Total polls: %d\n", totalPolls)
	if !firstTS.IsZero() {
		fmt.Fprintf(w, "Date range: %s to %s\n", firstTS.Format(time.RFC3339), lastTS.Format(time.RFC3339))
	}

	fmt.Fprintf(w, "\nPrediction counts by stop/direction:\n")
	fmt.Fprintf(w, "  Stop %s dir %d: %d\n", params.NewStop, params.NewDirection, countNew)
	fmt.Fprintf(w, "  Stop %s dir %d: %d\n", params.OldStop, params.OldDirection, countOld)

	fmt.Fprintf(w, "\nStop %s (direction %d) vehicle assignment:\n", params.NewStop, params.NewDirection)
	total := assignment.assigned + assignment.unassigned
	if total > 0 {
		fmt.Fprintf(w, "  Assigned: %d (%.1f%%)\n", assignment.assigned, percent(assignment.assigned, total))
		fmt.Fprintf(w, "  Unassigned: %d (%.1f%%)\n", assignment.unassigned, percent(assignment.unassigned, total))
	} else {
		fmt.Fprintf(w, "  No predictions for stop %s\n", params.NewStop)
	}

	fmt.Fprintf(w, "\nMinutes before departure when vehicle gets assigned (first observed):\n")
	for _, bin := range assignmentBins {
		fmt.Fprintf(w, "  %6s: %d\n", bin.label, binCounts[bin.label])
	}

	fmt.Fprintf(w, "\nIncluded vehicle data presence for stop %s predictions with vehicle_id:\n", params.NewStop)
	if includedTotal > 0 {
		fmt.Fprintf(w, "  Included hits: %d (%.1f%%)\n", includedHits, percent(includedHits, includedTotal))
		fmt.Fprintf(w, "  Included missing: %d (%.1f%%)\n", includedMissing, percent(includedMissing, includedTotal))
	} else {
		fmt.Fprintf(w, "  No vehicle-assigned predictions to check\n")
	}

	return nil
}
