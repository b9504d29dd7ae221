package analysis

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/trips"
)

type leadBin struct {
	label string
	low   float64
	high  float64
}

// Bins for minutes-before-departure when a vehicle first gets assigned.
var assignmentBins = []leadBin{
	{"<=0", math.Inf(-1), 0},
	{"0-1", 0, 1},
	{"1-3", 1, 3},
	{"3-5", 3, 5},
	{"5-10", 5, 10},
	{"10-15", 10, 15},
	{"15-30", 15, 30},
	{"30-60", 30, 60},
	{">60", 60, math.Inf(1)},
}

var gapThresholds = []struct {
	label   string
	seconds float64
}{
	{">10s", 10},
	{">30s", 30},
	{">60s", 60},
	{">120s", 120},
	{">300s", 300},
}

type assignmentStats struct {
	assigned   int
	unassigned int
}

// PredictionQuality summarizes a raw predictions log: poll cadence, vehicle
// assignment at the boarding stop, assignment lead times, and predictions
// that vanish close to departure.
func PredictionQuality(predictionsPath, boardingStop, terminalStop string, directionID int, w io.Writer) error {
	scanner, err := jsonl.Open[trips.RawEntry](predictionsPath)
	if err != nil {
		return err
	}
	defer scanner.Close()

	var (
		totalPolls       int
		firstTS, lastTS  time.Time
		prevTS           time.Time
		havePrev         bool
		boarding         assignmentStats
		binCounts        = make(map[string]int)
		gapCounts        = make(map[string]int)
		missingBoarding  int
		missingTerminal  int
		disappearClose   int
		nullClose        int
		firstAssignments = make(map[[2]string]struct{})
	)

	prevCloseDepartures := make(map[string]struct{})

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

		if havePrev {
			gap := ts.Sub(prevTS).Seconds()
			for _, threshold := range gapThresholds {
				if gap > threshold.seconds {
					gapCounts[threshold.label]++
				}
			}
		}
		prevTS = ts
		havePrev = true

		seenBoarding := false
		seenTerminal := false
		currentTrips := make(map[string]struct{})
		currentClose := make(map[string]struct{})

		for _, pred := range entry.Data.Data {
			dir := pred.Attributes.DirectionID
			if dir == nil || *dir != directionID {
				continue
			}
			stopID := pred.StopID()
			if stopID == boardingStop {
				seenBoarding = true
			}
			if stopID == terminalStop {
				seenTerminal = true
			}
			if stopID != boardingStop {
				continue
			}

			vehicleID := pred.VehicleID()
			if vehicleID != "" {
				boarding.assigned++
			} else {
				boarding.unassigned++
			}

			tripID := pred.TripID()
			if tripID != "" {
				currentTrips[tripID] = struct{}{}
			}

			dep, hasDep := pred.DepartureTime()
			switch {
			case tripID != "" && hasDep:
				minutes := dep.Sub(ts).Minutes()
				key := [2]string{tripID, dep.Format(time.RFC3339)}
				if vehicleID != "" {
					if _, seen := firstAssignments[key]; !seen {
						firstAssignments[key] = struct{}{}
						for _, bin := range assignmentBins {
							if minutes > bin.low && minutes <= bin.high {
								binCounts[bin.label]++
								break
							}
						}
					}
				}
				if minutes <= 5 {
					currentClose[tripID] = struct{}{}
				}
			case tripID != "" && !hasDep:
				if _, wasClose := prevCloseDepartures[tripID]; wasClose {
					nullClose++
				}
			}
		}

		if !seenBoarding {
			missingBoarding++
		}
		if !seenTerminal {
			missingTerminal++
		}

		for tripID := range prevCloseDepartures {
			if _, still := currentTrips[tripID]; !still {
				disappearClose++
			}
		}
		prevCloseDepartures = currentClose
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Summary for %s\n", predictionsPath)
	fmt.Fprintf(w, "Total polls: %d\n", totalPolls)
	if !firstTS.IsZero() {
		fmt.Fprintf(w, "Date range: %s to %s\n", firstTS.Format(time.RFC3339), lastTS.Format(time.RFC3339))
	}

	total := boarding.assigned + boarding.unassigned
	fmt.Fprintf(w, "\nStop %s (boarding) vehicle assignment:\n", boardingStop)
	if total > 0 {
		fmt.Fprintf(w, "Assigned: %d (%.1f%%)\n", boarding.assigned, percent(boarding.assigned, total))
		fmt.Fprintf(w, "Unassigned: %d (%.1f%%)\n", boarding.unassigned, percent(boarding.unassigned, total))
	} else {
		fmt.Fprintf(w, "No predictions for stop %s\n", boardingStop)
	}

	fmt.Fprintf(w, "\nMinutes before departure when vehicle gets assigned (first observed):\n")
	for _, bin := range assignmentBins {
		fmt.Fprintf(w, "  %6s: %d\n", bin.label, binCounts[bin.label])
	}

	fmt.Fprintf(w, "\nPredictions disappearing or departure_time going null close to departure (<=5 min):\n")
	fmt.Fprintf(w, "Disappear count: %d\n", disappearClose)
	fmt.Fprintf(w, "Departure time null count: %d\n", nullClose)

	if totalPolls > 0 {
		fmt.Fprintf(w, "\nMissing data indicators:\n")
		fmt.Fprintf(w, "Polls missing stop %s predictions: %d (%.1f%%)\n", boardingStop, missingBoarding, percent(missingBoarding, totalPolls))
		fmt.Fprintf(w, "Polls missing stop %s predictions: %d (%.1f%%)\n", terminalStop, missingTerminal, percent(missingTerminal, totalPolls))
	}

	fmt.Fprintf(w, "\nPoll interval gaps (counts of gaps exceeding thresholds):\n")
	for _, threshold := range gapThresholds {
		fmt.Fprintf(w, "  %5s: %d\n", threshold.label, gapCounts[threshold.label])
	}

	return nil
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100.0 * float64(part) / float64(total)
}

// directionMatches is a nil-safe direction filter.
func directionMatches(res mbta.Resource, directionID int) bool {
	dir := res.Attributes.DirectionID
	return dir != nil && *dir == directionID
}
