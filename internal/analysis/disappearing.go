package analysis

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/trips"
)

type tripState struct {
	firstSeen             time.Time
	lastSeen              time.Time
	lastDeparture         *time.Time
	lastStatus            string
	lastVehicleID         string
	everAssigned          bool
	lastAssignedAt        *time.Time
	unassignedAfterAssign bool
	pollsSeen             int
}

type groupStats struct {
	count                 int
	assignedEver          int
	unassignedAfterAssign int
	pollsTotal            int
	pollsMin              int
	pollsMax              int
	minutesSinceAssign    float64
	minutesSinceAssignN   int
	lastStatusCounts      map[string]int
}

func newGroupStats() *groupStats {
	return &groupStats{lastStatusCounts: make(map[string]int)}
}

func (g *groupStats) addTrip(state *tripState, disappearTS time.Time) {
	g.count++
	g.pollsTotal += state.pollsSeen
	if g.count == 1 || state.pollsSeen < g.pollsMin {
		g.pollsMin = state.pollsSeen
	}
	if state.pollsSeen > g.pollsMax {
		g.pollsMax = state.pollsSeen
	}
	if state.everAssigned {
		g.assignedEver++
		if state.lastAssignedAt != nil {
			g.minutesSinceAssign += disappearTS.Sub(*state.lastAssignedAt).Minutes()
			g.minutesSinceAssignN++
		}
	}
	if state.unassignedAfterAssign {
		g.unassignedAfterAssign++
	}
	if state.lastStatus != "" {
		g.lastStatusCounts[state.lastStatus]++
	}
}

func (g *groupStats) write(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sTrips: %d\n", indent, g.count)
	if g.count == 0 {
		return
	}
	fmt.Fprintf(w, "%sEver assigned vehicle: %d (%.1f%%)\n", indent, g.assignedEver, percent(g.assignedEver, g.count))
	fmt.Fprintf(w, "%sUnassigned after assigned: %d (%.1f%%)\n", indent, g.unassignedAfterAssign, percent(g.unassignedAfterAssign, g.count))
	fmt.Fprintf(w, "%sPolls seen per trip: avg %.1f, min %d, max %d\n", indent, float64(g.pollsTotal)/float64(g.count), g.pollsMin, g.pollsMax)
	if g.minutesSinceAssignN > 0 {
		fmt.Fprintf(w, "%sMinutes from last assignment to disappearance: avg %.1f\n", indent, g.minutesSinceAssign/float64(g.minutesSinceAssignN))
	} else {
		fmt.Fprintf(w, "%sMinutes from last assignment to disappearance: n/a\n", indent)
	}
	if len(g.lastStatusCounts) > 0 {
		fmt.Fprintf(w, "%sLast status (top): %s\n", indent, topStatuses(g.lastStatusCounts, 5))
	}
}

func topStatuses(counts map[string]int, limit int) string {
	type statusCount struct {
		status string
		count  int
	}
	ranked := make([]statusCount, 0, len(counts))
	for status, count := range counts {
		ranked = append(ranked, statusCount{status, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].status < ranked[j].status
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	parts := make([]string, len(ranked))
	for i, sc := range ranked {
		parts[i] = fmt.Sprintf("%s:%d", sc.status, sc.count)
	}
	return strings.Join(parts, ", ")
}

// Disappearing compares trips that vanish from the prediction feed within 5
// minutes of their departure against trips that vanish after departing
// normally.
func Disappearing(predictionsPath, boardingStop string, directionID int, w io.Writer) error {
	scanner, err := jsonl.Open[trips.RawEntry](predictionsPath)
	if err != nil {
		return err
	}
	defer scanner.Close()

	activeTrips := make(map[string]*tripState)
	prevTripIDs := make(map[string]struct{})

	disappeared := newGroupStats()
	completed := newGroupStats()
	ignored := newGroupStats()

	for scanner.Scan() {
		entry := scanner.Entry()
		ts, ok := entry.Time()
		if !ok {
			continue
		}

		currentTripIDs := make(map[string]struct{})

		for _, pred := range entry.Data.Data {
			if !directionMatches(pred, directionID) {
				continue
			}
			if pred.StopID() != boardingStop {
				continue
			}
			tripID := pred.TripID()
			if tripID == "" {
				continue
			}
			currentTripIDs[tripID] = struct{}{}

			var departure *time.Time
			if dep, ok := pred.DepartureTime(); ok {
				departure = &dep
			}
			status := ""
			if pred.Attributes.Status != nil {
				status = *pred.Attributes.Status
			}
			vehicleID := pred.VehicleID()

			state, seen := activeTrips[tripID]
			if !seen {
				state = &tripState{
					firstSeen:     ts,
					lastSeen:      ts,
					lastDeparture: departure,
					lastStatus:    status,
					lastVehicleID: vehicleID,
					everAssigned:  vehicleID != "",
					pollsSeen:     1,
				}
				if vehicleID != "" {
					assignedAt := ts
					state.lastAssignedAt = &assignedAt
				}
				activeTrips[tripID] = state
				continue
			}

			if state.everAssigned && vehicleID == "" && state.lastVehicleID != "" {
				state.unassignedAfterAssign = true
			}
			if vehicleID != "" && state.lastVehicleID == "" {
				state.everAssigned = true
				assignedAt := ts
				state.lastAssignedAt = &assignedAt
			}
			if vehicleID != "" && state.lastVehicleID != vehicleID {
				assignedAt := ts
				state.lastAssignedAt = &assignedAt
			}
			state.lastSeen = ts
			state.lastDeparture = departure
			state.lastStatus = status
			state.lastVehicleID = vehicleID
			state.pollsSeen++
		}

		for tripID := range prevTripIDs {
			if _, still := currentTripIDs[tripID]; still {
				continue
			}
			state, ok := activeTrips[tripID]
			if !ok {
				continue
			}
			delete(activeTrips, tripID)

			if state.lastDeparture == nil {
				ignored.addTrip(state, ts)
				continue
			}
			minutesToDep := state.lastDeparture.Sub(ts).Minutes()
			switch {
			case minutesToDep > 0 && minutesToDep <= 5:
				disappeared.addTrip(state, ts)
			case minutesToDep <= 0:
				completed.addTrip(state, ts)
			default:
				ignored.addTrip(state, ts)
			}
		}
		prevTripIDs = currentTripIDs
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Disappearing vs completed summary for stop %s\n", boardingStop)
	fmt.Fprintf(w, "\nDisappeared within 5 minutes of departure:\n")
	disappeared.write(w, "  ")
	fmt.Fprintf(w, "\nCompleted (vanished after departure time):\n")
	completed.write(w, "  ")
	fmt.Fprintf(w, "\nOther/ignored disappearances (not within 5 minutes):\n")
	ignored.write(w, "  ")

	return nil
}
