package trips

import (
	"time"

	"github.com/route109-tracker/internal/mbta"
)

// Record is one reconstructed trip for a vehicle.
type Record struct {
	VehicleID   string
	TripID      string
	DirectionID *int
	Start       time.Time
	End         time.Time
}

// Duration returns the trip duration in minutes.
func (r Record) Duration() float64 {
	return r.End.Sub(r.Start).Minutes()
}

// Completed pairs a finished trip with the turnaround since the same
// vehicle's previous trip, when one was observed.
type Completed struct {
	Record
	TurnaroundMin *float64
	PrevDirection *int
}

type activeTrip struct {
	tripID      string
	directionID *int
	start       time.Time
	lastSeen    time.Time
	lastSeq     int
}

// Tracker reconstructs trip boundaries from streamed vehicle snapshots. A
// trip starts when a vehicle first appears at stop sequence 1 and ends when
// its sequence resets or its trip id changes.
type Tracker struct {
	routeID  string
	active   map[string]*activeTrip
	lastTrip map[string]Record
}

func NewTracker(routeID string) *Tracker {
	return &Tracker{
		routeID:  routeID,
		active:   make(map[string]*activeTrip),
		lastTrip: make(map[string]Record),
	}
}

// Observe feeds one poll's vehicle resources into the tracker and returns
// any trips completed by this poll.
func (t *Tracker) Observe(ts time.Time, vehicles []mbta.Resource) []Completed {
	var completed []Completed

	for _, vehicle := range vehicles {
		if t.routeID != "" && vehicle.RouteID() != t.routeID {
			continue
		}
		if vehicle.ID == "" {
			continue
		}
		seqPtr := vehicle.Attributes.CurrentStopSequence
		if seqPtr == nil {
			continue
		}
		seq := *seqPtr
		directionID := vehicle.Attributes.DirectionID
		tripID := vehicle.TripID()

		state, ok := t.active[vehicle.ID]
		if !ok {
			if seq == 1 {
				t.active[vehicle.ID] = &activeTrip{
					tripID:      tripID,
					directionID: directionID,
					start:       ts,
					lastSeen:    ts,
					lastSeq:     seq,
				}
			}
			continue
		}

		reset := seq < state.lastSeq
		tripChanged := tripID != "" && state.tripID != "" && tripID != state.tripID
		if !reset && !tripChanged {
			state.lastSeen = ts
			state.lastSeq = seq
			if tripID != "" {
				state.tripID = tripID
			}
			if directionID != nil {
				state.directionID = directionID
			}
			continue
		}

		record := Record{
			VehicleID:   vehicle.ID,
			TripID:      state.tripID,
			DirectionID: state.directionID,
			Start:       state.start,
			End:         state.lastSeen,
		}

		done := Completed{Record: record}
		if prev, ok := t.lastTrip[vehicle.ID]; ok {
			turnaround := record.Start.Sub(prev.End).Minutes()
			done.TurnaroundMin = &turnaround
			done.PrevDirection = prev.DirectionID
		}
		t.lastTrip[vehicle.ID] = record
		completed = append(completed, done)

		t.active[vehicle.ID] = &activeTrip{
			tripID:      tripID,
			directionID: directionID,
			start:       ts,
			lastSeen:    ts,
			lastSeq:     seq,
		}
	}

	return completed
}

// IsPeak reports whether a local start time falls in the weekday-style peak
// windows (07:00-10:00, 16:00-19:00).
func IsPeak(ts time.Time) bool {
	hour := ts.Local().Hour()
	return (hour >= 7 && hour < 10) || (hour >= 16 && hour < 19)
}
