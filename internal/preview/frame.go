package preview

import (
	"sort"
	"time"

	"github.com/route109-tracker/internal/collector"
	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/display"
	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/scorer"
)

const (
	maxLookaheadMin = 90.0
	boardRowTarget  = 6
	departedCutoff  = 0.5
	trendDriftMin   = 1.0
)

// FrameBuilder turns a poll snapshot into the rows the board shows. It
// keeps a per-trip cache of the scorer's time-needed estimate so row trends
// reflect whether the vehicle is gaining or losing ground between polls.
type FrameBuilder struct {
	schedulePath string
	driftCache   map[string]float64
	logger       logger.Logger
}

func NewFrameBuilder(schedulePath string, log logger.Logger) *FrameBuilder {
	return &FrameBuilder{
		schedulePath: schedulePath,
		driftCache:   make(map[string]float64),
		logger:       log,
	}
}

type candidateRow struct {
	sortTime time.Time
	row      display.TripRow
}

// Build composes the frame rows for a snapshot at the given instant.
func (b *FrameBuilder) Build(snapshot *Snapshot, now time.Time) display.FrameData {
	scheduleMap := b.loadScheduleMap()
	vehiclesByID := mbta.VehiclesByID(snapshot.Vehicles)

	var candidates []candidateRow
	seenTrips := make(map[string]struct{})
	nextCache := make(map[string]float64)

	for _, pred := range snapshot.Predictions {
		tripID := pred.TripID()
		if tripID == "" {
			continue
		}

		dep, ok := pred.ArrivalTime()
		if !ok {
			dep, ok = pred.DepartureTime()
		}
		if !ok {
			continue
		}
		minutes := dep.Sub(now).Minutes()
		if minutes > maxLookaheadMin {
			continue
		}
		seenTrips[tripID] = struct{}{}

		assessment := scorer.ScoreTrip(pred, vehiclesByID, minutes)

		if rel := pred.Attributes.ScheduleRelationship; rel != nil && *rel == "CANCELLED" {
			if row, ok := b.cancelledRow(tripID, dep, minutes, scheduleMap, now); ok {
				candidates = append(candidates, row)
			}
			continue
		}

		departed := minutes <= departedCutoff
		trend := display.TrendStable
		if vehicleID := pred.VehicleID(); vehicleID != "" {
			if vehicle, present := vehiclesByID[vehicleID]; present {
				dir := vehicle.Attributes.DirectionID
				seq := vehicle.Attributes.CurrentStopSequence
				if dir != nil && *dir == 1 && seq != nil && *seq > 1 && *seq <= scorer.BoardingStopSeq {
					departed = true
				}
				if timeNeeded, ok := scorer.TimeToLinden(dir, seq); ok {
					if departed {
						delete(nextCache, tripID)
					} else {
						if prev, cached := b.driftCache[tripID]; cached {
							switch delta := prev - timeNeeded; {
							case delta > trendDriftMin:
								trend = display.TrendImproving
							case delta < -trendDriftMin:
								trend = display.TrendDeteriorating
							}
						}
						nextCache[tripID] = timeNeeded
					}
				}
			}
		}

		candidates = append(candidates, candidateRow{
			sortTime: dep,
			row: display.TripRow{
				MinutesAway: minutes,
				ClockTime:   formatClock(dep),
				Reliability: assessment.Classification,
				Departed:    departed,
				Trend:       trend,
			},
		})
	}

	// Pad the board from the schedule when the feed is thin.
	if len(candidates) < boardRowTarget {
		candidates = append(candidates, b.scheduledRows(scheduleMap, seenTrips, now, boardRowTarget-len(candidates))...)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sortTime.Before(candidates[j].sortTime)
	})
	if len(candidates) > boardRowTarget {
		candidates = candidates[:boardRowTarget]
	}

	rows := make([]display.TripRow, len(candidates))
	for i, candidate := range candidates {
		rows[i] = candidate.row
	}

	b.driftCache = nextCache
	return display.FrameData{Trips: rows}
}

// cancelledRow keeps a cancelled trip visible at its scheduled time when
// the schedule still has it in the future.
func (b *FrameBuilder) cancelledRow(tripID string, predicted time.Time, minutes float64, scheduleMap map[string]time.Time, now time.Time) (candidateRow, bool) {
	sortTime := predicted
	clock := ""
	if scheduled, ok := scheduleMap[tripID]; ok {
		if scheduled.Before(now) {
			return candidateRow{}, false
		}
		clock = formatClock(scheduled)
		minutes = scheduled.Sub(now).Minutes()
		sortTime = scheduled
	}
	return candidateRow{
		sortTime: sortTime,
		row: display.TripRow{
			MinutesAway: minutes,
			ClockTime:   clock,
			Reliability: scorer.Unknown,
			Cancelled:   true,
			Trend:       display.TrendStable,
		},
	}, true
}

func (b *FrameBuilder) scheduledRows(scheduleMap map[string]time.Time, seenTrips map[string]struct{}, now time.Time, want int) []candidateRow {
	type scheduled struct {
		tripID string
		dep    time.Time
	}
	var upcoming []scheduled
	for tripID, dep := range scheduleMap {
		if _, seen := seenTrips[tripID]; seen {
			continue
		}
		if dep.Before(now) {
			continue
		}
		if dep.Sub(now).Minutes() > maxLookaheadMin {
			continue
		}
		upcoming = append(upcoming, scheduled{tripID, dep})
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].dep.Before(upcoming[j].dep) })
	if len(upcoming) > want {
		upcoming = upcoming[:want]
	}

	rows := make([]candidateRow, 0, len(upcoming))
	for _, entry := range upcoming {
		rows = append(rows, candidateRow{
			sortTime: entry.dep,
			row: display.TripRow{
				MinutesAway:   entry.dep.Sub(now).Minutes(),
				ClockTime:     formatClock(entry.dep),
				Reliability:   scorer.Risky,
				ScheduledOnly: true,
				Trend:         display.TrendStable,
			},
		})
	}
	return rows
}

// loadScheduleMap reads the newest schedule snapshot and maps trip id to
// scheduled boarding departure.
func (b *FrameBuilder) loadScheduleMap() map[string]time.Time {
	scanner, err := jsonl.Open[collector.ScheduleSnapshotRecord](b.schedulePath)
	if err != nil {
		b.logger.Debug("No schedule snapshot available", "path", b.schedulePath, "error", err)
		return map[string]time.Time{}
	}
	defer scanner.Close()

	var last *collector.ScheduleSnapshotRecord
	for scanner.Scan() {
		entry := scanner.Entry()
		last = &entry
	}
	if last == nil {
		return map[string]time.Time{}
	}

	scheduleMap := make(map[string]time.Time)
	for _, schedule := range last.Boarding.Schedules {
		if schedule.TripID == nil || schedule.DepartureTime == nil {
			continue
		}
		dep, err := time.Parse(time.RFC3339, *schedule.DepartureTime)
		if err != nil {
			continue
		}
		scheduleMap[*schedule.TripID] = dep
	}
	return scheduleMap
}

// formatClock renders a local 12-hour clock without a leading zero.
func formatClock(ts time.Time) string {
	clock := ts.Local().Format("03:04")
	if clock[0] == '0' {
		return clock[1:]
	}
	return clock
}
