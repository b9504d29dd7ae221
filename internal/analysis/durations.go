// Package analysis holds the offline reports computed from the JSONL poll
// logs. Every report streams its input and writes plain text.
package analysis

import (
	"fmt"
	"io"

	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/stats"
	"github.com/route109-tracker/internal/trips"
)

// Defaults shared by the reports; flags override them per command.
const (
	DefaultRouteID     = "109"
	BoardingStop       = "5483"
	BoardingDirection  = 1
	LegacyBoardingStop = "5522"
	LegacyDirection    = 0
	TerminalStop       = "7412"
)

// TripDurations reconstructs trips from a vehicles log and reports duration
// and turnaround statistics split by direction and peak window.
func TripDurations(vehiclesPath, routeID string, w io.Writer) error {
	scanner, err := jsonl.Open[trips.RawEntry](vehiclesPath)
	if err != nil {
		return err
	}
	defer scanner.Close()

	tracker := trips.NewTracker(routeID)

	var (
		inbound, outbound           []float64
		turnaroundIn, turnaroundOut []float64
		peakIn, offpeakIn           []float64
		peakOut, offpeakOut         []float64
	)

	for scanner.Scan() {
		entry := scanner.Entry()
		ts, ok := entry.Time()
		if !ok {
			continue
		}
		for _, done := range tracker.Observe(ts, entry.Data.Data) {
			duration := done.Duration()
			switch dir := done.DirectionID; {
			case dir != nil && *dir == 0:
				inbound = append(inbound, duration)
				if trips.IsPeak(done.Start) {
					peakIn = append(peakIn, duration)
				} else {
					offpeakIn = append(offpeakIn, duration)
				}
			case dir != nil && *dir == 1:
				outbound = append(outbound, duration)
				if trips.IsPeak(done.Start) {
					peakOut = append(peakOut, duration)
				} else {
					offpeakOut = append(offpeakOut, duration)
				}
			}
			if done.TurnaroundMin != nil && done.PrevDirection != nil {
				switch *done.PrevDirection {
				case 0:
					turnaroundIn = append(turnaroundIn, *done.TurnaroundMin)
				case 1:
					turnaroundOut = append(turnaroundOut, *done.TurnaroundMin)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Route %s trip duration summary (from %s)\n", routeID, vehiclesPath)

	fmt.Fprintf(w, "\nInbound duration:\n")
	writeDurationSummary(w, "Inbound", inbound)
	fmt.Fprintf(w, "\nOutbound duration:\n")
	writeDurationSummary(w, "Outbound", outbound)

	fmt.Fprintf(w, "\nTurnaround times (end of trip to next start for same vehicle):\n")
	writeSimpleSummary(w, "Inbound end", turnaroundIn)
	writeSimpleSummary(w, "Outbound end", turnaroundOut)

	fmt.Fprintf(w, "\nTurnaround times (filtered <= 90 min):\n")
	writeSimpleSummary(w, "Inbound end (filtered)", stats.FilterMax(turnaroundIn, 90))
	writeSimpleSummary(w, "Outbound end (filtered)", stats.FilterMax(turnaroundOut, 90))

	fmt.Fprintf(w, "\nTime-of-day patterns (start time local):\n")
	writeDurationSummary(w, "Inbound peak", peakIn)
	writeDurationSummary(w, "Inbound off-peak", offpeakIn)
	writeDurationSummary(w, "Outbound peak", peakOut)
	writeDurationSummary(w, "Outbound off-peak", offpeakOut)

	return nil
}

func writeDurationSummary(w io.Writer, name string, durations []float64) {
	fmt.Fprintf(w, "%s trips: %d\n", name, len(durations))
	if len(durations) == 0 {
		return
	}
	fmt.Fprintf(w, "  avg %.1f min, min %.1f, max %.1f, p25 %.1f, p75 %.1f\n",
		stats.Mean(durations),
		stats.Min(durations),
		stats.Max(durations),
		stats.Percentile(durations, 0.25),
		stats.Percentile(durations, 0.75),
	)
}

func writeSimpleSummary(w io.Writer, name string, durations []float64) {
	fmt.Fprintf(w, "%s: %d\n", name, len(durations))
	if len(durations) == 0 {
		return
	}
	fmt.Fprintf(w, "  avg %.1f min, min %.1f, max %.1f\n",
		stats.Mean(durations),
		stats.Min(durations),
		stats.Max(durations),
	)
}
