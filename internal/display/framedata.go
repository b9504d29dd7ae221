// Package display composes LED-matrix frames for the departure board and
// writes them out as PNGs for the emulator.
package display

// Trend of a vehicle's time-needed estimate between polls.
const (
	TrendStable        = "stable"
	TrendImproving     = "improving"
	TrendDeteriorating = "deteriorating"
)

// TripRow is a single departure cell on the board.
type TripRow struct {
	MinutesAway   float64
	ClockTime     string
	Reliability   string
	Departed      bool
	Cancelled     bool
	ScheduledOnly bool
	Trend         string
}

// FrameData is everything the composer needs for one frame.
type FrameData struct {
	Trips      []TripRow // up to 6 trips; the composer draws the first 3
	TickerText string
}
