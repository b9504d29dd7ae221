package analysis

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/scorer"
	"github.com/route109-tracker/internal/stats"
	"github.com/route109-tracker/internal/trips"
)

const (
	onTimeWindowMin       = 5.0
	lateWindowMin         = 15.0
	arrivalMatchWindowMin = 120.0
)

type feasibilitySample struct {
	tripID             string
	predictionTime     time.Time
	predictedDeparture time.Time
	classification     string
	availableMin       float64
	timeNeededMin      float64
	vehicleID          string
	vehicleDirection   *int
	vehicleSeq         *int
}

// BacktestFeasibility replays the feasibility scorer over aligned prediction
// and vehicle logs and evaluates its BAD classification against observed
// arrivals at the boarding stop.
func BacktestFeasibility(predictionsPath, vehiclesPath, routeID, boardingStop string, directionID, boardingSeq int, w io.Writer) error {
	aligned, err := trips.NewAlignedScanner(predictionsPath, vehiclesPath)
	if err != nil {
		return err
	}
	defer aligned.Close()

	samplesByTrip := make(map[string][]feasibilitySample)
	arrivalsByTrip := make(map[string][]time.Time)

	var (
		totalPredictions       int
		skippedNoVehicle       int
		skippedPastDeparture   int
		skippedMissingTrip     int
		skippedMissingEstimate int
	)

	for aligned.Scan() {
		ts := aligned.Time()
		preds := aligned.Predictions()
		vehicleDoc := aligned.Vehicles()
		includedVehicles := predictionVehicleMap(preds.Included)

		// Record an arrival when a vehicle reaches the boarding stop
		// sequence inbound.
		for _, vehicle := range vehicleDoc.Data {
			if vehicle.RouteID() != routeID {
				continue
			}
			if !directionMatches(vehicle, directionID) {
				continue
			}
			seq := vehicle.Attributes.CurrentStopSequence
			if seq == nil || *seq != boardingSeq {
				continue
			}
			if tripID := vehicle.TripID(); tripID != "" {
				arrivalsByTrip[tripID] = append(arrivalsByTrip[tripID], ts)
			}
		}

		for _, pred := range preds.Data {
			if route := pred.RouteID(); route != "" && route != routeID {
				continue
			}
			if pred.StopID() != boardingStop {
				continue
			}
			if !directionMatches(pred, directionID) {
				continue
			}

			tripID := pred.TripID()
			if tripID == "" {
				skippedMissingTrip++
				continue
			}

			dep, ok := pred.DepartureTime()
			if !ok {
				continue
			}

			minutesUntil := dep.Sub(ts).Minutes()
			if minutesUntil <= 0 {
				skippedPastDeparture++
				continue
			}

			vehicleID := pred.VehicleID()
			if vehicleID == "" {
				skippedNoVehicle++
				continue
			}
			vehicle, present := includedVehicles[vehicleID]
			if !present {
				skippedNoVehicle++
				continue
			}

			timeNeeded, ok := scorer.TimeToLinden(vehicle.Attributes.DirectionID, vehicle.Attributes.CurrentStopSequence)
			if !ok {
				skippedMissingEstimate++
				continue
			}

			totalPredictions++
			samplesByTrip[tripID] = append(samplesByTrip[tripID], feasibilitySample{
				tripID:             tripID,
				predictionTime:     ts,
				predictedDeparture: dep,
				classification:     scorer.Classify(timeNeeded, minutesUntil),
				availableMin:       minutesUntil,
				timeNeededMin:      timeNeeded,
				vehicleID:          vehicleID,
				vehicleDirection:   vehicle.Attributes.DirectionID,
				vehicleSeq:         vehicle.Attributes.CurrentStopSequence,
			})
		}
	}

	result := evaluateFeasibility(samplesByTrip, arrivalsByTrip)

	fmt.Fprintf(w, "Feasibility backtest summary\n")
	fmt.Fprintf(w, "Total predictions scored: %d\n", totalPredictions)
	fmt.Fprintf(w, "Skipped (no vehicle): %d\n", skippedNoVehicle)
	fmt.Fprintf(w, "Skipped (past departure): %d\n", skippedPastDeparture)
	fmt.Fprintf(w, "Skipped (missing trip): %d\n", skippedMissingTrip)
	fmt.Fprintf(w, "Skipped (missing time needed): %d\n", skippedMissingEstimate)

	fmt.Fprintf(w, "\nOutcome counts:\n")
	for _, outcome := range []string{"on_time", "late", "miss"} {
		fmt.Fprintf(w, "  %s: %d\n", outcome, result.outcomes[outcome])
	}

	fmt.Fprintf(w, "\nClassification counts:\n")
	for _, class := range []string{scorer.Good, scorer.Risky, scorer.Bad} {
		fmt.Fprintf(w, "  %s: %d\n", class, result.classCounts[class])
	}

	fmt.Fprintf(w, "\nClassification x outcome:\n")
	for _, class := range []string{scorer.Good, scorer.Risky, scorer.Bad} {
		for _, outcome := range []string{"on_time", "late", "miss"} {
			fmt.Fprintf(w, "  %s / %s: %d\n", class, outcome, result.classOutcome[[2]string{class, outcome}])
		}
	}

	fmt.Fprintf(w, "\nError distributions (minutes, actual - predicted):\n")
	for _, class := range []string{scorer.Good, scorer.Risky, scorer.Bad} {
		fmt.Fprintf(w, "  %s: %s\n", class, summarizeErrors(result.deltasByClass[class]))
	}

	fmt.Fprintf(w, "\nBAD precision/recall vs failures (late or miss):\n")
	fmt.Fprintf(w, "  Precision: %.3f\n", result.precision)
	fmt.Fprintf(w, "  Recall: %.3f\n", result.recall)

	writeExamples(w, "Examples (BAD predicted, failure observed):", result.correctBad)
	writeExamples(w, "Examples (BAD predicted, but on-time):", result.incorrectBad)
	writeExamples(w, "Examples (GOOD/RISKY predicted, but failure):", result.incorrectGood)
	writeExamples(w, "False-negative details (for threshold tuning):", result.falseNegatives)

	return nil
}

type feasibilityResult struct {
	outcomes       map[string]int
	classCounts    map[string]int
	classOutcome   map[[2]string]int
	deltasByClass  map[string][]float64
	precision      float64
	recall         float64
	correctBad     []string
	incorrectBad   []string
	incorrectGood  []string
	falseNegatives []string
}

func evaluateFeasibility(samplesByTrip map[string][]feasibilitySample, arrivalsByTrip map[string][]time.Time) feasibilityResult {
	result := feasibilityResult{
		outcomes:      make(map[string]int),
		classCounts:   make(map[string]int),
		classOutcome:  make(map[[2]string]int),
		deltasByClass: make(map[string][]float64),
	}

	var tp, fp, fn int

	tripIDs := make([]string, 0, len(samplesByTrip))
	for tripID := range samplesByTrip {
		tripIDs = append(tripIDs, tripID)
	}
	sort.Strings(tripIDs)

	for _, tripID := range tripIDs {
		samples := samplesByTrip[tripID]
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].predictionTime.Before(samples[j].predictionTime)
		})
		arrivals := append([]time.Time(nil), arrivalsByTrip[tripID]...)
		sort.Slice(arrivals, func(i, j int) bool { return arrivals[i].Before(arrivals[j]) })

		arrivalIdx := 0
		for _, sample := range samples {
			var arrival *time.Time
			for arrivalIdx < len(arrivals) {
				candidate := arrivals[arrivalIdx]
				if !candidate.Before(sample.predictionTime) {
					if candidate.Sub(sample.predictionTime).Minutes() <= arrivalMatchWindowMin {
						arrival = &candidate
					}
					break
				}
				arrivalIdx++
			}

			outcome, isFailure, delta := classifyOutcome(sample, arrival)
			result.outcomes[outcome]++
			result.classCounts[sample.classification]++
			result.classOutcome[[2]string{sample.classification, outcome}]++
			if delta != nil && (outcome == "on_time" || outcome == "late") {
				result.deltasByClass[sample.classification] = append(result.deltasByClass[sample.classification], *delta)
			}

			predictedBad := sample.classification == scorer.Bad
			switch {
			case predictedBad && isFailure:
				tp++
				if len(result.correctBad) < 3 {
					result.correctBad = append(result.correctBad, sampleExample(sample, arrival, delta))
				}
			case predictedBad && !isFailure:
				fp++
				if len(result.incorrectBad) < 3 {
					result.incorrectBad = append(result.incorrectBad, sampleExample(sample, arrival, delta))
				}
			case !predictedBad && isFailure:
				fn++
				if len(result.incorrectGood) < 3 {
					result.incorrectGood = append(result.incorrectGood, sampleExample(sample, arrival, delta))
				}
				if len(result.falseNegatives) < 5 {
					result.falseNegatives = append(result.falseNegatives, falseNegativeDetail(sample, arrival, delta))
				}
			}
		}
	}

	if tp+fp > 0 {
		result.precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		result.recall = float64(tp) / float64(tp+fn)
	}
	return result
}

func classifyOutcome(sample feasibilitySample, arrival *time.Time) (outcome string, isFailure bool, delta *float64) {
	if arrival == nil {
		return "miss", true, nil
	}
	d := arrival.Sub(sample.predictedDeparture).Minutes()
	delta = &d
	abs := d
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 30:
		return "miss", true, delta
	case abs <= onTimeWindowMin:
		return "on_time", false, delta
	case d > onTimeWindowMin && d <= lateWindowMin:
		return "late", true, delta
	default:
		return "miss", true, delta
	}
}

func sampleExample(sample feasibilitySample, arrival *time.Time, delta *float64) string {
	actual := "missing"
	if arrival != nil {
		actual = arrival.Format(time.RFC3339)
	}
	deltaText := "n/a"
	if delta != nil {
		deltaText = fmt.Sprintf("%.1f", *delta)
	}
	return fmt.Sprintf("%s pred=%s actual=%s delta=%s",
		sample.tripID, sample.predictedDeparture.Format(time.RFC3339), actual, deltaText)
}

func falseNegativeDetail(sample feasibilitySample, arrival *time.Time, delta *float64) string {
	actual := "missing"
	if arrival != nil {
		actual = arrival.Format(time.RFC3339)
	}
	deltaText := "n/a"
	if delta != nil {
		deltaText = fmt.Sprintf("%.1f", *delta)
	}
	return fmt.Sprintf("trip=%s class=%s avail=%.1f need=%.1f veh_dir=%s seq=%s pred=%s actual=%s delta=%s",
		sample.tripID, sample.classification, sample.availableMin, sample.timeNeededMin,
		intOrNA(sample.vehicleDirection), intOrNA(sample.vehicleSeq),
		sample.predictedDeparture.Format(time.RFC3339), actual, deltaText)
}

func intOrNA(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *v)
}

func summarizeErrors(values []float64) string {
	if len(values) == 0 {
		return "n/a"
	}
	return fmt.Sprintf("mean %.1f, median %.1f, p75 %.1f",
		stats.Mean(values), stats.Median(values), stats.Percentile(values, 0.75))
}

func writeExamples(w io.Writer, heading string, examples []string) {
	if len(examples) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", heading)
	for _, example := range examples {
		fmt.Fprintf(w, "  %s\n", example)
	}
}

// predictionVehicleMap indexes side-loaded vehicle resources.
func predictionVehicleMap(included []mbta.Resource) map[string]mbta.Resource {
	result := make(map[string]mbta.Resource)
	for _, res := range included {
		if res.Type != "vehicle" || res.ID == "" {
			continue
		}
		result[res.ID] = res
	}
	return result
}
