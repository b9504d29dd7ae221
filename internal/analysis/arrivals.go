package analysis

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/stats"
	"github.com/route109-tracker/internal/trips"
)

type arrivalBucketSample struct {
	predictedDeparture time.Time
	timeBucket         string
	positionBucket     string
}

var timeBuckets = []leadBin{
	{">30", 30, math.Inf(1)},
	{"15-30", 15, 30},
	{"<15", math.Inf(-1), 15},
}

var positionBuckets = []struct {
	label string
	low   float64
	high  float64
}{
	{"early", 0.0, 1.0 / 3.0},
	{"mid", 1.0 / 3.0, 2.0 / 3.0},
	{"late", 2.0 / 3.0, 1.1},
}

// BacktestArrivals measures departure-prediction error at the boarding stop
// bucketed by prediction lead time and by how far along its run the
// assigned vehicle was.
func BacktestArrivals(predictionsPath, vehiclesPath, routeID, boardingStop string, directionID int, w io.Writer) error {
	stopSeq, maxSeqByDir, err := inferBoardingSeq(predictionsPath, vehiclesPath, routeID, boardingStop, directionID)
	if err != nil {
		return err
	}
	if stopSeq == nil {
		fmt.Fprintf(w, "Unable to infer stop sequence for stop %s; no matches found.\n", boardingStop)
		return nil
	}
	fmt.Fprintf(w, "Inferred stop %s sequence (direction %d): %d\n", boardingStop, directionID, *stopSeq)

	aligned, err := trips.NewAlignedScanner(predictionsPath, vehiclesPath)
	if err != nil {
		return err
	}
	defer aligned.Close()

	pending := make(map[string][]arrivalBucketSample)
	arrivalTimes := make(map[string]time.Time)
	deltas := make(map[string]map[string][]float64)

	var totalPredictions, matchedPredictions, missingVehicle int

	for aligned.Scan() {
		ts := aligned.Time()
		preds := aligned.Predictions()
		vehicleDoc := aligned.Vehicles()
		vehicleMap := routeVehicleMap(vehicleDoc.Data, routeID)

		for _, pred := range preds.Data {
			if !directionMatches(pred, directionID) {
				continue
			}
			if pred.StopID() != boardingStop {
				continue
			}
			if route := pred.RouteID(); route != "" && route != routeID {
				continue
			}

			tripID := pred.TripID()
			if tripID == "" {
				continue
			}
			dep, ok := pred.DepartureTime()
			if !ok {
				continue
			}
			vehicleID := pred.VehicleID()
			if vehicleID == "" {
				continue
			}
			totalPredictions++

			minutes := dep.Sub(ts).Minutes()
			if minutes <= 0 {
				continue
			}
			timeBucket := bucketLeadTime(minutes)

			vehicle, present := vehicleMap[vehicleID]
			if !present {
				missingVehicle++
				continue
			}

			maxSeq := 0
			if dir := vehicle.Attributes.DirectionID; dir != nil {
				maxSeq = maxSeqByDir[*dir]
			}
			pending[tripID] = append(pending[tripID], arrivalBucketSample{
				predictedDeparture: dep,
				timeBucket:         timeBucket,
				positionBucket:     bucketPosition(vehicle.Attributes.CurrentStopSequence, maxSeq),
			})
		}

		for _, vehicle := range vehicleDoc.Data {
			if vehicle.RouteID() != routeID {
				continue
			}
			if !directionMatches(vehicle, directionID) {
				continue
			}
			seq := vehicle.Attributes.CurrentStopSequence
			if seq == nil || *seq != *stopSeq {
				continue
			}
			tripID := vehicle.TripID()
			if tripID == "" {
				continue
			}
			if _, seen := arrivalTimes[tripID]; !seen {
				arrivalTimes[tripID] = ts
			}
		}

		for tripID, samples := range pending {
			arrival, done := arrivalTimes[tripID]
			if !done {
				continue
			}
			delete(pending, tripID)
			for _, sample := range samples {
				delta := arrival.Sub(sample.predictedDeparture).Minutes()
				if math.Abs(delta) > 30 {
					continue
				}
				if deltas[sample.positionBucket] == nil {
					deltas[sample.positionBucket] = make(map[string][]float64)
				}
				deltas[sample.positionBucket][sample.timeBucket] = append(deltas[sample.positionBucket][sample.timeBucket], delta)
				matchedPredictions++
			}
		}
	}

	fmt.Fprintf(w, "\nSummary\n")
	fmt.Fprintf(w, "Total predictions with assigned vehicles: %d\n", totalPredictions)
	fmt.Fprintf(w, "Predictions missing vehicle snapshot: %d\n", missingVehicle)
	fmt.Fprintf(w, "Predictions matched to arrivals: %d\n", matchedPredictions)

	fmt.Fprintf(w, "\nAccuracy by vehicle position and prediction lead time:\n")
	for _, position := range []string{"early", "mid", "late", "unknown"} {
		timeMap, ok := deltas[position]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\nPosition: %s\n", position)
		for _, bucket := range timeBuckets {
			writeBucketSummary(w, fmt.Sprintf("  Lead %s", bucket.label), timeMap[bucket.label])
		}
	}

	type bucketError struct {
		mae        float64
		position   string
		timeBucket string
		count      int
	}
	var ranked []bucketError
	for position, timeMap := range deltas {
		for timeBucket, values := range timeMap {
			if len(values) == 0 {
				continue
			}
			ranked = append(ranked, bucketError{stats.MeanAbs(values), position, timeBucket, len(values)})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].mae > ranked[j].mae })
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	fmt.Fprintf(w, "\nMost unreliable buckets (by mean absolute error):\n")
	for _, bucket := range ranked {
		fmt.Fprintf(w, "  %s / %s: MAE %.1f min (n=%d)\n", bucket.position, bucket.timeBucket, bucket.mae, bucket.count)
	}

	return nil
}

// inferBoardingSeq finds the most common stop sequence of vehicles stopped
// at the boarding stop right around their predicted departure, plus the
// maximum observed sequence per direction.
func inferBoardingSeq(predictionsPath, vehiclesPath, routeID, boardingStop string, directionID int) (*int, map[int]int, error) {
	aligned, err := trips.NewAlignedScanner(predictionsPath, vehiclesPath)
	if err != nil {
		return nil, nil, err
	}
	defer aligned.Close()

	counts := make(map[int]int)
	maxSeqByDir := make(map[int]int)

	for aligned.Scan() {
		ts := aligned.Time()
		vehicleDoc := aligned.Vehicles()
		vehicleMap := routeVehicleMap(vehicleDoc.Data, routeID)

		for _, vehicle := range vehicleDoc.Data {
			if vehicle.RouteID() != routeID {
				continue
			}
			dir := vehicle.Attributes.DirectionID
			seq := vehicle.Attributes.CurrentStopSequence
			if dir != nil && seq != nil && *seq > maxSeqByDir[*dir] {
				maxSeqByDir[*dir] = *seq
			}
		}

		for _, pred := range aligned.Predictions().Data {
			if !directionMatches(pred, directionID) {
				continue
			}
			if pred.StopID() != boardingStop {
				continue
			}
			if route := pred.RouteID(); route != "" && route != routeID {
				continue
			}
			vehicleID := pred.VehicleID()
			if vehicleID == "" {
				continue
			}
			dep, ok := pred.DepartureTime()
			if !ok {
				continue
			}
			if math.Abs(dep.Sub(ts).Minutes()) > 1 {
				continue
			}

			vehicle, present := vehicleMap[vehicleID]
			if !present {
				continue
			}
			if !directionMatches(vehicle, directionID) {
				continue
			}
			if status := vehicle.Attributes.CurrentStatus; status == nil || *status != "STOPPED_AT" {
				continue
			}
			if seq := vehicle.Attributes.CurrentStopSequence; seq != nil {
				counts[*seq]++
			}
		}
	}

	var best *int
	bestCount := 0
	for seq, count := range counts {
		if count > bestCount || (count == bestCount && best != nil && seq < *best) {
			s := seq
			best = &s
			bestCount = count
		}
	}
	return best, maxSeqByDir, nil
}

func bucketLeadTime(minutes float64) string {
	for _, bucket := range timeBuckets {
		if minutes > bucket.low && minutes <= bucket.high {
			return bucket.label
		}
	}
	return ">30"
}

func bucketPosition(seq *int, maxSeq int) string {
	if seq == nil || maxSeq == 0 {
		return "unknown"
	}
	ratio := float64(*seq) / float64(maxSeq)
	for _, bucket := range positionBuckets {
		if ratio >= bucket.low && ratio < bucket.high {
			return bucket.label
		}
	}
	return "late"
}

func writeBucketSummary(w io.Writer, name string, values []float64) {
	if len(values) == 0 {
		fmt.Fprintf(w, "%s: 0 samples\n", name)
		return
	}
	fmt.Fprintf(w, "%s: %d samples\n", name, len(values))
	fmt.Fprintf(w, "  mean %.1f min, median %.1f, p75 %.1f, p90 %.1f\n",
		stats.Mean(values), stats.Median(values),
		stats.Percentile(values, 0.75), stats.Percentile(values, 0.90))
	fmt.Fprintf(w, "  mean absolute error %.1f min\n", stats.MeanAbs(values))
}

// routeVehicleMap indexes fleet vehicles for one route by id.
func routeVehicleMap(vehicles []mbta.Resource, routeID string) map[string]mbta.Resource {
	result := make(map[string]mbta.Resource)
	for _, vehicle := range vehicles {
		if vehicle.RouteID() != routeID {
			continue
		}
		if vehicle.ID == "" {
			continue
		}
		result[vehicle.ID] = vehicle
	}
	return result
}
