package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/route109-tracker/internal/analysis"
	"github.com/route109-tracker/internal/collector"
	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/display"
	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/preview"
	"github.com/route109-tracker/internal/scorer"
	"github.com/route109-tracker/internal/trips"
)

var (
	predictionsPath string
	vehiclesPath    string
	routeID         string
	boardingStop    string
	terminalStop    string
	directionID     int
)

func main() {
	root := &cobra.Command{
		Use:          "analyze",
		Short:        "Offline analysis over the recorded Route 109 JSONL logs",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&predictionsPath, "predictions", "logs/predictions.jsonl", "raw predictions JSONL log")
	root.PersistentFlags().StringVar(&vehiclesPath, "vehicles", "logs/vehicles.jsonl", "raw vehicles JSONL log")
	root.PersistentFlags().StringVar(&routeID, "route", analysis.DefaultRouteID, "route id")
	root.PersistentFlags().StringVar(&boardingStop, "stop", analysis.BoardingStop, "boarding stop id")
	root.PersistentFlags().StringVar(&terminalStop, "terminal", analysis.TerminalStop, "terminal stop id")
	root.PersistentFlags().IntVar(&directionID, "direction", analysis.BoardingDirection, "direction id at the boarding stop")

	root.AddCommand(
		predictionsCmd(),
		durationsCmd(),
		disappearingCmd(),
		coverageCmd(),
		backtestCmd(),
		stopsCmd(),
		renderCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func predictionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predictions",
		Short: "Prediction quality: assignment lead times, gaps, and departure revisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.PredictionQuality(predictionsPath, boardingStop, terminalStop, directionID, cmd.OutOrStdout())
		},
	}
}

func durationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trip-durations",
		Short: "End-to-end trip durations and turnarounds reconstructed from vehicle logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.TripDurations(vehiclesPath, routeID, cmd.OutOrStdout())
		},
	}
}

func disappearingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disappearing",
		Short: "Trips whose predictions vanish before the scheduled departure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Disappearing(predictionsPath, boardingStop, directionID, cmd.OutOrStdout())
		},
	}
}

func coverageCmd() *cobra.Command {
	var oldStop string
	var oldDirection int
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Compare prediction coverage between the current and legacy boarding stops",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := analysis.CoverageParams{
				NewStop:      boardingStop,
				NewDirection: directionID,
				OldStop:      oldStop,
				OldDirection: oldDirection,
			}
			return analysis.Coverage(predictionsPath, params, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&oldStop, "old-stop", analysis.LegacyBoardingStop, "legacy boarding stop id")
	cmd.Flags().IntVar(&oldDirection, "old-direction", analysis.LegacyDirection, "legacy direction id")
	return cmd
}

func backtestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay recorded logs against the reliability scorer",
	}

	var boardingSeq int
	feasibility := &cobra.Command{
		Use:   "feasibility",
		Short: "Score every recorded prediction and compare against the observed outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.BacktestFeasibility(predictionsPath, vehiclesPath, routeID, boardingStop, directionID, boardingSeq, cmd.OutOrStdout())
		},
	}
	feasibility.Flags().IntVar(&boardingSeq, "boarding-seq", scorer.BoardingStopSeq, "stop sequence of the boarding stop")

	arrivals := &cobra.Command{
		Use:   "arrivals",
		Short: "Prediction error against observed arrivals, bucketed by lead time and position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.BacktestArrivals(predictionsPath, vehiclesPath, routeID, boardingStop, directionID, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(feasibility, arrivals)
	return cmd
}

func stopsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stops [name...]",
		Short: "List the stops of the route's typical pattern, highlighting name matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(zerolog.WarnLevel, logger.ConsoleWriter())
			client := mbta.NewClient(os.Getenv("MBTA_API_KEY"), log)
			return analysis.RouteStops(context.Background(), client, routeID, args, cmd.OutOrStdout())
		},
	}
}

func renderCmd() *cobra.Command {
	var outputPath string
	var schedulePath string
	var snapshotPath string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one departure-board frame from the first recorded snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshotPath != "" {
				return renderFromSnapshot(snapshotPath, outputPath, schedulePath, cmd)
			}
			return renderFrame(outputPath, schedulePath, cmd)
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "frame.png", "PNG output path")
	cmd.Flags().StringVar(&schedulePath, "schedules", "logs/schedule_snapshots.jsonl", "schedule snapshot JSONL log")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "render from a flattened collector log instead of the raw logs")
	return cmd
}

// renderFrame replays the first raw log entry through the live frame
// pipeline so layout changes can be eyeballed without hitting the API.
func renderFrame(outputPath, schedulePath string, cmd *cobra.Command) error {
	predEntry, err := firstEntry(predictionsPath)
	if err != nil {
		return err
	}
	vehEntry, err := firstEntry(vehiclesPath)
	if err != nil {
		return err
	}

	at, ok := predEntry.Time()
	if !ok {
		return fmt.Errorf("first entry of %s has no parseable timestamp", predictionsPath)
	}

	var boarding []mbta.Resource
	for _, pred := range predEntry.Data.Data {
		if pred.StopID() != boardingStop {
			continue
		}
		if dir := pred.Attributes.DirectionID; dir != nil && *dir != directionID {
			continue
		}
		boarding = append(boarding, pred)
	}

	log := logger.New(zerolog.WarnLevel, logger.ConsoleWriter())
	builder := preview.NewFrameBuilder(schedulePath, log)
	data := builder.Build(&preview.Snapshot{
		Predictions: boarding,
		Vehicles:    vehEntry.Data.Data,
		FetchedAt:   at,
	}, at)

	if err := display.SavePNG(display.Compose(data), outputPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d trips as of %s to %s\n", len(data.Trips), at.Format("2006-01-02 15:04:05"), outputPath)
	return nil
}

// renderFromSnapshot rebuilds API resources from a flattened collector
// snapshot so the same frame pipeline can replay it.
func renderFromSnapshot(snapshotPath, outputPath, schedulePath string, cmd *cobra.Command) error {
	scanner, err := jsonl.Open[collector.SnapshotRecord](snapshotPath)
	if err != nil {
		return err
	}
	defer scanner.Close()
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return fmt.Errorf("no entries in %s", snapshotPath)
	}
	record := scanner.Entry()

	at, err := time.Parse(time.RFC3339, record.Timestamp)
	if err != nil {
		return fmt.Errorf("first entry of %s has no parseable timestamp", snapshotPath)
	}

	boarding := make([]mbta.Resource, 0, len(record.Boarding.Predictions))
	for _, pred := range record.Boarding.Predictions {
		res := mbta.Resource{
			Type: "prediction",
			Attributes: mbta.Attributes{
				DepartureTime:        pred.DepartureTime,
				ArrivalTime:          pred.ArrivalTime,
				StopSequence:         pred.StopSequence,
				ScheduleRelationship: pred.ScheduleRelationship,
			},
			Relationships: map[string]mbta.Relationship{},
		}
		if pred.TripID != nil {
			res.Relationships["trip"] = mbta.Relationship{Data: &mbta.ResourceRef{ID: *pred.TripID, Type: "trip"}}
		}
		if pred.VehicleID != nil {
			res.Relationships["vehicle"] = mbta.Relationship{Data: &mbta.ResourceRef{ID: *pred.VehicleID, Type: "vehicle"}}
		}
		boarding = append(boarding, res)
	}

	fleet := make([]mbta.Resource, 0, len(record.Fleet))
	for _, veh := range record.Fleet {
		fleet = append(fleet, mbta.Resource{
			ID:   veh.VehicleID,
			Type: "vehicle",
			Attributes: mbta.Attributes{
				DirectionID:         veh.DirectionID,
				CurrentStopSequence: veh.CurrentStopSequence,
				CurrentStatus:       veh.CurrentStatus,
				UpdatedAt:           veh.UpdatedAt,
			},
		})
	}

	log := logger.New(zerolog.WarnLevel, logger.ConsoleWriter())
	builder := preview.NewFrameBuilder(schedulePath, log)
	data := builder.Build(&preview.Snapshot{
		Predictions: boarding,
		Vehicles:    fleet,
		FetchedAt:   at,
	}, at)

	if err := display.SavePNG(display.Compose(data), outputPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d trips as of %s to %s\n", len(data.Trips), at.Format("2006-01-02 15:04:05"), outputPath)
	return nil
}

func firstEntry(path string) (*trips.RawEntry, error) {
	scanner, err := jsonl.Open[trips.RawEntry](path)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no entries in %s", path)
	}
	entry := scanner.Entry()
	return &entry, nil
}
