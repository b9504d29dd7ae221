// Package collector polls the MBTA API for one route and appends flattened
// snapshots to the JSONL logs the analysis commands read.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/route109-tracker/internal/common/alert"
	"github.com/route109-tracker/internal/common/config"
	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/mbta"
)

const (
	scheduleSnapshotInterval = time.Hour
	alertAfterFailures       = 5
)

// API is the slice of the MBTA client the collector uses.
type API interface {
	Predictions(ctx context.Context, routeID, stopID string, directionID int, fields string) ([]mbta.Resource, error)
	Vehicles(ctx context.Context, routeID string) ([]mbta.Resource, error)
	Schedules(ctx context.Context, routeID, stopID string, directionID int) ([]mbta.Resource, error)
}

type Collector struct {
	cfg      config.MBTAConfig
	api      API
	logger   logger.Logger
	notifier *alert.Notifier

	snapshots *jsonl.Appender
	schedules *jsonl.Appender

	lastScheduleSnapshot time.Time
	failureStreak        int
}

func New(cfg config.MBTAConfig, api API, log logger.Logger, notifier *alert.Notifier, snapshotPath, schedulePath string) (*Collector, error) {
	snapshots, err := jsonl.OpenAppender(snapshotPath)
	if err != nil {
		return nil, err
	}
	schedules, err := jsonl.OpenAppender(schedulePath)
	if err != nil {
		snapshots.Close()
		return nil, err
	}
	return &Collector{
		cfg:       cfg,
		api:       api,
		logger:    log,
		notifier:  notifier,
		snapshots: snapshots,
		schedules: schedules,
	}, nil
}

func (c *Collector) Close() {
	c.snapshots.Close()
	c.schedules.Close()
}

// Run polls until the context is cancelled. One failed poll writes an
// error snapshot and the loop continues.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("Collector starting",
		"route_id", c.cfg.RouteID,
		"direction_id", c.cfg.DirectionID,
		"boarding_stop_id", c.cfg.BoardingStopID,
		"terminal_stop_id", c.cfg.TerminalStopID,
		"poll_interval", c.cfg.PollInterval(),
	)

	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()

	c.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Collector stopped")
			return nil
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Collector) pollOnce(ctx context.Context) {
	timestamp := time.Now().UTC()
	record := SnapshotRecord{
		Timestamp: timestamp.Format(time.RFC3339),
		Boarding:  PredictionGroup{Predictions: []PredictionRecord{}},
		Terminal:  PredictionGroup{Predictions: []PredictionRecord{}},
		Fleet:     []VehicleRecord{},
	}

	if err := c.fetchInto(ctx, &record); err != nil {
		message := err.Error()
		record.Error = &message
		c.failureStreak++
		c.logger.Warn("Poll failed", "error", err, "consecutive_failures", c.failureStreak)
		if c.notifier != nil && c.failureStreak == alertAfterFailures {
			if alertErr := c.notifier.FetchFailure(c.failureStreak, err); alertErr != nil {
				c.logger.Warn("Alert delivery failed", "error", alertErr)
			}
		}
	} else {
		if c.failureStreak >= alertAfterFailures && c.notifier != nil {
			if alertErr := c.notifier.Recovered(c.failureStreak); alertErr != nil {
				c.logger.Warn("Alert delivery failed", "error", alertErr)
			}
		}
		c.failureStreak = 0
		c.logger.Debug("Poll complete",
			"boarding_predictions", len(record.Boarding.Predictions),
			"terminal_predictions", len(record.Terminal.Predictions),
			"fleet", len(record.Fleet),
		)
	}

	if err := c.snapshots.Append(record); err != nil {
		c.logger.Error("Snapshot append failed", "error", err)
	}

	if timestamp.Sub(c.lastScheduleSnapshot) >= scheduleSnapshotInterval {
		c.snapshotSchedules(ctx, timestamp)
		c.lastScheduleSnapshot = timestamp
	}
}

func (c *Collector) fetchInto(ctx context.Context, record *SnapshotRecord) error {
	boarding, err := c.api.Predictions(ctx, c.cfg.RouteID, c.cfg.BoardingStopID, c.cfg.DirectionID, mbta.PredictionFieldsBoarding)
	if err != nil {
		return fmt.Errorf("boarding predictions: %w", err)
	}
	terminal, err := c.api.Predictions(ctx, c.cfg.RouteID, c.cfg.TerminalStopID, c.cfg.DirectionID, mbta.PredictionFieldsTerminal)
	if err != nil {
		return fmt.Errorf("terminal predictions: %w", err)
	}
	fleet, err := c.api.Vehicles(ctx, c.cfg.RouteID)
	if err != nil {
		return fmt.Errorf("vehicles: %w", err)
	}

	for _, pred := range boarding {
		record.Boarding.Predictions = append(record.Boarding.Predictions, FlattenBoardingPrediction(pred))
	}
	for _, pred := range terminal {
		record.Terminal.Predictions = append(record.Terminal.Predictions, FlattenTerminalPrediction(pred))
	}
	for _, vehicle := range fleet {
		record.Fleet = append(record.Fleet, FlattenVehicle(vehicle))
	}
	return nil
}

func (c *Collector) snapshotSchedules(ctx context.Context, timestamp time.Time) {
	record := ScheduleSnapshotRecord{
		Timestamp: timestamp.Format(time.RFC3339),
		Boarding:  ScheduleGroup{Schedules: []ScheduleRecord{}},
		Terminal:  ScheduleGroup{Schedules: []ScheduleRecord{}},
	}

	boarding, boardingErr := c.api.Schedules(ctx, c.cfg.RouteID, c.cfg.BoardingStopID, c.cfg.DirectionID)
	terminal, terminalErr := c.api.Schedules(ctx, c.cfg.RouteID, c.cfg.TerminalStopID, c.cfg.DirectionID)
	if boardingErr != nil || terminalErr != nil {
		err := boardingErr
		if err == nil {
			err = terminalErr
		}
		message := err.Error()
		record.Error = &message
		c.logger.Warn("Schedule snapshot failed", "error", err)
	}
	for _, schedule := range boarding {
		record.Boarding.Schedules = append(record.Boarding.Schedules, FlattenSchedule(schedule))
	}
	for _, schedule := range terminal {
		record.Terminal.Schedules = append(record.Terminal.Schedules, FlattenSchedule(schedule))
	}

	if err := c.schedules.Append(record); err != nil {
		c.logger.Error("Schedule snapshot append failed", "error", err)
	}
}
