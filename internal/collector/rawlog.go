package collector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/mbta"
)

// RawAPI is the slice of the MBTA client the raw logger uses.
type RawAPI interface {
	PredictionsWithVehicles(ctx context.Context, routeID string) (*mbta.RawDocument, error)
	VehiclesRaw(ctx context.Context, routeID string) (*mbta.RawDocument, error)
}

// rawEntry wraps the undecoded API body so the log preserves exactly what
// the API returned.
type rawEntry struct {
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type errorEntry struct {
	Timestamp string `json:"timestamp"`
	Error     string `json:"error"`
}

// RawLogger appends full prediction and vehicle API payloads per poll.
// These logs feed the backtests, which need relationships and included
// resources the flattened snapshots drop.
type RawLogger struct {
	routeID  string
	interval time.Duration
	api      RawAPI
	logger   logger.Logger

	predictions *jsonl.Appender
	vehicles    *jsonl.Appender
	errors      *jsonl.Appender
}

func NewRawLogger(routeID string, interval time.Duration, api RawAPI, log logger.Logger, predictionsPath, vehiclesPath, errorsPath string) (*RawLogger, error) {
	predictions, err := jsonl.OpenAppender(predictionsPath)
	if err != nil {
		return nil, err
	}
	vehicles, err := jsonl.OpenAppender(vehiclesPath)
	if err != nil {
		predictions.Close()
		return nil, err
	}
	errors, err := jsonl.OpenAppender(errorsPath)
	if err != nil {
		predictions.Close()
		vehicles.Close()
		return nil, err
	}
	return &RawLogger{
		routeID:     routeID,
		interval:    interval,
		api:         api,
		logger:      log,
		predictions: predictions,
		vehicles:    vehicles,
		errors:      errors,
	}, nil
}

func (r *RawLogger) Close() {
	r.predictions.Close()
	r.vehicles.Close()
	r.errors.Close()
}

func (r *RawLogger) Run(ctx context.Context) error {
	r.logger.Info("Raw logger starting", "route_id", r.routeID, "poll_interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Raw logger stopped")
			return nil
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

func (r *RawLogger) pollOnce(ctx context.Context) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	predictions, err := r.api.PredictionsWithVehicles(ctx, r.routeID)
	if err == nil {
		err = r.predictions.Append(rawEntry{Timestamp: timestamp, Data: predictions.Body})
	}
	if err == nil {
		var vehicles *mbta.RawDocument
		vehicles, err = r.api.VehiclesRaw(ctx, r.routeID)
		if err == nil {
			err = r.vehicles.Append(rawEntry{Timestamp: timestamp, Data: vehicles.Body})
		}
	}

	if err != nil {
		r.logger.Warn("Raw poll failed", "error", err)
		if appendErr := r.errors.Append(errorEntry{Timestamp: timestamp, Error: err.Error()}); appendErr != nil {
			r.logger.Error("Error log append failed", "error", appendErr)
		}
	}
}
