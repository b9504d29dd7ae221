package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/route109-tracker/internal/collector"
	"github.com/route109-tracker/internal/common/alert"
	"github.com/route109-tracker/internal/common/config"
	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/mbta"
)

const rawPollInterval = 60 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	dataDir := flag.String("data-dir", "logs", "directory for the JSONL snapshot logs")
	withRaw := flag.Bool("raw", false, "also run the raw API logger alongside the collector")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(filepath.Join(cfg.Logging.LogDir, cfg.Logging.FilePath)),
	)

	log.Info("Route 109 collector starting",
		"route", cfg.MBTA.RouteID,
		"boarding_stop", cfg.MBTA.BoardingStopID,
		"terminal_stop", cfg.MBTA.TerminalStopID,
		"poll_interval", cfg.MBTA.PollInterval().String(),
		"log_level", cfg.Logging.Level,
	)
	if cfg.MBTA.APIKey == "" {
		log.Warn("No MBTA_API_KEY set, running at the anonymous rate limit")
	}

	client := mbta.NewClient(cfg.MBTA.APIKey, log)
	notifier := alert.NewNotifier(cfg.Alerts.WebhookURL)

	coll, err := collector.New(cfg.MBTA, client, log, notifier,
		filepath.Join(*dataDir, "route109_inbound.jsonl"),
		filepath.Join(*dataDir, "schedule_snapshots.jsonl"),
	)
	if err != nil {
		log.Fatal("Failed to open snapshot logs", "error", err)
	}
	defer coll.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := coll.Run(ctx); err != nil {
			log.Error("Collector stopped", "error", err)
		}
	}()

	if *withRaw {
		raw, err := collector.NewRawLogger(cfg.MBTA.RouteID, rawPollInterval, client, log,
			filepath.Join(*dataDir, "predictions.jsonl"),
			filepath.Join(*dataDir, "vehicles.jsonl"),
			filepath.Join(*dataDir, "errors.jsonl"),
		)
		if err != nil {
			log.Fatal("Failed to open raw logs", "error", err)
		}
		defer raw.Close()

		log.Info("Starting raw API logger", "interval", rawPollInterval.String())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := raw.Run(ctx); err != nil {
				log.Error("Raw logger stopped", "error", err)
			}
		}()
	}

	<-sigChan
	log.Info("Shutdown signal received")

	cancel()
	wg.Wait()

	log.Info("Route 109 collector stopped")
}
