package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/route109-tracker/internal/common/config"
	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/mbta"
	"github.com/route109-tracker/internal/preview"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	dataDir := flag.String("data-dir", "logs", "directory holding the JSONL snapshot logs")
	listenAddr := flag.String("listen", ":8080", "address for the preview web server")
	outputPath := flag.String("output", "", "also write each rendered frame to this PNG path")
	noServer := flag.Bool("no-server", false, "render frames without serving HTTP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(filepath.Join(cfg.Logging.LogDir, "preview.log")),
	)

	log.Info("Route 109 preview starting",
		"route", cfg.MBTA.RouteID,
		"boarding_stop", cfg.MBTA.BoardingStopID,
		"listen", *listenAddr,
	)

	client := mbta.NewClient(cfg.MBTA.APIKey, log)
	poller := preview.NewPoller(cfg.MBTA, client, log)
	builder := preview.NewFrameBuilder(filepath.Join(*dataDir, "schedule_snapshots.jsonl"), log)
	server := preview.NewServer(poller, builder, *outputPath, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil {
			log.Error("Poller stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Run(ctx)
	}()

	var httpServer *http.Server
	if !*noServer {
		httpServer = &http.Server{
			Addr:    *listenAddr,
			Handler: server.Router(),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server stopped", "error", err)
			}
		}()
	}

	<-sigChan
	log.Info("Shutdown signal received")

	cancel()
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown error", "error", err)
		}
	}
	wg.Wait()

	log.Info("Route 109 preview stopped")
}
