// Package preview drives the live departure board: a background poller, a
// frame builder with per-trip trend tracking, and a small web server.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/route109-tracker/internal/common/config"
	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/mbta"
)

// Snapshot is the latest poll of boarding predictions and fleet vehicles.
type Snapshot struct {
	Predictions []mbta.Resource
	Vehicles    []mbta.Resource
	FetchedAt   time.Time
	Err         error
}

// API is the slice of the MBTA client the poller uses.
type API interface {
	Predictions(ctx context.Context, routeID, stopID string, directionID int, fields string) ([]mbta.Resource, error)
	Vehicles(ctx context.Context, routeID string) ([]mbta.Resource, error)
}

// Poller refreshes the snapshot on an adaptive interval: fast when a
// departure is close, slow otherwise.
type Poller struct {
	cfg    config.MBTAConfig
	api    API
	logger logger.Logger

	fastInterval time.Duration
	slowInterval time.Duration

	mu     sync.RWMutex
	latest *Snapshot

	// nextFast is set by the render loop when a departure is within the
	// fast window.
	nextFast bool
}

func NewPoller(cfg config.MBTAConfig, api API, log logger.Logger) *Poller {
	return &Poller{
		cfg:          cfg,
		api:          api,
		logger:       log,
		fastInterval: 5 * time.Second,
		slowInterval: 10 * time.Second,
	}
}

// Latest returns the most recent snapshot, or nil before the first poll.
func (p *Poller) Latest() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// SetFast switches the next poll delay to the fast interval.
func (p *Poller) SetFast(fast bool) {
	p.mu.Lock()
	p.nextFast = fast
	p.mu.Unlock()
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Preview poller starting", "route_id", p.cfg.RouteID, "boarding_stop_id", p.cfg.BoardingStopID)

	for {
		snapshot := p.fetchOnce(ctx)
		p.mu.Lock()
		p.latest = snapshot
		delay := p.slowInterval
		if p.nextFast {
			delay = p.fastInterval
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.logger.Info("Preview poller stopped")
			return nil
		case <-time.After(delay):
		}
	}
}

func (p *Poller) fetchOnce(ctx context.Context) *Snapshot {
	predictions, err := p.api.Predictions(ctx, p.cfg.RouteID, p.cfg.BoardingStopID, p.cfg.DirectionID, "")
	if err != nil {
		return p.degraded(err)
	}
	vehicles, err := p.api.Vehicles(ctx, p.cfg.RouteID)
	if err != nil {
		return p.degraded(err)
	}

	return &Snapshot{
		Predictions: predictions,
		Vehicles:    vehicles,
		FetchedAt:   time.Now(),
	}
}

// degraded keeps the last good data on screen through a failed poll. The
// old FetchedAt is carried forward so the staleness checks see the data
// aging instead of a fresh but empty snapshot.
func (p *Poller) degraded(err error) *Snapshot {
	p.logger.Warn("Preview poll failed", "error", err)

	snapshot := &Snapshot{Err: err, FetchedAt: time.Now()}
	if prev := p.Latest(); prev != nil {
		snapshot.Predictions = prev.Predictions
		snapshot.Vehicles = prev.Vehicles
		snapshot.FetchedAt = prev.FetchedAt
	}
	return snapshot
}
