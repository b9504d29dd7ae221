package preview

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/route109-tracker/internal/common/logger"
	"github.com/route109-tracker/internal/display"
)

const (
	renderInterval = 2 * time.Second
	fastWindowMin  = 15.0
)

const indexPage = `<!DOCTYPE html>
<html>
<head>
<title>Route 109 Departures</title>
<meta http-equiv="refresh" content="10">
<style>
body { background: #111; text-align: center; padding-top: 40px; }
img { width: 768px; height: 384px; image-rendering: pixelated; border: 1px solid #333; }
</style>
</head>
<body>
<img src="/frame.png" alt="departure board">
</body>
</html>
`

// Server renders the departure board on a timer and serves it over HTTP.
type Server struct {
	poller     *Poller
	builder    *FrameBuilder
	logger     logger.Logger
	outputPath string

	mu    sync.RWMutex
	frame []byte
}

// NewServer wires the render loop to the poller. outputPath may be empty;
// when set, each rendered frame is also written there as a PNG.
func NewServer(poller *Poller, builder *FrameBuilder, outputPath string, log logger.Logger) *Server {
	return &Server{
		poller:     poller,
		builder:    builder,
		logger:     log,
		outputPath: outputPath,
	}
}

// Run renders frames until the context is cancelled.
func (s *Server) Run(ctx context.Context) {
	for {
		s.renderOnce(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(renderInterval):
		}
	}
}

func (s *Server) renderOnce(now time.Time) {
	snapshot := s.poller.Latest()
	if snapshot == nil {
		return
	}

	data := s.builder.Build(snapshot, now)
	data.TickerText = tickerText(snapshot, now)
	s.poller.SetFast(anyImminent(data.Trips))

	img := display.Compose(data)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.logger.Error("Failed to encode frame", "error", err)
		return
	}

	s.mu.Lock()
	s.frame = buf.Bytes()
	s.mu.Unlock()

	if s.outputPath != "" {
		if err := display.SavePNG(img, s.outputPath); err != nil {
			s.logger.Error("Failed to save frame", "error", err, "path", s.outputPath)
		}
	}

	s.logger.Debug("Frame rendered", "trips", len(data.Trips), "fetched_at", snapshot.FetchedAt)
}

func anyImminent(trips []display.TripRow) bool {
	for _, trip := range trips {
		if !trip.Departed && !trip.Cancelled && trip.MinutesAway <= fastWindowMin {
			return true
		}
	}
	return false
}

// tickerText surfaces feed problems on the bottom strip.
func tickerText(snapshot *Snapshot, now time.Time) string {
	if snapshot.Err != nil {
		return "API ERROR - SHOWING LAST KNOWN DATA"
	}
	if age := now.Sub(snapshot.FetchedAt); age > 2*time.Minute {
		return fmt.Sprintf("DATA STALE (%.0fs OLD)", age.Seconds())
	}
	if len(snapshot.Predictions) == 0 {
		return "NO UPCOMING DEPARTURES"
	}
	return ""
}

// Router exposes the board page, the raw frame, and a health probe.
func (s *Server) Router() *httprouter.Router {
	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/frame.png", s.handleFrame)
	router.GET("/healthz", s.handleHealth)
	return router
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.RLock()
	frame := s.frame
	s.mu.RUnlock()

	if frame == nil {
		http.Error(w, "no frame rendered yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	snapshot := s.poller.Latest()
	if snapshot == nil || time.Since(snapshot.FetchedAt) > 2*time.Minute {
		http.Error(w, "stale", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
