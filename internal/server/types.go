package server

import (
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

// Controller is the part of the counter the HTTP surface drives.
type Controller interface {
	Snapshot() ledger.Snapshot
	Reset() error
	ToggleSwap() error
	Quit() error
	Subscribe() (<-chan counter.Outcome, func())
}

var _ Controller = (*counter.Counter)(nil)

// Server exposes live counts, control commands and annotated snapshots.
type Server struct {
	ctl         Controller
	corsOrigin  string
	jpegQuality int
	canvas      image.Rectangle

	mu     sync.RWMutex
	latest *counter.Outcome

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	ShutdownTimeout time.Duration
	JPEGQuality     int
	// Canvas size used for snapshots before the first frame arrives.
	CanvasWidth  int
	CanvasHeight int
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		ShutdownTimeout: 10 * time.Second,
		JPEGQuality:     80,
		CanvasWidth:     640,
		CanvasHeight:    480,
	}
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// CountsResponse is returned by /api/counts and the command endpoints.
type CountsResponse struct {
	In        int    `json:"in"`
	Out       int    `json:"out"`
	Occupancy int    `json:"occupancy"`
	Swap      bool   `json:"swap"`
	At        string `json:"at,omitempty"`
}

// CommandResponse acknowledges a queued control command.
type CommandResponse struct {
	Success bool   `json:"success"`
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
}

// NewServer creates a server bound to ctl. It keeps the latest outcome for
// snapshots until Close is called.
func NewServer(cfg Config, ctl Controller) *Server {
	if cfg.CanvasWidth <= 0 {
		cfg.CanvasWidth = 640
	}
	if cfg.CanvasHeight <= 0 {
		cfg.CanvasHeight = 480
	}
	s := &Server{
		ctl:         ctl,
		corsOrigin:  cfg.CORSOrigin,
		jpegQuality: cfg.JPEGQuality,
		canvas:      image.Rect(0, 0, cfg.CanvasWidth, cfg.CanvasHeight),
		done:        make(chan struct{}),
	}
	outcomes, unsubscribe := ctl.Subscribe()
	s.unsubscribe = unsubscribe
	go s.watch(outcomes)
	return s
}

func (s *Server) watch(outcomes <-chan counter.Outcome) {
	defer close(s.done)
	for o := range outcomes {
		s.mu.Lock()
		s.latest = &o
		s.mu.Unlock()
	}
}

// Latest returns the most recent outcome, if any.
func (s *Server) Latest() (counter.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return counter.Outcome{}, false
	}
	return *s.latest, true
}

// Close stops following the counter.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		<-s.done
	})
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/api/counts", s.corsMiddleware(s.countsHandler))
	mux.HandleFunc("/api/reset", s.corsMiddleware(s.commandHandler("reset", s.ctl.Reset)))
	mux.HandleFunc("/api/swap", s.corsMiddleware(s.commandHandler("swap", s.ctl.ToggleSwap)))
	mux.HandleFunc("/api/quit", s.corsMiddleware(s.commandHandler("quit", s.ctl.Quit)))
	mux.HandleFunc("/api/snapshot.jpg", s.corsMiddleware(s.snapshotHandler))
	mux.HandleFunc("/ws", s.outcomeWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

func countsFrom(snap ledger.Snapshot) CountsResponse {
	resp := CountsResponse{
		In:        snap.In,
		Out:       snap.Out,
		Occupancy: snap.Occupancy,
		Swap:      snap.Swap,
	}
	if !snap.At.IsZero() {
		resp.At = snap.At.UTC().Format(time.RFC3339)
	}
	return resp
}
