// Package counter runs the frame cycle: it feeds tracker output through the
// crossing detector, credits events to the occupancy ledger and drives the
// reporting sink.
package counter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MeKo-Tech/doorcount/internal/crossing"
	"github.com/MeKo-Tech/doorcount/internal/ledger"
	"github.com/MeKo-Tech/doorcount/internal/report"
)

// Config holds the tunables of the frame cycle.
type Config struct {
	LineFraction    float64
	FrameWidth      int // overrides FrameSource.Width when > 0
	Cooldown        time.Duration
	Swap            bool
	Class           int
	Confidence      float64
	MaxReadErrors   int // consecutive acquisition errors before giving up
	ShutdownTimeout time.Duration
	Clock           clock.Clock
}

// DefaultConfig returns the default counter configuration.
func DefaultConfig() Config {
	return Config{
		LineFraction:    0.5,
		Cooldown:        crossing.DefaultCooldown,
		Class:           0,
		Confidence:      0.25,
		MaxReadErrors:   30,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Counter owns all counting state. Step and Run must be called from a single
// goroutine; commands, Snapshot and Subscribe are safe from any goroutine.
type Counter struct {
	cfg     Config
	clock   clock.Clock
	source  FrameSource
	tracker Tracker
	sink    report.Sink

	line      crossing.Line
	positions *crossing.PositionStore
	cooldowns *crossing.CooldownRegistry
	detector  *crossing.Detector
	ledger    *ledger.Ledger

	commands   chan command
	quit       bool
	readErrors int

	mu       sync.RWMutex
	snapshot ledger.Snapshot

	subMu   sync.Mutex
	subs    map[int]chan Outcome
	nextSub int

	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires a counter around an opened frame source, a tracker and a sink.
func New(cfg Config, src FrameSource, trk Tracker, sink report.Sink) (*Counter, error) {
	if src == nil || trk == nil || sink == nil {
		return nil, errors.New("counter requires a frame source, tracker and sink")
	}

	width := cfg.FrameWidth
	if width <= 0 {
		width = src.Width()
	}
	line, err := crossing.NewLine(width, cfg.LineFraction)
	if err != nil {
		return nil, fmt.Errorf("invalid counting line: %w", err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	if cfg.MaxReadErrors <= 0 {
		cfg.MaxReadErrors = DefaultConfig().MaxReadErrors
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	positions := crossing.NewPositionStore()
	cooldowns := crossing.NewCooldownRegistry(cfg.Cooldown)
	c := &Counter{
		cfg:       cfg,
		clock:     clk,
		source:    src,
		tracker:   trk,
		sink:      sink,
		line:      line,
		positions: positions,
		cooldowns: cooldowns,
		detector:  crossing.NewDetector(positions, cooldowns),
		ledger:    ledger.New(cfg.Swap),
		commands:  make(chan command, commandQueueSize),
		subs:      make(map[int]chan Outcome),
	}
	c.publishSnapshot(c.ledger.Snapshot(clk.Now()))

	slog.Info("Counter initialized",
		"frame_width", width,
		"line_x", line.X(),
		"cooldown", cooldowns.Duration().String(),
		"swap", cfg.Swap)
	return c, nil
}

// Line returns the counting line.
func (c *Counter) Line() crossing.Line { return c.line }

// Snapshot returns the counts published by the last completed cycle.
func (c *Counter) Snapshot() ledger.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Counter) publishSnapshot(s ledger.Snapshot) {
	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()

	occupancyGauge.Set(float64(s.Occupancy))
	countGauge.WithLabelValues(string(ledger.LabelIn)).Set(float64(s.In))
	countGauge.WithLabelValues(string(ledger.LabelOut)).Set(float64(s.Out))
}

// Subscribe registers a receiver for cycle outcomes. Slow receivers miss
// outcomes rather than stalling the loop. The returned func unsubscribes.
func (c *Counter) Subscribe() (<-chan Outcome, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Outcome, 1)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Counter) broadcast(o Outcome) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- o:
		default:
		}
	}
}

func (c *Counter) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// Step runs one frame cycle. ok is false when no frame was available and the
// cycle was skipped. A non-nil error means the frame source failed.
func (c *Counter) Step(ctx context.Context) (Outcome, bool, error) {
	c.applyCommands()
	if c.quit {
		return Outcome{}, false, nil
	}

	frame, ok, err := c.source.Read(ctx)
	if err != nil {
		framesTotal.WithLabelValues("error").Inc()
		return Outcome{}, false, err
	}
	if !ok {
		framesTotal.WithLabelValues("skipped").Inc()
		return Outcome{}, false, nil
	}
	c.readErrors = 0

	start := time.Now()
	defer func() { cycleDuration.Observe(time.Since(start).Seconds()) }()

	now := c.clock.Now()
	detections, err := c.tracker.Track(ctx, frame.Image, TrackFilter{Class: c.cfg.Class, Confidence: c.cfg.Confidence})
	if err != nil {
		trackErrorsTotal.Inc()
		slog.Warn("Tracker failed, treating frame as empty", "seq", frame.Seq, "error", err)
		detections = nil
	}

	c.detector.Sweep(now)

	var events []Counted
	for _, d := range detections {
		if d.TrackID == nil {
			continue
		}
		ev, fired := c.detector.Observe(*d.TrackID, d.Box.CenterX(), c.line.X(), now)
		if !fired {
			continue
		}
		label := c.ledger.Label(ev.Direction)
		c.ledger.Apply(ev.Direction)
		crossingsTotal.WithLabelValues(ev.Direction.String(), string(label)).Inc()
		events = append(events, Counted{Event: ev, Label: label})

		c.sink.Publish(report.Crossing{At: now, Occupancy: c.ledger.Occupancy(), Label: label})
		slog.Info("Crossing counted",
			"track_id", ev.TrackID,
			"direction", ev.Direction.String(),
			"label", string(label),
			"in", c.ledger.In(),
			"out", c.ledger.Out(),
			"occupancy", c.ledger.Occupancy())
	}

	snap := c.ledger.Snapshot(now)
	// Write failures are logged by the sink; counts stay in memory.
	flushed, _ := c.sink.MaybeFlush(now, snap)

	c.publishSnapshot(snap)
	framesTotal.WithLabelValues("processed").Inc()

	out := Outcome{
		Snapshot:   snap,
		Events:     events,
		Detections: detections,
		LineX:      c.line.X(),
		Flushed:    flushed,
		Frame:      frame,
	}
	c.broadcast(out)
	return out, true, nil
}

// Run loops over Step until ctx is cancelled, Quit is requested, a finite
// source is exhausted or acquisition fails persistently. Whatever ends the
// loop, a final durable flush is written and the frame source is closed.
func (c *Counter) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame loop panicked: %v", r)
			slog.Error("Frame loop panicked", "panic", r)
		}
		if shutdownErr := c.Shutdown(); err == nil {
			err = shutdownErr
		}
	}()

	slog.Info("Counting loop started")
	for {
		if ctx.Err() != nil {
			slog.Info("Counting loop cancelled")
			return nil
		}

		_, _, stepErr := c.Step(ctx)
		if c.quit {
			slog.Info("Quit requested")
			return nil
		}
		if stepErr == nil {
			continue
		}

		switch {
		case ctx.Err() != nil:
			slog.Info("Counting loop cancelled")
			return nil
		case errors.Is(stepErr, io.EOF):
			slog.Info("Frame source exhausted")
			return nil
		case errors.Is(stepErr, ErrSourceClosed):
			return fmt.Errorf("frame acquisition stopped: %w", stepErr)
		}

		c.readErrors++
		slog.Warn("Frame acquisition failed",
			"error", stepErr,
			"consecutive", c.readErrors,
			"limit", c.cfg.MaxReadErrors)
		if c.readErrors >= c.cfg.MaxReadErrors {
			return fmt.Errorf("frame acquisition failed %d times in a row: %w", c.readErrors, stepErr)
		}
	}
}

// Shutdown writes the final durable flush, closes the sink, the frame source
// and all subscriptions. Only the first call has any effect.
func (c *Counter) Shutdown() error {
	c.shutdownOnce.Do(func() {
		var errs []error

		snap := c.ledger.Snapshot(c.clock.Now())
		if err := c.sink.Flush(snap); err != nil {
			errs = append(errs, fmt.Errorf("final flush failed: %w", err))
		}
		c.publishSnapshot(snap)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
		if err := c.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sink: %w", err))
		}
		cancel()

		if err := c.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close frame source: %w", err))
		}
		c.closeSubscribers()

		c.shutdownErr = errors.Join(errs...)
		slog.Info("Counter stopped", "in", snap.In, "out", snap.Out, "occupancy", snap.Occupancy)
	})
	return c.shutdownErr
}
