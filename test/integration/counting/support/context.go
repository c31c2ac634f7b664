// Package support holds godog step definitions that drive the counting loop
// with scripted frames, scripted tracks and a mock clock.
package support

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/ledger"
	"github.com/MeKo-Tech/doorcount/internal/report"
)

// FrameInterval is the simulated time between two frames.
const FrameInterval = 40 * time.Millisecond

// TestContext holds the state of one scenario.
type TestContext struct {
	Clock   *clock.Mock
	Source  *ScriptedSource
	Tracker *ScriptedTracker
	Sink    *RecordingSink
	Counter *counter.Counter

	Width        int
	LineFraction float64
	Cooldown     time.Duration
	Swap         bool

	LastRunErr error
}

// NewTestContext creates a context with a 200 pixel frame and the default
// line position and cooldown.
func NewTestContext() *TestContext {
	m := clock.NewMock()
	m.Set(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	return &TestContext{
		Clock:        m,
		Tracker:      &ScriptedTracker{},
		Sink:         &RecordingSink{},
		Width:        200,
		LineFraction: 0.5,
		Cooldown:     500 * time.Millisecond,
	}
}

// counter builds the counter lazily so Given steps can tune the setup first.
func (tc *TestContext) counter() (*counter.Counter, error) {
	if tc.Counter != nil {
		return tc.Counter, nil
	}
	tc.Source = &ScriptedSource{width: tc.Width}
	cfg := counter.DefaultConfig()
	cfg.LineFraction = tc.LineFraction
	cfg.Cooldown = tc.Cooldown
	cfg.Swap = tc.Swap
	cfg.Clock = tc.Clock
	c, err := counter.New(cfg, tc.Source, tc.Tracker, tc.Sink)
	if err != nil {
		return nil, err
	}
	tc.Counter = c
	return c, nil
}

// processFrame feeds one frame carrying dets through the counter.
func (tc *TestContext) processFrame(dets ...counter.Detection) (counter.Outcome, error) {
	c, err := tc.counter()
	if err != nil {
		return counter.Outcome{}, err
	}
	tc.Clock.Add(FrameInterval)
	tc.Tracker.Set(dets)
	out, _, err := c.Step(context.Background())
	return out, err
}

// Cleanup releases the counter.
func (tc *TestContext) Cleanup() error {
	if tc.Counter == nil {
		return nil
	}
	return tc.Counter.Shutdown()
}

// ScriptedSource yields blank frames until Finish is called, then io.EOF.
type ScriptedSource struct {
	mu       sync.Mutex
	width    int
	seq      uint64
	finished bool
	closed   bool
}

var _ counter.FrameSource = (*ScriptedSource)(nil)

func (s *ScriptedSource) Read(ctx context.Context) (counter.Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return counter.Frame{}, false, counter.ErrSourceClosed
	case s.finished:
		return counter.Frame{}, false, io.EOF
	}
	s.seq++
	return counter.Frame{Image: image.NewGray(image.Rect(0, 0, s.width, 10)), Seq: s.seq}, true, nil
}

func (s *ScriptedSource) Width() int { return s.width }

func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("already closed")
	}
	s.closed = true
	return nil
}

// Finish makes the next read report the end of the source.
func (s *ScriptedSource) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

// Closed reports whether the counter released the source.
func (s *ScriptedSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ScriptedTracker returns whatever detections were set for the next frame.
type ScriptedTracker struct {
	mu   sync.Mutex
	next []counter.Detection
}

func (t *ScriptedTracker) Set(dets []counter.Detection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = dets
}

func (t *ScriptedTracker) Track(ctx context.Context, img image.Image, f counter.TrackFilter) ([]counter.Detection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dets := t.next
	t.next = nil
	return dets, nil
}

// RecordingSink keeps every crossing and flush it receives.
type RecordingSink struct {
	mu        sync.Mutex
	Crossings []report.Crossing
	Flushes   []ledger.Snapshot
	Closed    bool
}

var _ report.Sink = (*RecordingSink)(nil)

func (s *RecordingSink) Publish(c report.Crossing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Crossings = append(s.Crossings, c)
}

func (s *RecordingSink) MaybeFlush(now time.Time, snap ledger.Snapshot) (bool, error) {
	return false, nil
}

func (s *RecordingSink) Flush(snap ledger.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Flushes = append(s.Flushes, snap)
	return nil
}

func (s *RecordingSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
