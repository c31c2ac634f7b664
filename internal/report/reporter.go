package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

const (
	// DefaultLogInterval is the period between durable log writes.
	DefaultLogInterval = 60 * time.Second
	// DefaultQueueSize bounds the number of crossings waiting to be pushed.
	DefaultQueueSize = 64
)

// Sink receives crossings and periodic snapshots from the counting loop.
type Sink interface {
	Publish(c Crossing)
	MaybeFlush(now time.Time, s ledger.Snapshot) (bool, error)
	Flush(s ledger.Snapshot) error
	Close(ctx context.Context) error
}

var _ Sink = (*Reporter)(nil)

// Config configures a Reporter.
type Config struct {
	LogPath       string
	LogInterval   time.Duration
	RemoteURL     string // empty disables remote sync
	RemoteTimeout time.Duration
	QueueSize     int
	// SyncOnFlush also pushes a status-only update (null direction) on every
	// durable flush.
	SyncOnFlush bool
}

// Reporter combines the periodic durable log with best-effort remote pushes.
// Pushes run on a single background worker, so Publish never blocks the
// caller; a full queue drops the crossing and logs it.
type Reporter struct {
	log      *DurableLog
	remote   *RemoteSync
	interval time.Duration
	syncAll  bool

	lastFlush time.Time

	mu     sync.Mutex
	closed bool
	queue  chan Crossing
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReporter opens the durable log and starts the push worker. start is the
// reference time for the first interval.
func NewReporter(cfg Config, start time.Time) (*Reporter, error) {
	dl, err := OpenDurableLog(cfg.LogPath)
	if err != nil {
		return nil, err
	}

	r := &Reporter{
		log:       dl,
		interval:  cfg.LogInterval,
		syncAll:   cfg.SyncOnFlush,
		lastFlush: start,
		done:      make(chan struct{}),
	}
	if r.interval <= 0 {
		r.interval = DefaultLogInterval
	}

	if cfg.RemoteURL != "" {
		rs, err := NewRemoteSync(cfg.RemoteURL, cfg.RemoteTimeout)
		if err != nil {
			_ = dl.Close()
			return nil, err
		}
		r.remote = rs
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	r.queue = make(chan Crossing, size)
	r.ctx, r.cancel = context.WithCancel(context.Background())

	go r.worker()

	slog.Debug("Reporter started",
		"log_path", cfg.LogPath,
		"log_interval", r.interval.String(),
		"remote_enabled", r.remote != nil)
	return r, nil
}

// Interval returns the durable log period.
func (r *Reporter) Interval() time.Duration { return r.interval }

// Publish schedules a remote push of c. It returns immediately.
func (r *Reporter) Publish(c Crossing) {
	if r.remote == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- c:
	default:
		remoteSyncTotal.WithLabelValues("dropped").Inc()
		slog.Warn("Remote sync queue full, dropping crossing",
			"direction", string(c.Label), "occupancy", c.Occupancy)
	}
}

// Due reports whether the log interval has elapsed at now.
func (r *Reporter) Due(now time.Time) bool {
	return now.Sub(r.lastFlush) >= r.interval
}

// MaybeFlush writes s when the interval has elapsed and restarts the timer.
// The timer restarts even when the write fails; counts stay in memory and go
// out with the next flush.
func (r *Reporter) MaybeFlush(now time.Time, s ledger.Snapshot) (bool, error) {
	if !r.Due(now) {
		return false, nil
	}
	r.lastFlush = now
	return true, r.Flush(s)
}

// Flush writes s to the durable log immediately.
func (r *Reporter) Flush(s ledger.Snapshot) error {
	if err := r.log.Append(s); err != nil {
		logFlushTotal.WithLabelValues("error").Inc()
		slog.Error("Durable log write failed", "path", r.log.Path(), "error", err)
		return err
	}
	logFlushTotal.WithLabelValues("success").Inc()

	if r.syncAll {
		r.Publish(Crossing{At: s.At, Occupancy: s.Occupancy})
	}
	return nil
}

// Close stops accepting crossings, waits for queued pushes until ctx is done,
// and closes the durable log.
func (r *Reporter) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	var errs []error
	select {
	case <-r.done:
	case <-ctx.Done():
		r.cancel()
		<-r.done
		errs = append(errs, fmt.Errorf("remote sync drain interrupted: %w", ctx.Err()))
	}
	r.cancel()

	if err := r.log.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close durable log: %w", err))
	}
	return errors.Join(errs...)
}

func (r *Reporter) worker() {
	defer close(r.done)
	for c := range r.queue {
		start := time.Now()
		err := r.remote.Push(r.ctx, c)
		remoteSyncDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			remoteSyncTotal.WithLabelValues("error").Inc()
			slog.Warn("Remote sync failed", "url", r.remote.URL(), "error", err)
			continue
		}
		remoteSyncTotal.WithLabelValues("success").Inc()
	}
}
