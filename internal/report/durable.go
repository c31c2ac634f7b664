// Package report persists ledger snapshots to an append-only log and mirrors
// individual crossings to a remote HTTP endpoint.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

// LogLayout is the timestamp layout of durable log lines.
const LogLayout = time.RFC3339

// logFile is the part of *os.File the log needs.
type logFile interface {
	WriteString(s string) (int, error)
	Sync() error
	Close() error
}

// DurableLog appends one line per snapshot to a text file. The file is never
// rewritten or rotated; every line is a single write on an O_APPEND handle,
// synced to stable storage before Append returns.
type DurableLog struct {
	path string
	mu   sync.Mutex
	f    logFile
}

// OpenDurableLog opens (or creates) the log at path, creating parent
// directories as needed.
func OpenDurableLog(path string) (*DurableLog, error) {
	if path == "" {
		return nil, errors.New("durable log path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: configured log path
	if err != nil {
		return nil, fmt.Errorf("failed to open durable log: %w", err)
	}
	return &DurableLog{path: path, f: f}, nil
}

// Path returns the log file path.
func (l *DurableLog) Path() string { return l.path }

// FormatLine renders a snapshot as a durable log line without trailing newline.
func FormatLine(s ledger.Snapshot) string {
	return fmt.Sprintf("%s | IN: %d | OUT: %d | Inside: %d",
		s.At.Format(LogLayout), s.In, s.Out, s.Occupancy)
}

// Append writes one line for s.
func (l *DurableLog) Append(s ledger.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return errors.New("durable log is closed")
	}
	if _, err := l.f.WriteString(FormatLine(s) + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", l.path, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", l.path, err)
	}
	return nil
}

// Close closes the underlying file. Further appends fail.
func (l *DurableLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
