// Package ledger keeps the cumulative IN/OUT counters and the derived
// occupancy estimate.
package ledger

import (
	"time"

	"github.com/MeKo-Tech/doorcount/internal/crossing"
)

// Label is the counted meaning of a crossing after orientation is applied.
type Label string

const (
	LabelIn  Label = "IN"
	LabelOut Label = "OUT"
)

// Snapshot is a point-in-time copy of the ledger.
type Snapshot struct {
	In        int       `json:"in" yaml:"in"`
	Out       int       `json:"out" yaml:"out"`
	Occupancy int       `json:"occupancy" yaml:"occupancy"`
	Swap      bool      `json:"swap" yaml:"swap"`
	At        time.Time `json:"at" yaml:"at"`
}

// Ledger holds the counters. It is owned by a single goroutine; callers that
// share it must provide their own synchronization.
type Ledger struct {
	in   int
	out  int
	swap bool
}

// New creates a ledger at zero with the given orientation.
func New(swap bool) *Ledger {
	return &Ledger{swap: swap}
}

// Label maps a physical direction to IN or OUT under the current orientation.
// Rightward is IN unless swap is set.
func (l *Ledger) Label(dir crossing.Direction) Label {
	if (dir == crossing.Rightward) != l.swap {
		return LabelIn
	}
	return LabelOut
}

// Apply counts one confirmed crossing and returns the new counters.
func (l *Ledger) Apply(dir crossing.Direction) (int, int) {
	if l.Label(dir) == LabelIn {
		l.in++
	} else {
		l.out++
	}
	return l.in, l.out
}

// ToggleSwap flips the orientation for future events and returns the new value.
// Counts already recorded are not changed.
func (l *Ledger) ToggleSwap() bool {
	l.swap = !l.swap
	return l.swap
}

// Reset zeroes both counters. Orientation is kept.
func (l *Ledger) Reset() {
	l.in = 0
	l.out = 0
}

// In returns the IN counter.
func (l *Ledger) In() int { return l.in }

// Out returns the OUT counter.
func (l *Ledger) Out() int { return l.out }

// Swap reports the current orientation flag.
func (l *Ledger) Swap() bool { return l.swap }

// Occupancy returns max(0, in - out). More exits than entries can happen with
// detector noise or people already inside at startup; the floor is deliberate.
func (l *Ledger) Occupancy() int {
	return max(0, l.in-l.out)
}

// Snapshot copies the current state stamped with at.
func (l *Ledger) Snapshot(at time.Time) Snapshot {
	return Snapshot{
		In:        l.in,
		Out:       l.out,
		Occupancy: l.Occupancy(),
		Swap:      l.swap,
		At:        at,
	}
}
