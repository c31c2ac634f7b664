package crossing

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidLine is returned when a line cannot be derived from the inputs.
var ErrInvalidLine = errors.New("invalid line")

// Direction is the physical direction of a crossing in image space.
type Direction int

const (
	// Rightward means the track moved from x < line to x >= line.
	Rightward Direction = iota + 1
	// Leftward means the track moved from x > line to x <= line.
	Leftward
)

func (d Direction) String() string {
	switch d {
	case Rightward:
		return "rightward"
	case Leftward:
		return "leftward"
	default:
		return "unknown"
	}
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "rightward":
		*d = Rightward
	case "leftward":
		*d = Leftward
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Event is a confirmed crossing of the line by one track.
type Event struct {
	TrackID   int       `json:"track_id"`
	Direction Direction `json:"direction"`
	PrevX     float64   `json:"prev_x"`
	CurX      float64   `json:"cur_x"`
	At        time.Time `json:"at"`
}

// Line is a fixed vertical counting line. It is derived once from the frame
// width and never changes afterwards.
type Line struct {
	x        float64
	fraction float64
}

// NewLine places the line at fraction (0.0-1.0) of frameWidth.
func NewLine(frameWidth int, fraction float64) (Line, error) {
	if frameWidth <= 0 {
		return Line{}, fmt.Errorf("%w: frame width must be positive, got %d", ErrInvalidLine, frameWidth)
	}
	if fraction < 0 || fraction > 1 {
		return Line{}, fmt.Errorf("%w: fraction must be between 0.0 and 1.0, got %.3f", ErrInvalidLine, fraction)
	}
	return Line{x: float64(frameWidth) * fraction, fraction: fraction}, nil
}

// X returns the line coordinate in pixels.
func (l Line) X() float64 { return l.x }

// Fraction returns the configured relative position.
func (l Line) Fraction() float64 { return l.fraction }

// Detector decides whether a track's movement between two frames crosses the
// line. It consults and updates the cooldown registry but never touches counts.
type Detector struct {
	positions *PositionStore
	cooldowns *CooldownRegistry
}

// NewDetector wires a detector to its position store and cooldown registry.
func NewDetector(positions *PositionStore, cooldowns *CooldownRegistry) *Detector {
	return &Detector{positions: positions, cooldowns: cooldowns}
}

// Evaluate checks a single movement from prev to cur against lineX.
//
// Exact equality with lineX counts as crossed on the side moved toward, so a
// box centred exactly on the line still fires once.
func (d *Detector) Evaluate(id int, prev, cur, lineX float64, now time.Time) (Event, bool) {
	var dir Direction
	switch {
	case prev < lineX && lineX <= cur:
		dir = Rightward
	case prev > lineX && lineX >= cur:
		dir = Leftward
	default:
		return Event{}, false
	}

	if d.cooldowns.IsActive(id, now) {
		return Event{}, false
	}
	d.cooldowns.Record(id, now)

	return Event{TrackID: id, Direction: dir, PrevX: prev, CurX: cur, At: now}, true
}

// Observe feeds the current position of a track. When a previous position is
// known it is evaluated against the line; either way cur becomes the new
// baseline. A first sighting never produces an event.
func (d *Detector) Observe(id int, cur, lineX float64, now time.Time) (Event, bool) {
	prev, seen := d.positions.Get(id)
	d.positions.Set(id, cur)
	if !seen {
		return Event{}, false
	}
	return d.Evaluate(id, prev, cur, lineX, now)
}

// Sweep expires cooldown entries at now.
func (d *Detector) Sweep(now time.Time) int {
	return d.cooldowns.Sweep(now)
}

// Forget clears all per-track state.
func (d *Detector) Forget() {
	d.positions.Clear()
	d.cooldowns.Clear()
}
