package counter

import (
	"context"
	"errors"
	"image"

	"github.com/MeKo-Tech/doorcount/internal/crossing"
	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

// ErrSourceClosed is returned by a FrameSource that can no longer produce
// frames, e.g. a disconnected camera.
var ErrSourceClosed = errors.New("frame source closed")

// ErrCommandQueueFull is returned when a control command cannot be queued.
var ErrCommandQueueFull = errors.New("command queue full")

// Frame is one acquired video frame.
type Frame struct {
	Image image.Image
	Seq   uint64
}

// FrameSource yields frames. Read returns ok=false for a transient miss (no
// frame ready); io.EOF when a finite source is exhausted; any other error is
// an acquisition failure.
type FrameSource interface {
	Read(ctx context.Context) (Frame, bool, error)
	Width() int
	Close() error
}

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// CenterX is the horizontal center of the box.
func (b Box) CenterX() float64 { return (b.X1 + b.X2) / 2 }

// Width of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Detection is one tracked object in a frame. TrackID is nil when the tracker
// has not assigned a persistent identity yet.
type Detection struct {
	TrackID    *int    `json:"track_id"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Class      int     `json:"class"`
}

// TrackFilter restricts the tracker to one class above a confidence floor.
type TrackFilter struct {
	Class      int
	Confidence float64
}

// Tracker assigns persistent IDs to detections across successive calls.
type Tracker interface {
	Track(ctx context.Context, img image.Image, filter TrackFilter) ([]Detection, error)
}

// Counted is a crossing event with the ledger label it was credited to.
type Counted struct {
	crossing.Event
	Label ledger.Label `json:"label"`
}

// Outcome is the result of one frame cycle handed to the display layer.
type Outcome struct {
	Snapshot   ledger.Snapshot `json:"snapshot"`
	Events     []Counted       `json:"events,omitempty"`
	Detections []Detection     `json:"detections,omitempty"`
	LineX      float64         `json:"line_x"`
	Flushed    bool            `json:"flushed,omitempty"`
	Frame      Frame           `json:"-"`
}
