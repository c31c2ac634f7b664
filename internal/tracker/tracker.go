// Package tracker assigns persistent IDs to per-frame detections by greedy
// IoU matching against the previous frame.
package tracker

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/detector"
)

// Detector produces per-frame boxes.
type Detector interface {
	Detect(ctx context.Context, img image.Image, class int, minScore float64) ([]detector.Result, error)
}

// Config holds tracker tuning.
type Config struct {
	IoUThreshold float64 // minimum overlap to continue a track (default: 0.3)
	MaxAge       int     // frames a track survives without a match (default: 30)
	MinHits      int     // matches before an ID is reported (default: 3)
}

// DefaultConfig returns default tracker settings.
func DefaultConfig() Config {
	return Config{IoUThreshold: 0.3, MaxAge: 30, MinHits: 3}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold must be in (0,1], got %g", c.IoUThreshold)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("max age must be non-negative, got %d", c.MaxAge)
	}
	if c.MinHits < 1 {
		return fmt.Errorf("min hits must be at least 1, got %d", c.MinHits)
	}
	return nil
}

type track struct {
	id     int
	box    detector.Box
	hits   int
	missed int
}

// Tracker implements counter.Tracker. It is not safe for concurrent use.
type Tracker struct {
	cfg    Config
	det    Detector
	tracks []*track
	nextID int
}

var _ counter.Tracker = (*Tracker)(nil)

// New creates a tracker on top of det.
func New(cfg Config, det Detector) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{cfg: cfg, det: det, nextID: 1}, nil
}

// Track detects objects in img and associates them with existing tracks.
func (t *Tracker) Track(ctx context.Context, img image.Image, filter counter.TrackFilter) ([]counter.Detection, error) {
	results, err := t.det.Detect(ctx, img, filter.Class, filter.Confidence)
	if err != nil {
		return nil, err
	}
	return t.Update(results), nil
}

// Active returns the number of live tracks.
func (t *Tracker) Active() int { return len(t.tracks) }

// Reset drops all tracks. IDs keep increasing.
func (t *Tracker) Reset() { t.tracks = nil }

type pair struct {
	track, det int
	iou        float64
}

// Update advances the tracker by one frame of results.
func (t *Tracker) Update(results []detector.Result) []counter.Detection {
	var pairs []pair
	for ti, tr := range t.tracks {
		for di, r := range results {
			if iou := detector.IoU(tr.box, r.Box); iou >= t.cfg.IoUThreshold {
				pairs = append(pairs, pair{track: ti, det: di, iou: iou})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	owner := make([]*track, len(results))
	usedTrack := make([]bool, len(t.tracks))
	for _, p := range pairs {
		if usedTrack[p.track] || owner[p.det] != nil {
			continue
		}
		usedTrack[p.track] = true
		tr := t.tracks[p.track]
		tr.box = results[p.det].Box
		tr.hits++
		tr.missed = 0
		owner[p.det] = tr
	}

	alive := t.tracks[:0]
	for i, tr := range t.tracks {
		if !usedTrack[i] {
			tr.missed++
			if tr.missed > t.cfg.MaxAge {
				continue
			}
		}
		alive = append(alive, tr)
	}
	t.tracks = alive

	out := make([]counter.Detection, 0, len(results))
	for di, r := range results {
		tr := owner[di]
		if tr == nil {
			tr = &track{id: t.nextID, box: r.Box, hits: 1}
			t.nextID++
			t.tracks = append(t.tracks, tr)
		}

		d := counter.Detection{
			Box:        counter.Box{X1: r.Box.X1, Y1: r.Box.Y1, X2: r.Box.X2, Y2: r.Box.Y2},
			Confidence: r.Score,
			Class:      r.Class,
		}
		if tr.hits >= t.cfg.MinHits {
			id := tr.id
			d.TrackID = &id
		}
		out = append(out, d)
	}
	return out
}
