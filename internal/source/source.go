// Package source provides frame sources for the counting loop.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/counter"
)

// Source kinds.
const (
	KindImages = "images"
	KindMJPEG  = "mjpeg"
)

// Config selects and configures a frame source.
type Config struct {
	Kind    string
	Path    string        // image directory for KindImages
	URL     string        // stream URL for KindMJPEG
	FPS     float64       // pacing for KindImages, 0 = as fast as possible
	Loop    bool          // restart KindImages at the end
	Timeout time.Duration // connect timeout for KindMJPEG
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Kind {
	case KindImages:
		if c.Path == "" {
			return fmt.Errorf("source.path is required for %q", c.Kind)
		}
	case KindMJPEG:
		if c.URL == "" {
			return fmt.Errorf("source.url is required for %q", c.Kind)
		}
	default:
		return fmt.Errorf("unknown source kind %q (want %s or %s)", c.Kind, KindImages, KindMJPEG)
	}
	if c.FPS < 0 {
		return fmt.Errorf("source.fps must be non-negative, got %g", c.FPS)
	}
	return nil
}

// Open opens the configured source. Failure here is fatal to startup.
func Open(ctx context.Context, cfg Config) (counter.FrameSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindMJPEG:
		return OpenMJPEG(ctx, cfg.URL, cfg.Timeout)
	default:
		return OpenImageSequence(cfg.Path, cfg.FPS, cfg.Loop)
	}
}
