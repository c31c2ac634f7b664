package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/utils"
)

// ImageSequence replays a directory of still images in lexical order.
type ImageSequence struct {
	files    []string
	loop     bool
	interval time.Duration
	width    int

	mu     sync.Mutex
	next   int
	seq    uint64
	last   time.Time
	closed bool
}

var _ counter.FrameSource = (*ImageSequence)(nil)

// OpenImageSequence lists supported images in dir. The first image fixes the
// frame width.
func OpenImageSequence(dir string, fps float64, loop bool) (*ImageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !utils.IsSupportedImage(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(files)

	first, err := utils.LoadImage(files[0])
	if err != nil {
		return nil, err
	}

	s := &ImageSequence{files: files, loop: loop, width: first.Bounds().Dx()}
	if fps > 0 {
		s.interval = time.Duration(float64(time.Second) / fps)
	}

	slog.Info("Image sequence opened", "dir", dir, "frames", len(files), "width", s.width, "loop", loop)
	return s, nil
}

// Len returns the number of images.
func (s *ImageSequence) Len() int { return len(s.files) }

// Width returns the width of the first image.
func (s *ImageSequence) Width() int { return s.width }

// Read returns the next image. Unreadable files are transient misses.
func (s *ImageSequence) Read(ctx context.Context) (counter.Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return counter.Frame{}, false, counter.ErrSourceClosed
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return counter.Frame{}, false, io.EOF
		}
		s.next = 0
	}

	if err := s.pace(ctx); err != nil {
		return counter.Frame{}, false, err
	}

	path := s.files[s.next]
	s.next++

	img, err := utils.LoadImage(path)
	if err != nil {
		slog.Warn("Skipping unreadable frame", "path", path, "error", err)
		return counter.Frame{}, false, nil
	}
	s.seq++
	return counter.Frame{Image: img, Seq: s.seq}, true, nil
}

func (s *ImageSequence) pace(ctx context.Context) error {
	if s.interval <= 0 {
		return ctx.Err()
	}
	if !s.last.IsZero() {
		if wait := s.interval - time.Since(s.last); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	s.last = time.Now()
	return ctx.Err()
}

// Close stops the sequence. Further reads return ErrSourceClosed.
func (s *ImageSequence) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
