package source

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/counter"
)

// DefaultConnectTimeout bounds connecting to a stream and reading its first frame.
const DefaultConnectTimeout = 10 * time.Second

// MJPEGStream reads a multipart/x-mixed-replace JPEG stream as served by IP
// cameras and most webcam bridges.
type MJPEGStream struct {
	url    string
	body   io.ReadCloser
	parts  *multipart.Reader
	cancel context.CancelFunc
	width  int

	mu      sync.Mutex // serializes Read
	seq     uint64
	pending *counter.Frame

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ counter.FrameSource = (*MJPEGStream)(nil)

// OpenMJPEG connects to url and decodes the first frame to learn the width.
func OpenMJPEG(ctx context.Context, url string, timeout time.Duration) (*MJPEGStream, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}

	// Abort the connect phase on timeout or caller cancellation; after that the
	// stream lives until Close.
	connected := make(chan struct{})
	go func() {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-connected:
		case <-ctx.Done():
			cancel()
		case <-t.C:
			cancel()
		}
	}()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		close(connected)
		cancel()
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	s, err := newMJPEGStream(url, resp, cancel)
	if err == nil {
		err = s.prime()
	}
	close(connected)
	if err != nil {
		_ = resp.Body.Close()
		cancel()
		return nil, err
	}

	slog.Info("MJPEG stream opened", "url", url, "width", s.width)
	return s, nil
}

func newMJPEGStream(url string, resp *http.Response, cancel context.CancelFunc) (*MJPEGStream, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("invalid stream content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("unsupported stream content type %q", mediaType)
	}
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		return nil, errors.New("stream content type has no boundary")
	}
	return &MJPEGStream{
		url:    url,
		body:   resp.Body,
		parts:  multipart.NewReader(resp.Body, boundary),
		cancel: cancel,
	}, nil
}

func (s *MJPEGStream) prime() error {
	f, ok, err := s.readPart()
	if err != nil {
		return fmt.Errorf("failed to read first frame: %w", err)
	}
	if !ok {
		return errors.New("first stream frame is not a decodable JPEG")
	}
	s.width = f.Image.Bounds().Dx()
	s.pending = &f
	return nil
}

// Width returns the width of the first frame.
func (s *MJPEGStream) Width() int { return s.width }

// Read returns the next frame. A part that fails to decode is a transient
// miss; the stream ending is ErrSourceClosed.
func (s *MJPEGStream) Read(ctx context.Context) (counter.Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return counter.Frame{}, false, counter.ErrSourceClosed
	}
	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		return f, true, nil
	}

	stop := context.AfterFunc(ctx, func() { _ = s.body.Close() })
	defer stop()

	f, ok, err := s.readPart()
	if err != nil {
		if ctx.Err() != nil {
			return counter.Frame{}, false, ctx.Err()
		}
		if s.closed.Load() {
			return counter.Frame{}, false, counter.ErrSourceClosed
		}
		return counter.Frame{}, false, err
	}
	return f, ok, nil
}

func (s *MJPEGStream) readPart() (counter.Frame, bool, error) {
	part, err := s.parts.NextPart()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return counter.Frame{}, false, fmt.Errorf("%w: stream ended", counter.ErrSourceClosed)
		}
		return counter.Frame{}, false, fmt.Errorf("failed to read stream part: %w", err)
	}
	// The part is drained by the next NextPart call. Closing it here would
	// block until the camera sends the following boundary.
	img, err := jpeg.Decode(part)
	if err != nil {
		slog.Debug("Dropping undecodable stream part", "url", s.url, "error", err)
		return counter.Frame{}, false, nil
	}
	s.seq++
	return counter.Frame{Image: img, Seq: s.seq}, true, nil
}

// Close disconnects from the stream, unblocking a pending Read.
func (s *MJPEGStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
