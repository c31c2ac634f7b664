package server

import (
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

// fakeController records commands and lets tests push outcomes.
type fakeController struct {
	mu    sync.Mutex
	snap  ledger.Snapshot
	err   error
	calls []string
	subs  map[int]chan counter.Outcome
	next  int
}

func newFakeController() *fakeController {
	return &fakeController{subs: make(map[int]chan counter.Outcome)}
}

func (f *fakeController) Snapshot() ledger.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, name)
	return nil
}

func (f *fakeController) Reset() error      { return f.record("reset") }
func (f *fakeController) ToggleSwap() error { return f.record("swap") }
func (f *fakeController) Quit() error       { return f.record("quit") }

func (f *fakeController) Subscribe() (<-chan counter.Outcome, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	ch := make(chan counter.Outcome, 4)
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}
}

func (f *fakeController) publish(o counter.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- o
	}
}

func (f *fakeController) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// stop mimics the counter shutting down.
func (f *fakeController) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

func newTestServer(t *testing.T) (*Server, *fakeController, *http.ServeMux) {
	t.Helper()
	ctl := newFakeController()
	s := NewServer(DefaultConfig(), ctl)
	t.Cleanup(func() { _ = s.Close() })
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s, ctl, mux
}

func TestServer_HealthHandler(t *testing.T) {
	_, _, mux := newTestServer(t)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request success", http.MethodGet, http.StatusOK},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, "/health", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var resp HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "healthy", resp.Status)
				_, err := time.Parse(time.RFC3339, resp.Time)
				assert.NoError(t, err)
			}
		})
	}
}

func TestServer_CountsHandler(t *testing.T) {
	_, ctl, mux := newTestServer(t)
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	ctl.snap = ledger.Snapshot{In: 1200, Out: 1195, Occupancy: 5, Swap: true, At: at}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/counts", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp CountsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CountsResponse{In: 1200, Out: 1195, Occupancy: 5, Swap: true, At: "2024-05-01T12:30:00Z"}, resp)
}

func TestServer_CommandHandlers(t *testing.T) {
	tests := []struct {
		path    string
		command string
	}{
		{"/api/reset", "reset"},
		{"/api/swap", "swap"},
		{"/api/quit", "quit"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			_, ctl, mux := newTestServer(t)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, nil))

			require.Equal(t, http.StatusAccepted, w.Code)
			var resp CommandResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.command, resp.Command)
			assert.Equal(t, []string{tt.command}, ctl.calls)

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Len(t, ctl.calls, 1)
		})
	}
}

func TestServer_CommandRejected(t *testing.T) {
	_, ctl, mux := newTestServer(t)
	ctl.err = counter.ErrCommandQueueFull

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reset", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, counter.ErrCommandQueueFull.Error(), resp.Error)
}

func TestServer_SnapshotHandler(t *testing.T) {
	s, ctl, mux := newTestServer(t)

	t.Run("no frame yet", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshot.jpg", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	ctl.publish(counter.Outcome{
		Snapshot: ledger.Snapshot{In: 3, Out: 1, Occupancy: 2},
		LineX:    32,
		Frame:    counter.Frame{Image: image.NewRGBA(image.Rect(0, 0, 64, 48)), Seq: 7},
	})
	require.Eventually(t, func() bool {
		_, ok := s.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	t.Run("latest frame", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshot.jpg", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
		img, err := jpeg.Decode(w.Body)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/snapshot.jpg", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestServer_CloseUnsubscribes(t *testing.T) {
	ctl := newFakeController()
	s := NewServer(Config{}, ctl)
	assert.Equal(t, 1, ctl.subscribers())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, ctl.subscribers())
	assert.Equal(t, image.Rect(0, 0, 640, 480), s.canvas)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	_, _, mux := newTestServer(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/counts", nil))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "doorcount_http_requests_total")
}
