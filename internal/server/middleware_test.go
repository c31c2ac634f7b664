package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		origin         string
		method         string
		handlerStatus  int
		expectedStatus int
		shouldCallNext bool
	}{
		{"GET with wildcard", "*", http.MethodGet, http.StatusOK, http.StatusOK, true},
		{"POST with specific origin", "https://door.example", http.MethodPost, http.StatusAccepted, http.StatusAccepted, true},
		{"preflight", "*", http.MethodOptions, http.StatusTeapot, http.StatusOK, false},
		{"handler error keeps headers", "*", http.MethodPost, http.StatusInternalServerError, http.StatusInternalServerError, true},
		{"empty origin", "", http.MethodGet, http.StatusOK, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{corsOrigin: tt.origin}

			called := false
			h := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(tt.handlerStatus)
			})

			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(tt.method, "/api/counts", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
			assert.Equal(t, tt.shouldCallNext, called)
		})
	}
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusServiceUnavailable)

	assert.Equal(t, http.StatusServiceUnavailable, rw.statusCode)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func BenchmarkCORS(b *testing.B) {
	h := CORS("*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/counts", nil)

	b.ResetTimer()
	for range b.N {
		h(httptest.NewRecorder(), req)
	}
}
