package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/overlay"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// countsHandler returns the current ledger snapshot.
func (s *Server) countsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, countsFrom(s.ctl.Snapshot()))
}

// commandHandler queues a control command. The command takes effect at the
// start of the next frame cycle, so the response only acknowledges it.
func (s *Server) commandHandler(name string, enqueue func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := enqueue(); err != nil {
			controlCommandsTotal.WithLabelValues(name, "rejected").Inc()
			slog.Warn("Control command rejected", "command", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, CommandResponse{Command: name, Error: err.Error()})
			return
		}

		controlCommandsTotal.WithLabelValues(name, "queued").Inc()
		slog.Info("Control command queued", "command", name, "remote_addr", r.RemoteAddr)
		writeJSON(w, http.StatusAccepted, CommandResponse{Success: true, Command: name})
	}
}

// snapshotHandler renders the latest outcome as an annotated JPEG.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	o, ok := s.Latest()
	if !ok {
		http.Error(w, "No frame processed yet", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := overlay.EncodeJPEG(&buf, overlay.Render(o, s.canvas), s.jpegQuality); err != nil {
		slog.Error("Failed to encode snapshot", "error", err)
		http.Error(w, "Failed to encode snapshot", http.StatusInternalServerError)
		return
	}

	snapshotBytes.Observe(float64(buf.Len()))
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("Failed to write snapshot", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
