package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// newHTTPServer builds a server for long-lived connections: only header reads
// are bounded so websocket streams are not cut off.
func newHTTPServer(host string, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startHTTPServer runs srv in the background. A listener failure is sent on
// the returned channel and cancels the surrounding context.
func startHTTPServer(name string, srv *http.Server, cancel context.CancelFunc) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting "+name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "server", name, "error", err)
			errCh <- fmt.Errorf("%s failed: %w", name, err)
			cancel()
		}
	}()
	return errCh
}

// stopHTTPServer shuts srv down, waiting at most timeout for open requests.
func stopHTTPServer(name string, srv *http.Server, timeout time.Duration) {
	slog.Info("Shutting down HTTP server", "server", name, "timeout", timeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "server", name, "error", err)
		return
	}
	slog.Info("HTTP server shutdown completed", "server", name)
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// firstError returns a pending error from errCh without blocking.
func firstError(errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
