package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/doorcount/internal/config"
	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/detector"
	"github.com/MeKo-Tech/doorcount/internal/onnx"
	"github.com/MeKo-Tech/doorcount/internal/report"
	"github.com/MeKo-Tech/doorcount/internal/server"
	"github.com/MeKo-Tech/doorcount/internal/source"
	"github.com/MeKo-Tech/doorcount/internal/tracker"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the counting loop",
	Long: `Open the frame source, load the person detector and count line crossings
until the source ends, quit is requested or the process is interrupted. The
final counts are always written to the occupancy log before exit.

The control server (enabled by default) provides:
  GET  /health           - Health check
  GET  /api/counts       - Current counts
  POST /api/reset        - Reset counts
  POST /api/swap         - Toggle direction labels
  POST /api/quit         - Stop counting
  GET  /api/snapshot.jpg - Last frame with overlay
  GET  /ws               - Live outcome stream
  GET  /metrics          - Prometheus metrics

Examples:
  doorcount run --url http://camera.local/video
  doorcount run --source ./frames --fps 10 --keys
  doorcount run --url http://camera.local/video --remote-url http://collector:3000/api/occupancy/update`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		switch {
		case cmd.Flags().Changed("url"):
			cfg.Source.Kind = source.KindMJPEG
		case cmd.Flags().Changed("source"):
			cfg.Source.Kind = source.KindImages
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		src, err := source.Open(ctx, cfg.ToSourceConfig())
		if err != nil {
			return fmt.Errorf("failed to open frame source: %w", err)
		}

		det, err := detector.New(cfg.ToDetectorConfig())
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("failed to load detector: %w", err)
		}
		defer func() {
			if err := det.Close(); err != nil {
				slog.Warn("Failed to close detector", "error", err)
			}
			if err := onnx.Shutdown(); err != nil {
				slog.Warn("Failed to shut down ONNX Runtime", "error", err)
			}
		}()

		trk, err := tracker.New(cfg.ToTrackerConfig(), det)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("failed to create tracker: %w", err)
		}

		var keys io.Reader
		if v, _ := cmd.Flags().GetBool("keys"); v {
			keys = cmd.InOrStdin()
		}
		return runCounting(ctx, cfg, src, trk, keys, nil)
	},
}

// runCounting owns src from here on: it wires the reporter, the counter and
// the optional control server, runs the loop and tears everything down.
func runCounting(ctx context.Context, cfg *config.Config, src counter.FrameSource, trk counter.Tracker, keys io.Reader, clk clock.Clock) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if clk == nil {
		clk = clock.New()
	}

	rep, err := report.NewReporter(cfg.ToReporterConfig(), clk.Now())
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to open occupancy log: %w", err)
	}

	ccfg := cfg.ToCounterConfig()
	ccfg.Clock = clk
	ctr, err := counter.New(ccfg, src, trk, rep)
	if err != nil {
		_ = rep.Close(ctx)
		_ = src.Close()
		return err
	}

	var (
		httpSrv *http.Server
		ctl     *server.Server
		errCh   <-chan error
	)
	if cfg.Server.Enabled {
		ctl = server.NewServer(cfg.ToServerConfig(), ctr)
		mux := http.NewServeMux()
		ctl.SetupRoutes(mux)
		httpSrv = newHTTPServer(cfg.Server.Host, cfg.Server.Port, mux)
		errCh = startHTTPServer("control server", httpSrv, cancel)
	}

	if keys != nil {
		go readKeys(keys, ctr)
	}

	runErr := ctr.Run(ctx)

	if httpSrv != nil {
		stopHTTPServer("control server", httpSrv, cfg.Server.ShutdownTimeout)
		if err := ctl.Close(); err != nil {
			slog.Error("Control server cleanup error", "error", err)
		}
	}

	snap := ctr.Snapshot()
	slog.Info("Counting stopped", "in", snap.In, "out", snap.Out, "occupancy", snap.Occupancy)

	if runErr != nil {
		return runErr
	}
	return firstError(errCh)
}

type commander interface {
	Reset() error
	ToggleSwap() error
	Quit() error
}

// readKeys maps console lines to control commands: q quits, r resets and s
// toggles the direction labels.
func readKeys(r io.Reader, c commander) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var err error
		switch key := strings.ToLower(strings.TrimSpace(sc.Text())); key {
		case "":
			continue
		case "q":
			err = c.Quit()
		case "r":
			err = c.Reset()
		case "s":
			err = c.ToggleSwap()
		default:
			slog.Warn("Unknown key command", "input", key)
			continue
		}
		if err != nil {
			slog.Warn("Command rejected", "error", err)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("source", "", "directory of frames to replay")
	f.String("url", "", "MJPEG camera URL")
	f.Float64("fps", 0, "frame rate for replayed frames (0 = as fast as possible)")
	f.Bool("loop", false, "restart replayed frames at the end")
	f.Float64("line", 0.5, "counting line position as a fraction of the frame width")
	f.Bool("swap", false, "swap IN and OUT labels")
	f.Duration("cooldown", 0, "minimum time between two counted crossings of one person")
	f.Float64("confidence", 0.25, "minimum detection confidence")
	f.String("model", "", "person detection model (file name in the models dir or a path)")
	f.String("log-file", "", "occupancy log file")
	f.Duration("log-interval", 0, "occupancy log period")
	f.String("remote-url", "", "collector update URL for remote sync")
	f.Bool("server", true, "start the control server")
	f.StringP("host", "H", "localhost", "control server host")
	f.IntP("port", "p", 8080, "control server port")
	f.Bool("keys", false, "read q/r/s commands from standard input")

	for key, name := range map[string]string{
		"source.path":           "source",
		"source.url":            "url",
		"source.fps":            "fps",
		"source.loop":           "loop",
		"counter.line_fraction": "line",
		"counter.swap":          "swap",
		"counter.cooldown":      "cooldown",
		"counter.confidence":    "confidence",
		"counter.log_path":      "log-file",
		"counter.log_interval":  "log-interval",
		"detector.model_path":   "model",
		"remote.url":            "remote-url",
		"server.enabled":        "server",
		"server.host":           "host",
		"server.port":           "port",
	} {
		_ = viper.BindPFlag(key, f.Lookup(name))
	}
}
