package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/doorcount/internal/benchmark"
	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/detector"
	"github.com/MeKo-Tech/doorcount/internal/onnx"
	"github.com/MeKo-Tech/doorcount/internal/tracker"
	"github.com/MeKo-Tech/doorcount/internal/utils"
)

// benchCmd represents the bench command.
var benchCmd = &cobra.Command{
	Use:   "bench <frames-dir>",
	Short: "Measure per-frame detection, tracking and overlay latency",
	Long: `Run the detector, the tracker and the snapshot overlay over a directory of
frames and report latency and the sustainable frame rate per stage.

Examples:
  doorcount bench ./frames
  doorcount bench ./frames --iterations 200 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		iterations, _ := cmd.Flags().GetInt("iterations")
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("unsupported format: %s (must be text or json)", format)
		}

		frames, err := loadFrames(args[0])
		if err != nil {
			return err
		}

		det, err := detector.New(cfg.ToDetectorConfig())
		if err != nil {
			return fmt.Errorf("failed to load detector: %w", err)
		}
		defer func() {
			_ = det.Close()
			_ = onnx.Shutdown()
		}()
		trk, err := tracker.New(cfg.ToTrackerConfig(), det)
		if err != nil {
			return err
		}

		filter := counter.TrackFilter{Class: cfg.Detector.Class, Confidence: cfg.Counter.Confidence}
		suite := benchmark.NewSuite()
		suite.AddFrameBenchmarks(frames, benchmark.Stages{
			Detect: func(ctx context.Context, img image.Image) error {
				_, err := det.Detect(ctx, img, filter.Class, filter.Confidence)
				return err
			},
			Tracker: trk,
			Filter:  filter,
			LineX:   cfg.Counter.LineFraction * float64(frames[0].Bounds().Dx()),
		})

		results := suite.RunAll(cmd.Context(), iterations)
		out := cmd.OutOrStdout()
		if format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		benchmark.PrintResults(out, results)
		return nil
	},
}

// loadFrames decodes every supported image in dir in lexical order.
func loadFrames(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && utils.IsSupportedImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := utils.LoadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntP("iterations", "n", 50, "frames processed per stage")
	benchCmd.Flags().StringP("format", "f", "text", "output format: text or json")
}
