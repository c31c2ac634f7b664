package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/doorcount/internal/config"
	"github.com/MeKo-Tech/doorcount/internal/models"
	"github.com/MeKo-Tech/doorcount/internal/onnx"
	"github.com/MeKo-Tech/doorcount/internal/source"
)

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check ONNX Runtime, the detection model and the frame source",
	Long: `Verify that the ONNX Runtime library and the person detection model can be
found and that the configured frame source opens.

Run this before "doorcount run" on a new device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		skipSource, _ := cmd.Flags().GetBool("skip-source")

		failed := runChecks(cmd, cfg, skipSource)
		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "All checks passed.")
		return nil
	},
}

func runChecks(cmd *cobra.Command, cfg *config.Config, skipSource bool) int {
	out := cmd.OutOrStdout()
	failed := 0
	report := func(name string, detail string, err error) {
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "FAIL  %s: %v\n", name, err)
			return
		}
		_, _ = fmt.Fprintf(out, "ok    %s: %s\n", name, detail)
	}

	lib, err := onnx.FindLibrary(cfg.Detector.LibraryPath, cfg.Detector.GPU.UseGPU)
	report("onnx runtime", lib, err)

	modelPath := cfg.ToDetectorConfig().ModelPath
	report("detection model", modelPath, models.Validate(modelPath))

	if skipSource {
		return failed
	}
	src, err := source.Open(cmd.Context(), cfg.ToSourceConfig())
	if err == nil {
		report("frame source", fmt.Sprintf("%s, %d px wide", cfg.Source.Kind, src.Width()), nil)
		closeQuietly(out, src)
	} else {
		report("frame source", "", err)
	}
	return failed
}

func closeQuietly(out io.Writer, c io.Closer) {
	if err := c.Close(); err != nil {
		_, _ = fmt.Fprintf(out, "warn  close: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("skip-source", false, "do not open the frame source")
}
