package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/doorcount/internal/server"
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the counts of a running counter",
	Long: `Query the control server of a running counter and print its counts.

Examples:
  doorcount status
  doorcount status --addr http://door-cam.local:8080 --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		format, _ := cmd.Flags().GetString("format")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		counts, err := fetchCounts(ctx, addr)
		if err != nil {
			return err
		}
		return writeStatus(cmd.OutOrStdout(), format, counts)
	},
}

func fetchCounts(ctx context.Context, addr string) (server.CountsResponse, error) {
	var counts server.CountsResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/api/counts", nil)
	if err != nil {
		return counts, fmt.Errorf("invalid server address: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return counts, fmt.Errorf("failed to reach counter at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return counts, fmt.Errorf("counter returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		return counts, fmt.Errorf("failed to decode counts: %w", err)
	}
	return counts, nil
}

func writeStatus(w io.Writer, format string, counts server.CountsResponse) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(counts); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		p := message.NewPrinter(language.English)
		swap := "off"
		if counts.Swap {
			swap = "on"
		}
		_, _ = p.Fprintf(w, "In:        %d\n", counts.In)
		_, _ = p.Fprintf(w, "Out:       %d\n", counts.Out)
		_, _ = p.Fprintf(w, "Occupancy: %d\n", counts.Occupancy)
		_, _ = p.Fprintf(w, "Swap:      %s\n", swap)
		if counts.At != "" {
			at := counts.At
			if t, err := time.Parse(time.RFC3339, counts.At); err == nil {
				at = t.Local().Format("2006-01-02 15:04:05 MST")
			}
			_, _ = p.Fprintf(w, "Updated:   %s\n", at)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (must be text, json or yaml)", format)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("addr", "", "control server address (default from server.host and server.port)")
	statusCmd.Flags().StringP("format", "f", "text", "output format: text, json or yaml")
	statusCmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
}
