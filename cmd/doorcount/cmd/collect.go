package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/doorcount/internal/collector"
	"github.com/MeKo-Tech/doorcount/internal/store"
)

// collectCmd represents the collect command.
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Start the occupancy collector service",
	Long: `Start the HTTP service that receives occupancy updates pushed by counters
and answers summary queries from a SQLite database.

The service provides the following endpoints:
  POST /api/occupancy/update      - Store an update
  GET  /api/occupancy             - Latest 100 records
  GET  /api/occupancy/latest      - Most recent record
  GET  /api/occupancy/today       - Totals, peak and average for today
  GET  /api/occupancy/today-trend - Latest count per hour today
  GET  /api/occupancy/weekly      - Per-day summary (?week=YYYY-MM-DD)
  GET  /api/occupancy/recent      - Recent entries and exits (?limit=N)
  GET  /health                    - Health check
  GET  /metrics                   - Prometheus metrics

Examples:
  doorcount collect
  doorcount collect --port 3000 --db /var/lib/doorcount/occupancy.db
  doorcount collect --timezone Europe/Berlin --rate-limit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ccfg := cfg.Collector

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		st, err := store.Open(ctx, ccfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			slog.Info("Closing database")
			if err := st.Close(); err != nil {
				slog.Error("Database close error", "error", err)
			}
		}()

		svc, err := collector.New(ccfg, st, nil)
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		svc.SetupRoutes(mux)
		httpSrv := newHTTPServer(ccfg.Host, ccfg.Port, mux)
		errCh := startHTTPServer("collector", httpSrv, cancel)

		<-ctx.Done()
		stopHTTPServer("collector", httpSrv, ccfg.ShutdownTimeout)
		slog.Info("Graceful shutdown completed")
		return firstError(errCh)
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)

	f := collectCmd.Flags()
	f.String("host", "0.0.0.0", "collector host")
	f.IntP("port", "p", 3000, "collector port")
	f.String("db", "occupancy.db", "SQLite database path")
	f.String("timezone", "UTC", "time zone used for daily and weekly summaries")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Bool("rate-limit", false, "enable per-client rate limiting of updates")

	for key, name := range map[string]string{
		"collector.host":               "host",
		"collector.port":               "port",
		"collector.db_path":            "db",
		"collector.timezone":           "timezone",
		"collector.cors_origin":        "cors-origin",
		"collector.rate_limit.enabled": "rate-limit",
	} {
		_ = viper.BindPFlag(key, f.Lookup(name))
	}
}
