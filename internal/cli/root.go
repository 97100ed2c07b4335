package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/config"
	"github.com/iyuangang/webservice-monitor/internal/db"
)

var (
	cfgPath  string
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "webmon",
	Short: "Scheduled webservice monitoring with alerting",
	Long: `Webmon probes configured HTTP endpoints on their own schedules, keeps
per-day success and response-time statistics, and raises availability and
performance alerts when a service degrades.

The monitoring engine runs as a background daemon (webmon start) and is
driven from this CLI: manage monitor configurations, check engine status,
run ad hoc probes, inspect alerts, and render daily reports.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(cfgPath)
		return err
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "settings file (default $WEBMON_CONFIG or <root>/config.yaml)")
}

// openRepo opens the configured database for the offline commands. The
// caller must invoke the returned closer.
func openRepo() (*db.Repository, func() error, error) {
	conn, err := db.Open(settings.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return db.NewRepository(conn), conn.Close, nil
}

// cliLogger keeps offline commands quiet unless something goes wrong.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
