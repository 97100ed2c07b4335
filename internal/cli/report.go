package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/models"
	"github.com/iyuangang/webservice-monitor/internal/report"
)

var (
	reportDate   string
	reportConfig int64
	reportOut    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a daily HTML report from stored history",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "UTC day to report on, YYYY-MM-DD (default today)")
	reportCmd.Flags().Int64Var(&reportConfig, "config", 0, "restrict the report to one config id")
	reportCmd.Flags().StringVar(&reportOut, "out", "", `output path, "-" for stdout (default <report_dir>/report-<date>.html)`)
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	day := time.Now().UTC()
	if reportDate != "" {
		parsed, err := time.Parse("2006-01-02", reportDate)
		if err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		day = parsed
	}

	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := cmd.Context()

	configs, err := repo.ListConfigs(ctx, false)
	if err != nil {
		return err
	}
	if reportConfig != 0 {
		kept := configs[:0]
		for _, c := range configs {
			if c.ID == reportConfig {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("config %d not found", reportConfig)
		}
		configs = kept
	}
	stats, err := repo.DailyStats(ctx, day)
	if err != nil {
		return err
	}
	alerts, err := repo.ListAlerts(ctx, reportConfig, true, 500)
	if err != nil {
		return err
	}

	rep := report.Build(models.DayOf(day), time.Now().UTC(), configs, stats, alerts)

	if reportOut == "-" {
		return report.Render(os.Stdout, rep)
	}
	out := reportOut
	if out == "" {
		if err := os.MkdirAll(settings.ReportDir, 0o755); err != nil {
			return err
		}
		out = filepath.Join(settings.ReportDir, "report-"+rep.Day+".html")
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := report.Render(f, rep); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("report for %s written to %s\n", rep.Day, out)
	return nil
}
