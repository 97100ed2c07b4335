package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/retention"
)

var (
	cleanupDays     int
	cleanupResolved bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete probe history older than the retention window",
	Long: `Run a retention sweep immediately. Only probe results are deleted;
configurations and alert history always survive. With --resolved-alerts,
resolved alerts older than the window are purged as well.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "override the configured retention window")
	cleanupCmd.Flags().BoolVar(&cleanupResolved, "resolved-alerts", false, "also purge resolved alerts older than the window")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	days := cleanupDays
	if days <= 0 {
		days = settings.RetentionDays
	}
	svc := retention.NewService(repo, days, cleanupResolved, cliLogger())

	deleted, err := svc.Sweep(cmd.Context(), days)
	if err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}
	fmt.Printf("deleted %d probe results older than %d days\n", deleted, days)

	if cleanupResolved {
		purged, err := svc.PurgeResolvedAlerts(cmd.Context())
		if err != nil {
			return fmt.Errorf("purge resolved alerts: %w", err)
		}
		fmt.Printf("purged %d resolved alerts\n", purged)
	}
	return nil
}
