package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/cli/style"
	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

var (
	alertListConfig int64
	alertListAll    bool
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Inspect and resolve alerts",
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts (unresolved by default)",
	RunE:  runAlertList,
}

var alertResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve an open alert by hand",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertResolve,
}

func init() {
	alertListCmd.Flags().Int64Var(&alertListConfig, "config", 0, "only alerts for this config id")
	alertListCmd.Flags().BoolVar(&alertListAll, "all", false, "include resolved alerts")
	alertCmd.AddCommand(alertListCmd)
	alertCmd.AddCommand(alertResolveCmd)
	rootCmd.AddCommand(alertCmd)
}

func runAlertList(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := cmd.Context()

	alerts, err := repo.ListAlerts(ctx, alertListConfig, alertListAll, 0)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Println(style.DimText.Render("no alerts"))
		return nil
	}

	names := map[int64]string{}
	if configs, err := repo.ListConfigs(ctx, false); err == nil {
		for _, c := range configs {
			names[c.ID] = c.Name
		}
	}

	header := fmt.Sprintf("  %-2s %-5s %-20s %-14s %-18s %s", "", "ID", "CONFIG", "TYPE", "OPENED", "MESSAGE")
	fmt.Println(style.TableHeader.Render(header))
	for _, a := range alerts {
		printAlertRow(a, names)
	}
	return nil
}

func printAlertRow(a models.Alert, names map[int64]string) {
	dot := style.DotUnhealthy
	if a.Resolved {
		dot = style.DotDim
	}
	name := names[a.ConfigID]
	if name == "" {
		name = fmt.Sprintf("config %d", a.ConfigID)
	}
	opened := time.Since(a.OpenedAt).Round(time.Minute)
	msg := a.Message
	if a.Resolved && a.ResolvedAt != nil {
		msg += style.DimText.Render(fmt.Sprintf("  (resolved after %s)", a.ResolvedAt.Sub(a.OpenedAt).Round(time.Second)))
	}
	fmt.Printf("  %s %-5d %-20s %-14s %-18s %s\n", dot, a.ID, truncate(name, 20), a.Type, opened.String()+" ago", msg)
}

func runAlertResolve(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid alert id %q", args[0])
	}
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := cmd.Context()

	alert, err := repo.GetAlert(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("alert %d not found", id)
	}
	if err != nil {
		return err
	}
	at := time.Now().UTC()
	if at.Before(alert.OpenedAt) {
		at = alert.OpenedAt
	}
	resolved, err := repo.ResolveAlert(ctx, id, at)
	if err != nil {
		return err
	}
	if !resolved {
		fmt.Printf("alert %d was already resolved\n", id)
		return nil
	}
	fmt.Printf("%s alert %d resolved\n", style.DotHealthy, id)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
