package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/cli/style"
	"github.com/iyuangang/webservice-monitor/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and engine status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pid, err := daemon.Running(settings.PIDFile())
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Println(style.DotDim + " daemon not running")
		return nil
	}
	if err != nil {
		return err
	}

	st, err := daemon.ReadStatus(settings.StatusFile())
	if err != nil {
		fmt.Printf("%s daemon running (pid %d), no status snapshot yet\n", style.DotWarning, pid)
		return nil
	}

	now := time.Now().UTC()
	dot, label := style.DotHealthy, "running"
	switch {
	case st.Degraded:
		dot, label = style.DotWarning, "running, storage degraded"
	case daemon.Stale(st, now):
		dot, label = style.DotWarning, fmt.Sprintf("running, status stale (last update %s ago)", now.Sub(st.UpdatedAt).Round(time.Second))
	}
	fmt.Printf("%s daemon %s\n\n", dot, label)

	kv := func(k, v string) {
		fmt.Println(style.Key.Render(k) + style.Val.Render(v))
	}
	kv("pid", fmt.Sprintf("%d", pid))
	kv("run id", st.RunID)
	kv("started", st.StartedAt.Local().Format(time.RFC1123))
	kv("uptime", now.Sub(st.StartedAt).Round(time.Second).String())
	if !st.LastTick.IsZero() {
		kv("last tick", now.Sub(st.LastTick).Round(time.Second).String()+" ago")
	}
	kv("active configs", fmt.Sprintf("%d %v", len(st.ActiveConfigs), st.ActiveConfigs))
	kv("inflight probes", fmt.Sprintf("%d", st.InflightProbes))
	if st.UnresolvedAlerts > 0 {
		kv("open alerts", style.Unhealthy.Render(fmt.Sprintf("%d", st.UnresolvedAlerts)))
	} else {
		kv("open alerts", "0")
	}
	kv("api", "http://"+settings.Addr)
	return nil
}
