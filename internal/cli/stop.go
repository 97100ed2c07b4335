package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the monitoring daemon",
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := daemon.Running(settings.PIDFile())
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Println("daemon not running")
		daemon.RemovePID(settings.PIDFile())
		daemon.RemoveStatus(settings.StatusFile())
		return nil
	}
	if err != nil {
		return err
	}

	if err := daemon.Stop(pid); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	if !daemon.WaitExit(pid, 15*time.Second) {
		return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
	}
	daemon.RemovePID(settings.PIDFile())
	daemon.RemoveStatus(settings.StatusFile())
	fmt.Printf("daemon stopped (pid %d)\n", pid)
	return nil
}
