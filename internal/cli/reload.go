package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/daemon"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the daemon to re-read its monitor configurations",
	RunE:  runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}

func runReload(cmd *cobra.Command, args []string) error {
	pid, err := daemon.Running(settings.PIDFile())
	if errors.Is(err, daemon.ErrNotRunning) {
		return errors.New("daemon not running")
	}
	if err != nil {
		return err
	}
	if err := daemon.Reload(pid); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	fmt.Printf("reload requested (pid %d)\n", pid)
	return nil
}
