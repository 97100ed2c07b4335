package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/daemon"
	"github.com/iyuangang/webservice-monitor/internal/engine"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

var (
	startConfigs    []int64
	startForeground bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitoring daemon",
	Long: `Start the monitoring engine. By default the process detaches and keeps
running in the background; its output goes to a dated log file under the
log directory.

With --configs only the listed configuration ids are scheduled; everything
else stays idle until the next start or reload without the flag.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().Int64SliceVar(&startConfigs, "configs", nil, "restrict monitoring to these config ids")
	startCmd.Flags().BoolVar(&startForeground, "foreground", false, "run in the foreground instead of detaching")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	if pid, err := daemon.Running(settings.PIDFile()); err == nil {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	if !startForeground {
		logPath := filepath.Join(settings.LogDir, "webmon-"+time.Now().Format("20060102")+".log")
		spawnArgs := []string{"start", "--foreground"}
		if cfgPath != "" {
			spawnArgs = append(spawnArgs, "--config", cfgPath)
		}
		for _, id := range startConfigs {
			spawnArgs = append(spawnArgs, "--configs", strconv.FormatInt(id, 10))
		}
		pid, err := daemon.SpawnDetached(logPath, spawnArgs...)
		if err != nil {
			return fmt.Errorf("spawn daemon: %w", err)
		}
		fmt.Printf("daemon started (pid %d), logging to %s\n", pid, logPath)
		return nil
	}

	return runForeground()
}

func runForeground() error {
	if err := os.MkdirAll(settings.RootDir, 0o755); err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := daemon.WritePID(settings.PIDFile()); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	defer daemon.RemovePID(settings.PIDFile())
	defer daemon.RemoveStatus(settings.StatusFile())

	eng, err := engine.New(settings, startConfigs, logger)
	if err != nil {
		return err
	}
	eng.OnStatus = func(st models.EngineStatus) {
		if err := daemon.WriteStatus(settings.StatusFile(), st); err != nil {
			logger.Warn("write status file", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if _, err := eng.Reload(context.Background()); err != nil {
				logger.Error("reload failed", "err", err)
			}
		}
	}()

	logger.Info("daemon starting", "pid", os.Getpid(), "db", settings.DBPath, "addr", settings.Addr)
	return eng.Run(ctx)
}
