package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/models"
)

// StaleAfter is how old a status file may be before a reader should assume
// the engine died without cleaning up.
const StaleAfter = 2 * time.Minute

var ErrNotRunning = errors.New("engine is not running")

func WritePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func ReadPID(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("pidfile %s: %w", path, err)
	}
	return pid, nil
}

func RemovePID(path string) {
	_ = os.Remove(path)
}

// Running reads the pidfile and checks the process actually exists. A stale
// pidfile left by a crash reports ErrNotRunning.
func Running(pidPath string) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	if !Alive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

func Alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Stop sends SIGTERM, asking the engine for a graceful shutdown.
func Stop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// Reload sends SIGHUP, asking the engine to re-read its configs.
func Reload(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGHUP)
}

// WaitExit polls until the process is gone or the timeout passes.
func WaitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !Alive(pid)
}

// SpawnDetached re-executes the current binary in its own session with
// output sent to logPath, and returns the child pid.
func SpawnDetached(logPath string, args ...string) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	cmd := exec.Command(self, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Detach: the child belongs to its own session now.
	_ = cmd.Process.Release()
	return pid, nil
}

// WriteStatus persists the engine status snapshot atomically so readers
// never see a half-written file.
func WriteStatus(path string, st models.EngineStatus) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadStatus(path string) (models.EngineStatus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.EngineStatus{}, err
	}
	var st models.EngineStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return models.EngineStatus{}, fmt.Errorf("status file %s: %w", path, err)
	}
	return st, nil
}

// Stale reports whether a status snapshot is too old to trust.
func Stale(st models.EngineStatus, now time.Time) bool {
	return now.Sub(st.UpdatedAt) > StaleAfter
}

func RemoveStatus(path string) {
	_ = os.Remove(path)
}
