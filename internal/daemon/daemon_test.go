package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/models"
)

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	if err := WritePID(path); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}

	// Our own process is obviously alive.
	got, err := Running(path)
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if got != os.Getpid() {
		t.Fatalf("running pid = %d, want %d", got, os.Getpid())
	}

	RemovePID(path)
	if _, err := Running(path); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("running after remove = %v, want ErrNotRunning", err)
	}
}

func TestRunningIgnoresStalePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	// A pid that cannot exist on Linux.
	if err := os.WriteFile(path, []byte("4194399\n"), 0o644); err != nil {
		t.Fatalf("write stale pidfile: %v", err)
	}
	if _, err := Running(path); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("stale pidfile = %v, want ErrNotRunning", err)
	}
}

func TestStatusFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	st := models.EngineStatus{
		Running:          true,
		PID:              1234,
		RunID:            "run-1",
		StartedAt:        now.Add(-time.Hour),
		LastTick:         now,
		ActiveConfigs:    []int64{1, 2},
		UnresolvedAlerts: 1,
		UpdatedAt:        now,
	}
	if err := WriteStatus(path, st); err != nil {
		t.Fatalf("write status: %v", err)
	}
	got, err := ReadStatus(path)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if got.PID != 1234 || len(got.ActiveConfigs) != 2 || !got.Running {
		t.Fatalf("status mismatch: %+v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind")
	}

	if Stale(got, now.Add(time.Minute)) {
		t.Fatalf("fresh status reported stale")
	}
	if !Stale(got, now.Add(3*time.Minute)) {
		t.Fatalf("old status not reported stale")
	}
}

func TestReadStatusRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadStatus(path); err == nil {
		t.Fatalf("garbage status file parsed without error")
	}
}
