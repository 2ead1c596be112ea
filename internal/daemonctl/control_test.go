package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"threadrelay/internal/config"
	"threadrelay/internal/daemonctl"
	"threadrelay/internal/preflight"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Speech.Port = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

func TestStatusSnapshotOffline(t *testing.T) {
	cfg := offlineConfig(t)
	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Status.Running {
		t.Fatal("expected offline daemon")
	}
	if len(snapshot.Status.Checks) == 0 || len(snapshot.RelayChecks) != len(snapshot.Status.Checks) {
		t.Fatalf("expected local readiness checks, got %+v", snapshot.Status.Checks)
	}
	first := snapshot.SystemChecks[0]
	if first.Label != "threadrelay" || first.Severity != "warn" {
		t.Fatalf("unexpected daemon line %+v", first)
	}
	if snapshot.SystemChecks[1].Detail != "No thread open" {
		t.Fatalf("unexpected thread line %+v", snapshot.SystemChecks[1])
	}
}

func TestBuildRelayChecksSeverity(t *testing.T) {
	lines := daemonctl.BuildRelayChecks([]preflight.Result{
		{Name: "Bouyomi-chan", Passed: true, Detail: "reachable"},
		{Name: "OneComme", Detail: "missing service_id"},
	})
	if len(lines) != 2 || lines[0].Severity != "ok" || lines[1].Severity != "error" {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := offlineConfig(t)
	if _, err := daemonctl.StopAndTerminate(cfg.SocketPath(), cfg, 100*time.Millisecond); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	running, pid, err := daemonctl.ProcessInfo(cfg.SocketPath())
	if err != nil || running || pid != 0 {
		t.Fatalf("expected no process, got running=%v pid=%d err=%v", running, pid, err)
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	cfg := offlineConfig(t)
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := daemonctl.ForceKillProcess(filepath.Join(t.TempDir(), "missing.pid"), "", 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}
