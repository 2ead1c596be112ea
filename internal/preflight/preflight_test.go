package preflight

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"threadrelay/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func listeningSpeech(t *testing.T) config.Speech {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	host, portText, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portText)
	cfg := config.Default().Speech
	cfg.Host = host
	cfg.Port = port
	return cfg
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestCheckSpeech_Reachable(t *testing.T) {
	result := CheckSpeech(context.Background(), listeningSpeech(t))
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckSpeech_NotRunning(t *testing.T) {
	cfg := config.Default().Speech
	cfg.Host = "127.0.0.1"
	cfg.Port = closedPort(t)
	result := CheckSpeech(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
}

func TestCheckSpeech_InvalidPort(t *testing.T) {
	cfg := config.Default().Speech
	cfg.Port = 70000
	result := CheckSpeech(context.Background(), cfg)
	if result.Passed || result.Detail != config.PortRangeMessage {
		t.Fatalf("expected port range message, got %+v", result)
	}
}

func TestCheckOverlay_MissingServiceID(t *testing.T) {
	cfg := config.Default().Overlay
	cfg.ServiceID = ""
	result := CheckOverlay(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected failure without service id")
	}
}

func TestCheckOverlay_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default().Overlay
	cfg.Endpoint = srv.URL + "/api/comments"
	cfg.ServiceID = "svc"
	result := CheckOverlay(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_SkipsOverlayCheckWithoutStream(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.ArchiveDir = t.TempDir()
	cfg.Speech = listeningSpeech(t)
	cfg.Stream.Enabled = false

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}
