package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"threadrelay/internal/config"
	"threadrelay/internal/services/bouyomi"
	"threadrelay/internal/services/onecomme"
)

const (
	speechName  = "Bouyomi-chan"
	overlayName = "OneComme"
	dialTimeout = 3 * time.Second
)

// CheckSpeech verifies the Bouyomi-chan HTTP endpoint answers.
func CheckSpeech(ctx context.Context, cfg config.Speech) Result {
	if err := config.ValidatePort(cfg.Port); err != nil {
		return Result{Name: speechName, Detail: err.Error()}
	}
	client := bouyomi.NewConfiguredClient(cfg)
	if err := client.Ping(ctx, dialTimeout); err != nil {
		return Result{Name: speechName, Detail: fmt.Sprintf("%s (%s)", client.Endpoint(), summarizeDialError(err))}
	}
	return Result{Name: speechName, Passed: true, Detail: fmt.Sprintf("%s reachable", client.Endpoint())}
}

// CheckOverlay verifies the OneComme comment endpoint answers.
func CheckOverlay(ctx context.Context, cfg config.Overlay) Result {
	client := onecomme.NewConfiguredClient(cfg)
	if !client.Configured() {
		return Result{Name: overlayName, Detail: "missing service_id"}
	}
	if err := client.Ping(ctx, dialTimeout); err != nil {
		return Result{Name: overlayName, Detail: fmt.Sprintf("%s (%s)", cfg.Endpoint, summarizeDialError(err))}
	}
	return Result{Name: overlayName, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Endpoint)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "not running"
	}
	return err.Error()
}
