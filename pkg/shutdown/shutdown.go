// Package shutdown centralizes signal handling and fatal-exit diagnostics.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"msgcore/pkg/logger"
)

// SignalContext returns a context cancelled on SIGINT or SIGTERM. A
// second signal exits immediately.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-ch:
			logger.Info("shutdown_signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			return
		}
		<-ch
		logger.Error("forced_exit")
		os.Exit(1)
	}()
	return ctx, cancel
}

// Abort logs a fatal startup error, writes a crash dump next to the data
// directory when possible, and exits.
func Abort(contextMsg string, err error, dbPath string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	if path, derr := writeCrashDump(dbPath, contextMsg, err); derr != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash dump: %v\n", derr)
	} else {
		logger.Error("startup_fatal_crashdump", "path", path)
	}
	logger.Sync()
	os.Exit(2)
}

func writeCrashDump(dbPath, reason string, cause error) (string, error) {
	dir := "./crash"
	if dbPath != "" {
		dir = filepath.Join(dbPath, "state", "crash")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	body := fmt.Sprintf("time: %s\nreason: %s\nerror: %v\n\n%s",
		time.Now().UTC().Format(time.RFC3339Nano), reason, cause, buf[:n])
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return "", fmt.Errorf("write crash dump: %w", err)
	}
	return path, nil
}
