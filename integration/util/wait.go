//go:build integration
// +build integration

package util

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// WaitMySQLReady polls mysqladmin ping inside container until it returns 0.
func WaitMySQLReady(ctx context.Context, container, password string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ready := exec.CommandContext(ctx, "docker", "exec", container,
			"mysqladmin", "ping", "-h", "127.0.0.1", "-uroot", "-p"+password, "--silent")
		if err := ready.Run(); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not become ready", container)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// MySQL runs a statement with the mysql client inside container and returns its output.
func MySQL(ctx context.Context, container, password, query string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "exec", container,
		"mysql", "-uroot", "-p"+password, "-N", "-B", "-e", query).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("mysql %q: %w\n%s", query, err, out)
	}
	return string(out), nil
}
