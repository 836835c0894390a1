//go:build integration
// +build integration

package util

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// StartCompose brings up the database services of composeFile under project
// projectName and returns a teardown func that removes them with their volumes.
func StartCompose(ctx context.Context, composeFile, projectName string) (func() error, error) {
	absCompose, err := filepath.Abs(composeFile)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}

	up := exec.CommandContext(ctx, "docker", "compose", "-f", absCompose, "-p", projectName, "up", "-d")
	if out, err := up.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("docker compose up: %w\n%s", err, string(out))
	}

	return func() error {
		downCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return exec.CommandContext(downCtx, "docker", "compose", "-f", absCompose, "-p", projectName, "down", "-v").Run()
	}, nil
}
