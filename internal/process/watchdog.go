package process

import (
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

// DefaultGrace is how long a canceled child gets between SIGTERM and SIGKILL.
const DefaultGrace = 5 * time.Second

// TerminateOnCancel makes a context-bound command receive SIGTERM instead of
// SIGKILL when its context is canceled. If it has not exited after grace, it
// is killed and its I/O is abandoned.
func TerminateOnCancel(cmd *exec.Cmd, grace time.Duration) {
	if grace <= 0 {
		grace = DefaultGrace
	}
	cmd.Cancel = func() error {
		slog.Warn("context canceled, terminating child", "cmd", cmd.Path, "pid", cmd.Process.Pid)
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace
}
