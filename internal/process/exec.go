package process

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// Result holds the outcome of a finished command.
type Result struct {
	Cmd      string
	Args     []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	Err      error
}

// RunLogged runs a prepared command to completion, logging start and end and
// collecting its output. cmd.Stdout and cmd.Stderr are overwritten.
func RunLogged(ctx context.Context, cmd *exec.Cmd) Result {
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	slog.Debug("exec start", "cmd", cmd.Path, "args", cmd.Args[1:])
	start := time.Now()

	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		err = cmd.Run()
	}
	duration := time.Since(start)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	slog.Debug("exec done", "cmd", cmd.Path, "code", exitCode, "dur", duration, "err", err)

	return Result{
		Cmd:      cmd.Path,
		Args:     cmd.Args[1:],
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
		Err:      err,
	}
}
