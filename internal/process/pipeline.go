package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Stats describes a finished pipeline run.
type Stats struct {
	Bytes    int64
	Duration time.Duration
}

// StageError reports a pipeline stage that did not exit cleanly.
type StageError struct {
	Stage    string
	Program  string
	ExitCode int    // -1 when killed by a signal
	Signal   string // e.g. SIGPIPE
	Stderr   string // tail of the stage's stderr
	Err      error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s (%s)", e.Stage, e.Program)
	switch {
	case e.Signal != "":
		msg += " killed by " + e.Signal
	case e.ExitCode > 0:
		msg += fmt.Sprintf(" exited with status %d", e.ExitCode)
	default:
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// BrokenPipe reports whether the stage died writing into a closed pipe, either
// by the signal itself or by a shell reporting it as 128+SIGPIPE.
func (e *StageError) BrokenPipe() bool {
	return e.Signal == unix.SignalName(unix.SIGPIPE) || e.ExitCode == 128+int(unix.SIGPIPE)
}

// Pipeline connects the standard output of Producer to the standard input of
// Consumer. Both commands must be unstarted. Bytes flow through the parent so
// that they can be counted; the parent drops both pipe ends as soon as the copy
// ends, so a consumer that exits early makes the producer fail with EPIPE
// instead of blocking forever.
type Pipeline struct {
	Producer     *exec.Cmd
	Consumer     *exec.Cmd
	ProducerName string
	ConsumerName string

	// LogDir, if set, receives <stage>.log files with each stage's stderr.
	LogDir string
	// Progress, if set, renders a byte counter there.
	Progress io.Writer
}

// Run starts both stages, waits for both, and fails if either exits nonzero.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	if p.Producer == nil || p.Consumer == nil {
		return Stats{}, errors.New("pipeline: producer and consumer required")
	}
	prodName := nameOr(p.ProducerName, "producer")
	consName := nameOr(p.ConsumerName, "consumer")

	prodTail, closeProdLog, err := p.stderrSink(prodName)
	if err != nil {
		return Stats{}, err
	}
	defer closeProdLog()
	consTail, closeConsLog, err := p.stderrSink(consName)
	if err != nil {
		return Stats{}, err
	}
	defer closeConsLog()
	p.Producer.Stderr = teeTail(p.Producer.Stderr, prodTail)
	p.Consumer.Stderr = teeTail(p.Consumer.Stderr, consTail)

	// The consumer's stdout is captured but nobody reads it while it runs.
	var consOut bytes.Buffer
	if p.Consumer.Stdout == nil {
		p.Consumer.Stdout = &consOut
	}

	prodOut, err := p.Producer.StdoutPipe()
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: %s stdout: %w", prodName, err)
	}
	consIn, err := p.Consumer.StdinPipe()
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: %s stdin: %w", consName, err)
	}

	start := time.Now()
	slog.Info("pipeline start", "producer", p.Producer.Args, "consumer", p.Consumer.Args)

	if err := p.Producer.Start(); err != nil {
		_ = consIn.Close()
		return Stats{}, stageError(prodName, p.Producer, err, prodTail)
	}
	if err := p.Consumer.Start(); err != nil {
		_ = prodOut.Close()
		_ = p.Producer.Wait()
		return Stats{}, stageError(consName, p.Consumer, err, consTail)
	}

	var progress *mpb.Progress
	var bar *mpb.Bar
	if p.Progress != nil {
		progress = mpb.NewWithContext(ctx, mpb.WithOutput(p.Progress), mpb.WithWidth(40), mpb.WithRefreshRate(200*time.Millisecond))
		label := prodName + " → " + consName + " "
		bar = progress.New(0, mpb.SpinnerStyle(),
			mpb.PrependDecorators(decor.Name(label, decor.WC{W: len(label), C: decor.DSyncWidth})),
			mpb.AppendDecorators(decor.Any(func(s decor.Statistics) string {
				return FormatBytes(s.Current)
			})))
	}

	var (
		g       errgroup.Group
		written int64
	)
	g.Go(func() error {
		var src io.Reader = prodOut
		if bar != nil {
			src = bar.ProxyReader(prodOut)
		}
		n, copyErr := io.Copy(consIn, src)
		written = n
		// EOF for the consumer, EPIPE for the producer's next write.
		closeErr := consIn.Close()
		_ = prodOut.Close()
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	})

	copyErr := g.Wait()
	prodErr := p.Producer.Wait()
	consErr := p.Consumer.Wait()

	if bar != nil {
		if prodErr != nil || consErr != nil || copyErr != nil {
			bar.Abort(false)
		} else {
			bar.SetTotal(-1, true)
		}
		progress.Wait()
	}

	stats := Stats{Bytes: written, Duration: time.Since(start)}
	slog.Info("pipeline done", "bytes", stats.Bytes, "dur", stats.Duration,
		"producer_err", prodErr, "consumer_err", consErr, "copy_err", copyErr)
	if consOut.Len() > 0 {
		slog.Debug("consumer output", "stage", consName, "out", consOut.String())
	}

	return stats, pipelineError(
		stageErrorOrNil(prodName, p.Producer, prodErr, prodTail),
		stageErrorOrNil(consName, p.Consumer, consErr, consTail),
		copyErr, written)
}

// pipelineError merges the outcome of both stages. A producer killed by
// SIGPIPE is a consequence of a failed consumer and is not reported on its own.
func pipelineError(prod, cons *StageError, copyErr error, written int64) error {
	switch {
	case prod == nil && cons == nil:
		if copyErr != nil {
			return fmt.Errorf("pipeline: consumer stopped reading after %d bytes: %w", written, copyErr)
		}
		return nil
	case cons == nil:
		return prod
	case prod == nil || prod.BrokenPipe():
		return cons
	default:
		return errors.Join(prod, cons)
	}
}

func (p *Pipeline) stderrSink(stage string) (*tailBuffer, func(), error) {
	tail := newTailBuffer(defaultTailSize)
	if p.LogDir == "" {
		return tail, func() {}, nil
	}
	f, err := os.Create(filepath.Join(p.LogDir, stage+".log"))
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: %s log: %w", stage, err)
	}
	tail.file = f
	return tail, func() { _ = f.Close() }, nil
}

func teeTail(existing io.Writer, tail *tailBuffer) io.Writer {
	w := []io.Writer{tail}
	if tail.file != nil {
		w = append(w, tail.file)
	}
	if existing != nil {
		w = append(w, existing)
	}
	return io.MultiWriter(w...)
}

func stageErrorOrNil(stage string, cmd *exec.Cmd, err error, tail *tailBuffer) *StageError {
	if err == nil {
		return nil
	}
	return stageError(stage, cmd, err, tail)
}

func stageError(stage string, cmd *exec.Cmd, err error, tail *tailBuffer) *StageError {
	se := &StageError{
		Stage:    stage,
		Program:  filepath.Base(cmd.Path),
		ExitCode: -1,
		Stderr:   tail.String(),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		se.ExitCode = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			se.Signal = unix.SignalName(ws.Signal())
		}
	}
	return se
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
