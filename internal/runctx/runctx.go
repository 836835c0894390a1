package runctx

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// RunCtx owns the temporary directory of one clone run. Stage logs of the
// dump/restore pipeline are written there.
type RunCtx struct {
	Dir  string
	keep bool
}

// New creates a directory under the system temp dir. With keep=true the
// directory survives Cleanup.
func New(prefix string, keep bool) (*RunCtx, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("run dir: %w", err)
	}
	return &RunCtx{Dir: dir, keep: keep}, nil
}

// Cleanup removes the directory unless it was created with keep or the run
// failed, in which case the logs are left for inspection.
func (r *RunCtx) Cleanup(failed bool) error {
	if r.keep || failed {
		slog.Info("run dir kept", "dir", r.Dir, "failed", failed)
		return nil
	}
	return os.RemoveAll(r.Dir)
}

// Path joins run dir with subpath.
func (r *RunCtx) Path(elem ...string) string {
	return filepath.Join(append([]string{r.Dir}, elem...)...)
}

func (r *RunCtx) String() string { return fmt.Sprintf("RunCtx(%s)", r.Dir) }
