package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vbp1/dbclone/internal/clone"
	"github.com/vbp1/dbclone/internal/mysql"
	"github.com/vbp1/dbclone/internal/postgres"
	"github.com/vbp1/dbclone/internal/process"
	"github.com/vbp1/dbclone/internal/settings"
)

type cloneFlags struct {
	Number     int
	Verbosity  int
	KeepDB     bool
	Progress   string
	LockWait   time.Duration
	KeepRunTmp bool
}

func newCloneCmd(cfg *Config) *cobra.Command {
	fl := &cloneFlags{}
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone the test database into <name>_<number>",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cfg.resolveSettings(cmd)
			if err != nil {
				return err
			}
			b, err := backendFor(s.Engine)
			if err != nil {
				return err
			}
			cc := clone.Config{
				Backend:    b,
				Settings:   s,
				Notices:    cmd.OutOrStdout(),
				LockWait:   fl.LockWait,
				KeepRunDir: fl.KeepRunTmp,
			}
			if showProgress(fl.Progress) {
				cc.Progress = cmd.ErrOrStderr()
			}
			c, err := clone.New(cc)
			if err != nil {
				return err
			}
			err = c.Clone(cmd.Context(), clone.Request{
				Number:       fl.Number,
				Verbosity:    fl.Verbosity,
				KeepExisting: fl.KeepDB,
			})
			if err != nil {
				return err
			}
			if fl.Verbosity >= 2 {
				fmt.Fprintf(cmd.OutOrStdout(), "Cloned %s into %s (%s)\n",
					s.Name, c.Target(fl.Number).Name, process.FormatBytes(c.Stats().Bytes))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&fl.Number, "number", 0, "Clone number; the clone is named <name>_<number> (required)")
	f.IntVar(&fl.Verbosity, "verbosity", 1, "Notice level: 0 silent, 1 normal, 2 chatty")
	f.BoolVar(&fl.KeepDB, "keepdb", false, "Reuse an existing clone instead of recreating it")
	f.StringVar(&fl.Progress, "progress", "auto", "Progress display mode: auto|bar|none")
	f.DurationVar(&fl.LockWait, "lock-wait", 0, "How long to wait for another process cloning the same target")
	f.BoolVar(&fl.KeepRunTmp, "keep-run-tmp", false, "Preserve dump/restore logs of successful runs")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

func backendFor(engine string) (clone.Backend, error) {
	switch engine {
	case settings.EngineMySQL:
		return mysql.Backend{}, nil
	case settings.EnginePostgres:
		return postgres.Backend{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", settings.ErrUnknownEngine, engine)
	}
}

func showProgress(mode string) bool {
	switch mode {
	case "bar":
		return true
	case "auto":
		return term.IsTerminal(int(os.Stderr.Fd()))
	default:
		return false
	}
}

// fatalCause returns the underlying error of a fatal clone failure, or nil.
func fatalCause(err error) error {
	var fe *clone.FatalError
	if errors.As(err, &fe) {
		return fe.Err
	}
	return nil
}
