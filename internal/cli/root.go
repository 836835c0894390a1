package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	dblog "github.com/vbp1/dbclone/internal/log"
	"github.com/vbp1/dbclone/internal/settings"
	"github.com/vbp1/dbclone/internal/util/signalctx"
)

// Config holds values of global CLI flags.
type Config struct {
	SettingsFile string
	Alias        string
	Engine       string
	Host         string
	Port         int
	User         string
	Name         string
	Debug        bool
	Verbose      bool
}

// NewRootCmd builds the dbclone command tree.
func NewRootCmd() *cobra.Command {
	cfg := &Config{}
	root := &cobra.Command{
		Use:           "dbclone",
		Short:         "Create and clone test databases for MySQL and PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			dblog.Setup(cfg.Debug, cfg.Verbose)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.SettingsFile, "settings", "dbclone.yaml", "Settings file with database definitions")
	f.StringVar(&cfg.Alias, "database", settings.DefaultAlias, "Database alias in the settings file")
	f.StringVar(&cfg.Engine, "engine", settings.EngineMySQL, "Database engine when no settings file is used: mysql|postgres")
	f.StringVar(&cfg.Host, "host", "", "Override database host (a path means a unix socket)")
	f.IntVar(&cfg.Port, "port", 0, "Override database port")
	f.StringVar(&cfg.User, "user", "", "Override database user")
	f.StringVar(&cfg.Name, "name", "", "Override source database name")
	f.BoolVar(&cfg.Debug, "debug", false, "Enable debug trace output")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")

	root.AddCommand(newCloneCmd(cfg), newDDLCmd(cfg), newSettingsCmd(cfg))
	return root
}

// InterruptedError is returned by Execute when a signal canceled the run.
type InterruptedError struct {
	Signal syscall.Signal
	Err    error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted by %s: %v", unix.SignalName(e.Signal), e.Err)
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// Execute runs the command tree with a context canceled on SIGINT/SIGTERM.
func Execute() error {
	ctx, cancel, sigCh := signalctx.WithSignals(context.Background())
	defer cancel()
	return interrupted(NewRootCmd().ExecuteContext(ctx), sigCh)
}

// interrupted wraps err when a signal was received during the run.
func interrupted(err error, sigCh <-chan os.Signal) error {
	select {
	case sig := <-sigCh:
		if err == nil {
			err = context.Canceled
		}
		if s, ok := sig.(syscall.Signal); ok {
			return &InterruptedError{Signal: s, Err: err}
		}
		return err
	default:
		return err
	}
}

// resolveSettings loads the selected alias from the settings file, if it
// exists, and applies flag overrides.
func (c *Config) resolveSettings(cmd *cobra.Command) (settings.ConnectionSettings, error) {
	var s settings.ConnectionSettings
	f, err := settings.Load(c.SettingsFile)
	switch {
	case err == nil:
		if s, err = f.Database(c.Alias); err != nil {
			return s, err
		}
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("settings"):
		s = settings.ConnectionSettings{Alias: c.Alias, Engine: c.Engine}
	default:
		return s, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		s.Engine = c.Engine
	}
	if flags.Changed("host") {
		s.Host = c.Host
	}
	if flags.Changed("port") {
		s.Port = c.Port
	}
	if flags.Changed("user") {
		s.User = c.User
	}
	if flags.Changed("name") {
		s.Name = c.Name
	}
	if s.Password == "" {
		s.Password = os.Getenv("DBCLONE_PASSWORD")
	}
	return s, s.Validate()
}

// ExitCode maps an error returned by Execute to a process exit status and
// writes the diagnostic for it.
func ExitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var ie *InterruptedError
	if errors.As(err, &ie) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 128 + int(ie.Signal)
	}
	if cause := fatalCause(err); cause != nil {
		fmt.Fprintf(stderr, "Got an error recreating the test database: %s\n", cause)
		return 2
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
