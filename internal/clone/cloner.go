// Package clone creates numbered copies of a test database by creating an
// empty database and piping a logical dump of the source into it.
package clone

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/vbp1/dbclone/internal/debug"
	"github.com/vbp1/dbclone/internal/lock"
	"github.com/vbp1/dbclone/internal/process"
	"github.com/vbp1/dbclone/internal/runctx"
	"github.com/vbp1/dbclone/internal/settings"
)

// Request describes one clone.
type Request struct {
	Number       int
	Verbosity    int
	KeepExisting bool
}

// Config wires the collaborators of a Cloner.
type Config struct {
	Backend  Backend
	Settings settings.ConnectionSettings

	// Notices receives verbosity-gated, human-readable messages. Defaults to io.Discard.
	Notices io.Writer
	// Progress, if set, shows bytes flowing through the dump/restore pipe.
	Progress io.Writer
	// Command builds the external processes. Defaults to exec.CommandContext.
	Command CommandFunc

	// LockWait is how long to wait for another process cloning the same target.
	LockWait time.Duration
	// KeepRunDir preserves the stage logs of successful runs.
	KeepRunDir bool
}

// Cloner runs the clone protocol for one source database. A Cloner handles
// one request at a time; use one Cloner per concurrent clone.
type Cloner struct {
	cfg Config

	mu    sync.Mutex
	state State
	stats process.Stats
}

// New validates cfg and returns a Cloner.
func New(cfg Config) (*Cloner, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("clone: backend required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.Settings.Engine != cfg.Backend.Engine() {
		return nil, fmt.Errorf("clone: settings engine %q does not match backend %q", cfg.Settings.Engine, cfg.Backend.Engine())
	}
	if cfg.Notices == nil {
		cfg.Notices = io.Discard
	}
	if cfg.Command == nil {
		cfg.Command = exec.CommandContext
	}
	return &Cloner{cfg: cfg}, nil
}

// State returns the protocol step the cloner is in.
func (c *Cloner) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns the pipeline statistics of the last completed clone.
func (c *Cloner) Stats() process.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cloner) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	slog.Debug("clone state", "from", prev, "to", s)
}

// Target returns the settings of clone number n.
func (c *Cloner) Target(n int) settings.ConnectionSettings {
	return c.cfg.Settings.CloneSettings(n)
}

// Clone creates database <source>_<number> and fills it from the source.
//
// If the target already exists and KeepExisting is set, it is reused as is.
// Otherwise it is dropped and recreated; a failure there is returned as a
// *FatalError. A nonzero exit of either the dump or the restore process fails
// the clone.
func (c *Cloner) Clone(ctx context.Context, req Request) (err error) {
	c.setState(StateIdle)
	defer func() {
		if err != nil {
			c.setState(StateFailed)
		}
	}()

	source := c.cfg.Settings
	target := c.Target(req.Number)
	log := slog.With("engine", source.Engine, "source", source.Name, "target", target.Name)

	lk := lock.New(lockKey(target))
	ok, err := lk.Acquire(ctx, c.cfg.LockWait)
	if err != nil {
		return fmt.Errorf("lock %s: %w", target.Name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s (%s)", ErrLocked, target.Name, lk.Path())
	}
	defer func() { _ = lk.Unlock() }()

	created, err := c.createTarget(ctx, log, target, req)
	if err != nil {
		return err
	}
	if !created {
		log.Info("keeping existing test database")
		c.setState(StateCompleted)
		return nil
	}

	debug.StopIf("after-create")

	stats, err := c.copyData(ctx, source, target, req)
	if err != nil {
		return fmt.Errorf("clone %s into %s: %w", source.Name, target.Name, err)
	}

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
	c.setState(StateCompleted)
	log.Info("clone done", "bytes", stats.Bytes, "dur", stats.Duration)
	return nil
}

// createTarget creates the target database, handling a collision according
// to req. It reports false when an existing database was kept. The admin
// connection is released before it returns.
func (c *Cloner) createTarget(ctx context.Context, log *slog.Logger, target settings.ConnectionSettings, req Request) (bool, error) {
	b := c.cfg.Backend
	admin, err := b.OpenAdmin(ctx, c.cfg.Settings)
	if err != nil {
		return false, fmt.Errorf("open admin connection: %w", err)
	}
	defer func() {
		if err := admin.Close(); err != nil {
			log.Warn("close admin connection", "err", err)
		}
	}()

	qn := b.QuoteName(target.Name)
	create := "CREATE DATABASE " + qn
	if suffix := b.CreateSuffix(c.cfg.Settings); suffix != "" {
		create += " " + suffix
	}

	c.setState(StateCreateAttempted)
	err = admin.Exec(ctx, create)
	if err == nil {
		c.setState(StateCreated)
		return true, nil
	}

	c.setState(StateCollisionHandling)
	log.Info("create test database failed", "exists", b.IsExists(err), "err", err)
	if req.KeepExisting {
		return false, nil
	}

	if req.Verbosity >= 1 {
		fmt.Fprintf(c.cfg.Notices, "Destroying old test database '%s'...\n", c.cfg.Settings.Alias)
	}
	if err := admin.Exec(ctx, "DROP DATABASE "+qn); err != nil {
		return false, &FatalError{Target: target.Name, Err: err}
	}
	if err := admin.Exec(ctx, create); err != nil {
		return false, &FatalError{Target: target.Name, Err: err}
	}
	c.setState(StateCreated)
	return true, nil
}

// copyData pipes a dump of source into the client connected to target.
func (c *Cloner) copyData(ctx context.Context, source, target settings.ConnectionSettings, req Request) (stats process.Stats, err error) {
	b := c.cfg.Backend

	dumpArgs, env := b.ClientArgs(source)
	dumpArgs[0] = b.DumpProgram()
	dumpArgs[len(dumpArgs)-1] = source.Name

	loadArgs, _ := b.ClientArgs(source)
	loadArgs = withFlagsBeforeLast(loadArgs, b.RestoreFlags())
	loadArgs[len(loadArgs)-1] = target.Name

	if req.Verbosity >= 2 {
		c.logVersions(ctx, dumpArgs[0], loadArgs[0])
	}

	rc, err := runctx.New("dbclone_"+target.Name+"_", c.cfg.KeepRunDir)
	if err != nil {
		return stats, err
	}
	defer func() { _ = rc.Cleanup(err != nil) }()

	dump := c.command(ctx, env, dumpArgs)
	load := c.command(ctx, env, loadArgs)

	c.setState(StateDumpRestoreInFlight)
	p := &process.Pipeline{
		Producer:     dump,
		Consumer:     load,
		ProducerName: "dump",
		ConsumerName: "restore",
		LogDir:       rc.Dir,
		Progress:     c.cfg.Progress,
	}
	return p.Run(ctx)
}

func (c *Cloner) command(ctx context.Context, env, args []string) *exec.Cmd {
	cmd := c.cfg.Command(ctx, args[0], args[1:]...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	process.TerminateOnCancel(cmd, process.DefaultGrace)
	return cmd
}

// logVersions records the client tool versions; failures are not fatal.
func (c *Cloner) logVersions(ctx context.Context, programs ...string) {
	for _, prog := range programs {
		res := process.RunLogged(ctx, c.cfg.Command(ctx, prog, "--version"))
		if res.Err != nil {
			slog.Warn("client tool version probe failed", "cmd", prog, "err", res.Err)
			continue
		}
		slog.Info("client tool", "cmd", prog, "version", string(bytes.TrimSpace(res.Stdout)))
	}
}

func withFlagsBeforeLast(args, flags []string) []string {
	if len(flags) == 0 {
		return args
	}
	last := len(args) - 1
	out := make([]string, 0, len(args)+len(flags))
	out = append(out, args[:last]...)
	out = append(out, flags...)
	return append(out, args[last])
}

func lockKey(s settings.ConnectionSettings) string {
	return s.Engine + "/" + s.Host + "/" + strconv.Itoa(s.Port) + "/" + s.Name
}
