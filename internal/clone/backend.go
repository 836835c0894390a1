package clone

import (
	"context"
	"os/exec"

	"github.com/vbp1/dbclone/internal/settings"
)

// AdminConn is a connection that is not bound to a particular database and is
// used for CREATE/DROP DATABASE. Close must always be called.
type AdminConn interface {
	Exec(ctx context.Context, sql string) error
	Close() error
}

// Backend collects the engine-specific collaborators of the cloner.
type Backend interface {
	Engine() string
	QuoteName(name string) string
	// CreateSuffix is appended to CREATE DATABASE; may be empty.
	CreateSuffix(s settings.ConnectionSettings) string
	OpenAdmin(ctx context.Context, s settings.ConnectionSettings) (AdminConn, error)
	// ClientArgs returns the interactive client invocation for s: the program
	// name first, the database name last, and extra environment entries.
	ClientArgs(s settings.ConnectionSettings) (args []string, env []string)
	DumpProgram() string
	// RestoreFlags are inserted before the database name of the restore
	// command, the client reading the dump from stdin.
	RestoreFlags() []string
	// IsExists reports whether err from CREATE DATABASE means the database
	// already exists.
	IsExists(err error) bool
}

// CommandFunc builds an external command bound to ctx; exec.CommandContext by
// default.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd
