// Package postgres implements the PostgreSQL backend of the cloner.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vbp1/dbclone/internal/clone"
	"github.com/vbp1/dbclone/internal/ddl"
	"github.com/vbp1/dbclone/internal/settings"
)

// MaxNameLength is NAMEDATALEN-1.
const MaxNameLength = 63

// adminDatabase is used for the connection that creates and drops databases.
const adminDatabase = "postgres"

// duplicate_database
const codeDuplicateDatabase = "42P04"

// Operations implements ddl.Operations for PostgreSQL.
type Operations struct{}

var _ ddl.Operations = Operations{}

func (Operations) QuoteName(name string) string { return pgx.Identifier{name}.Sanitize() }

func (o Operations) TablespaceSQL(tablespace string, inline bool) string {
	if inline {
		return "USING INDEX TABLESPACE " + o.QuoteName(tablespace)
	}
	return "TABLESPACE " + o.QuoteName(tablespace)
}

func (Operations) MaxNameLength() int { return MaxNameLength }

// SettingsToCmdArgs returns the psql invocation for s. The password travels
// in PGPASSWORD.
func SettingsToCmdArgs(s settings.ConnectionSettings) (args []string, env []string) {
	args = []string{"psql"}
	if s.User != "" {
		args = append(args, "-U", s.User)
	}
	if s.Host != "" {
		args = append(args, "-h", s.Host)
	}
	if s.Port != 0 {
		args = append(args, "-p", strconv.Itoa(s.Port))
	}
	args = append(args, s.Name)
	if s.Password != "" {
		env = append(env, "PGPASSWORD="+s.Password)
	}
	if mode := s.Option("sslmode"); mode != "" {
		env = append(env, "PGSSLMODE="+mode)
	}
	return args, env
}

// Backend is the PostgreSQL clone backend.
type Backend struct {
	Operations
}

var _ clone.Backend = Backend{}

func (Backend) Engine() string      { return settings.EnginePostgres }
func (Backend) DumpProgram() string { return "pg_dump" }

// RestoreFlags makes psql skip ~/.psqlrc, stay quiet and exit 3 on the first
// failing statement instead of carrying on.
func (Backend) RestoreFlags() []string {
	return []string{"-X", "-q", "-v", "ON_ERROR_STOP=1"}
}

// CreateSuffix sets the encoding of the new database from the test charset.
func (Backend) CreateSuffix(s settings.ConnectionSettings) string {
	if s.Test.Charset == "" {
		return ""
	}
	return "ENCODING '" + strings.ReplaceAll(s.Test.Charset, "'", "''") + "'"
}

func (Backend) ClientArgs(s settings.ConnectionSettings) ([]string, []string) {
	return SettingsToCmdArgs(s)
}

func (Backend) IsExists(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeDuplicateDatabase
}

func (Backend) OpenAdmin(ctx context.Context, s settings.ConnectionSettings) (clone.AdminConn, error) {
	conn, err := Connect(ctx, s)
	if err != nil {
		return nil, err
	}
	return NewAdminConn(conn), nil
}

// Connect opens a connection to the maintenance database of the server
// described by s. Unset fields fall back to libpq environment variables
// (PGHOST, PGPORT, PGUSER, PGPASSWORD).
func Connect(ctx context.Context, s settings.ConnectionSettings) (*pgx.Conn, error) {
	var dsn string
	if mode := s.Option("sslmode"); mode != "" {
		dsn = "sslmode=" + mode
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if s.Host != "" {
		cfg.Host = s.Host
	}
	if s.Port != 0 {
		cfg.Port = uint16(s.Port)
	}
	if s.User != "" {
		cfg.User = s.User
	}
	if s.Password != "" {
		cfg.Password = s.Password
	}
	cfg.Database = adminDatabase
	cfg.ConnectTimeout = 10 * time.Second

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres admin connection: %w", err)
	}
	// ping
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return conn, nil
}

// Conn is the subset of *pgx.Conn used for administrative statements.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// AdminConn adapts a pgx connection to clone.AdminConn.
type AdminConn struct {
	conn Conn
}

func NewAdminConn(conn Conn) *AdminConn { return &AdminConn{conn: conn} }

func (c *AdminConn) Exec(ctx context.Context, sql string) error {
	_, err := c.conn.Exec(ctx, sql)
	return err
}

func (c *AdminConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Close(ctx)
}
