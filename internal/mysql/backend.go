package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"github.com/vbp1/dbclone/internal/clone"
	"github.com/vbp1/dbclone/internal/ddl"
	"github.com/vbp1/dbclone/internal/settings"
)

// errDBCreateExists is ER_DB_CREATE_EXISTS.
const errDBCreateExists = 1007

// Backend is the MySQL clone backend.
type Backend struct {
	Operations
}

var _ clone.Backend = Backend{}

func (Backend) Engine() string      { return settings.EngineMySQL }
func (Backend) DumpProgram() string { return "mysqldump" }

// RestoreFlags is empty: the mysql client stops at the first error in batch
// mode and exits nonzero.
func (Backend) RestoreFlags() []string { return nil }

func (Backend) CreateSuffix(s settings.ConnectionSettings) string {
	return ddl.TableCreationSuffix(s.Test)
}

func (Backend) ClientArgs(s settings.ConnectionSettings) ([]string, []string) {
	return SettingsToCmdArgs(s)
}

func (Backend) IsExists(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == errDBCreateExists
}

// OpenAdmin connects to the server without selecting a database.
func (Backend) OpenAdmin(ctx context.Context, s settings.ConnectionSettings) (clone.AdminConn, error) {
	cfg, err := DSNConfig(s)
	if err != nil {
		return nil, err
	}
	cfg.DBName = ""
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	conn, err := NewAdminConn(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return conn, nil
}

// DSNConfig converts settings into a driver configuration.
func DSNConfig(s settings.ConnectionSettings) (*driver.Config, error) {
	cfg := driver.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.DBName = s.Name

	host := s.Host
	switch {
	case strings.Contains(host, "/"):
		cfg.Net = "unix"
		cfg.Addr = host
	default:
		if host == "" {
			host = "127.0.0.1"
		}
		port := s.Port
		if port == 0 {
			port = 3306
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}

	if ca := s.Option("ssl_ca"); ca != "" {
		pem, err := os.ReadFile(ca)
		if err != nil {
			return nil, fmt.Errorf("read ssl_ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ssl_ca %s: no certificates found", ca)
		}
		key := "dbclone-" + ca
		if err := driver.RegisterTLSConfig(key, &tls.Config{RootCAs: pool, ServerName: host}); err != nil {
			return nil, err
		}
		cfg.TLSConfig = key
	}
	return cfg, nil
}

// AdminConn pins a single connection of db for administrative statements.
type AdminConn struct {
	db   *sql.DB
	conn *sql.Conn
}

// NewAdminConn checks out one connection from db. Closing the AdminConn closes db.
func NewAdminConn(ctx context.Context, db *sql.DB) (*AdminConn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("mysql admin connection: %w", err)
	}
	return &AdminConn{db: db, conn: conn}, nil
}

func (c *AdminConn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.ExecContext(ctx, query)
	return err
}

func (c *AdminConn) Close() error {
	return errors.Join(c.conn.Close(), c.db.Close())
}
