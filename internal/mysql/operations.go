// Package mysql implements the MySQL backend: identifier quoting, client
// command lines and the administrative connection.
package mysql

import (
	"strconv"
	"strings"

	"github.com/vbp1/dbclone/internal/ddl"
	"github.com/vbp1/dbclone/internal/settings"
)

// MaxNameLength is MySQL's identifier length limit.
const MaxNameLength = 64

// Operations implements ddl.Operations for MySQL.
type Operations struct{}

var _ ddl.Operations = Operations{}

// QuoteName wraps name in backticks unless it is already quoted.
func (Operations) QuoteName(name string) string {
	if len(name) >= 2 && strings.HasPrefix(name, "`") && strings.HasSuffix(name, "`") {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (o Operations) TablespaceSQL(tablespace string, inline bool) string {
	return "TABLESPACE " + o.QuoteName(tablespace)
}

func (Operations) MaxNameLength() int { return MaxNameLength }

// SettingsToCmdArgs returns the mysql client invocation for s. The password
// is passed through MYSQL_PWD so it never shows up in the process list.
func SettingsToCmdArgs(s settings.ConnectionSettings) (args []string, env []string) {
	args = []string{"mysql"}
	if f := s.Option("read_default_file"); f != "" {
		args = append(args, "--defaults-file="+f)
	}
	if s.User != "" {
		args = append(args, "--user="+s.User)
	}
	if s.Host != "" {
		if strings.Contains(s.Host, "/") {
			args = append(args, "--socket="+s.Host)
		} else {
			args = append(args, "--host="+s.Host)
		}
	}
	if s.Port != 0 {
		args = append(args, "--port="+strconv.Itoa(s.Port))
	}
	if ca := s.Option("ssl_ca"); ca != "" {
		args = append(args, "--ssl-ca="+ca)
	}
	if s.Name != "" {
		args = append(args, s.Name)
	}
	if s.Password != "" {
		env = append(env, "MYSQL_PWD="+s.Password)
	}
	return args, env
}
