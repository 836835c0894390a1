package settings

import (
	"errors"
	"fmt"
	"strconv"
)

// Engines supported by the cloner.
const (
	EngineMySQL    = "mysql"
	EnginePostgres = "postgres"
)

var (
	ErrUnknownAlias  = errors.New("unknown database alias")
	ErrUnknownEngine = errors.New("unknown database engine")
	// ErrInvalid wraps every error returned by Validate.
	ErrInvalid = errors.New("invalid database settings")
)

// TestSettings holds the TEST section of a database entry.
type TestSettings struct {
	Name      string `yaml:"name,omitempty"`
	Charset   string `yaml:"charset,omitempty"`
	Collation string `yaml:"collation,omitempty"`
}

// ConnectionSettings describes one database. Values are treated as immutable:
// derivations return modified copies.
type ConnectionSettings struct {
	Alias    string            `yaml:"-"`
	Engine   string            `yaml:"engine"`
	Name     string            `yaml:"name"`
	User     string            `yaml:"user,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Host     string            `yaml:"host,omitempty"`
	Port     int               `yaml:"port,omitempty"`
	Options  map[string]string `yaml:"options,omitempty"`
	Test     TestSettings      `yaml:"test,omitempty"`
}

// Option returns a backend option or "" if unset.
func (s ConnectionSettings) Option(key string) string {
	if s.Options == nil {
		return ""
	}
	return s.Options[key]
}

// CloneSettings returns the settings of clone number n: identical to s except
// for the database name, which gets a "_<n>" suffix.
func (s ConnectionSettings) CloneSettings(n int) ConnectionSettings {
	c := s
	if s.Options != nil {
		c.Options = make(map[string]string, len(s.Options))
		for k, v := range s.Options {
			c.Options[k] = v
		}
	}
	c.Name = s.Name + "_" + strconv.Itoa(n)
	return c
}

// Validate checks that the settings are usable for cloning.
func (s ConnectionSettings) Validate() error {
	switch s.Engine {
	case EngineMySQL, EnginePostgres:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalid, ErrUnknownEngine, s.Engine)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: database %q: name is empty", ErrInvalid, s.Alias)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: database %q: port %d out of range", ErrInvalid, s.Alias, s.Port)
	}
	return nil
}
