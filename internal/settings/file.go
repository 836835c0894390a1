package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAlias is used when no alias is requested.
const DefaultAlias = "default"

// File represents a YAML settings file:
//
//	databases:
//	  default:
//	    engine: mysql
//	    name: test_app
//	    user: root
//	    test:
//	      charset: utf8mb4
type File struct {
	Databases map[string]ConnectionSettings `yaml:"databases"`
}

// Load reads and parses a settings file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes settings from YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if f.Databases == nil {
		f.Databases = map[string]ConnectionSettings{}
	}
	for alias, db := range f.Databases {
		db.Alias = alias
		f.Databases[alias] = db
	}
	return &f, nil
}

// Database returns the entry for alias ("" means DefaultAlias).
func (f *File) Database(alias string) (ConnectionSettings, error) {
	if alias == "" {
		alias = DefaultAlias
	}
	db, ok := f.Databases[alias]
	if !ok {
		return ConnectionSettings{}, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return db, nil
}
