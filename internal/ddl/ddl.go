// Package ddl generates dialect-specific DDL fragments used while creating
// test databases.
package ddl

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vbp1/dbclone/internal/settings"
)

// ErrNoOperations is returned when no dialect operations are configured.
var ErrNoOperations = errors.New("ddl: dialect operations not configured")

// Operations is the subset of dialect operations the generator needs.
type Operations interface {
	QuoteName(name string) string
	TablespaceSQL(tablespace string, inline bool) string
	MaxNameLength() int
}

// Field describes a model field.
type Field struct {
	Name       string
	Column     string
	Tablespace string
}

// Model describes a model's table.
type Model struct {
	Table      string
	Tablespace string
}

// TableCreationSuffix returns the CHARACTER SET / COLLATE clause appended to
// CREATE DATABASE for test databases. Unset values are omitted.
func TableCreationSuffix(test settings.TestSettings) string {
	var suffix []string
	if test.Charset != "" {
		suffix = append(suffix, "CHARACTER SET "+test.Charset)
	}
	if test.Collation != "" {
		suffix = append(suffix, "COLLATE "+test.Collation)
	}
	return strings.Join(suffix, " ")
}

// InlineForeignKeyReferences never emits inline references: every foreign key
// is pending and has to be added once all tables exist.
func InlineForeignKeyReferences(model Model, field Field, knownModels []Model, style Style) ([]string, bool) {
	return nil, true
}

// DestroyIndexesForFields returns the statement dropping the index created
// for fields on model. DROP INDEX takes no storage clause; see IndexTablespace
// for the tablespace the index lives in.
func DestroyIndexesForFields(ops Operations, model Model, fields []Field, style Style) ([]string, error) {
	if ops == nil {
		return nil, ErrNoOperations
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("ddl: no fields for index on %s", model.Table)
	}
	if style == nil {
		style = PlainStyle{}
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	indexName := model.Table + "_" + Digest(names...)

	stmt := style.Keyword("DROP INDEX") + " " +
		style.Table(ops.QuoteName(TruncateName(indexName, ops.MaxNameLength(), 4))) + " " +
		style.Keyword("ON") + " " +
		style.Table(ops.QuoteName(model.Table)) + ";"
	return []string{stmt}, nil
}

// IndexTablespace returns the tablespace clause of the index over fields: the
// field's own tablespace for a single-field index, else the model's, else "".
func IndexTablespace(ops Operations, model Model, fields []Field) (string, error) {
	if ops == nil {
		return "", ErrNoOperations
	}
	switch {
	case len(fields) == 1 && fields[0].Tablespace != "":
		return ops.TablespaceSQL(fields[0].Tablespace, false), nil
	case model.Tablespace != "":
		return ops.TablespaceSQL(model.Tablespace, false), nil
	}
	return "", nil
}

// Digest returns a short deterministic hash of args.
func Digest(args ...string) string {
	h := md5.New()
	for _, a := range args {
		h.Write([]byte(a))
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// TruncateName shortens name to length characters, replacing the tail with
// hashLen hex characters of its md5 so that distinct long names stay distinct.
// Lengths count characters, not bytes. length <= 0 disables truncation.
func TruncateName(name string, length, hashLen int) string {
	if length <= 0 || utf8.RuneCountInString(name) <= length {
		return name
	}
	if hashLen > length {
		hashLen = length
	}
	sum := md5.Sum([]byte(name))
	return string([]rune(name)[:length-hashLen]) + hex.EncodeToString(sum[:])[:hashLen]
}
