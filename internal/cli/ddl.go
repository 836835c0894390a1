package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vbp1/dbclone/internal/ddl"
	"github.com/vbp1/dbclone/internal/mysql"
	"github.com/vbp1/dbclone/internal/postgres"
	"github.com/vbp1/dbclone/internal/settings"
)

func newDDLCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print dialect-specific DDL fragments",
	}
	cmd.AddCommand(newSuffixCmd(cfg), newDropIndexCmd(cfg))
	return cmd
}

func newSuffixCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "suffix",
		Short: "Print the CREATE DATABASE suffix for the test database",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cfg.resolveSettings(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ddl.TableCreationSuffix(s.Test))
			return nil
		},
	}
}

func newDropIndexCmd(cfg *Config) *cobra.Command {
	var (
		table      string
		tablespace string
		fields     []string
		color      string
	)
	cmd := &cobra.Command{
		Use:   "drop-index",
		Short: "Print the DROP INDEX statement for an index over fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := cfg.ddlEngine(cmd)
			if err != nil {
				return err
			}
			ops, err := operationsFor(engine)
			if err != nil {
				return err
			}
			model := ddl.Model{Table: table, Tablespace: tablespace}
			fs := parseFields(fields)
			stmts, err := ddl.DestroyIndexesForFields(ops, model, fs, styleFor(color, cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			for _, st := range stmts {
				fmt.Fprintln(cmd.OutOrStdout(), st)
			}
			ts, err := ddl.IndexTablespace(ops, model, fs)
			if err != nil {
				return err
			}
			if ts != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "-- index tablespace: %s\n", ts)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&table, "table", "", "Table name (required)")
	f.StringVar(&tablespace, "tablespace", "", "Model tablespace")
	f.StringArrayVar(&fields, "field", nil, "Indexed field as name[:tablespace]; repeatable (required)")
	f.StringVar(&color, "color", "auto", "Highlight SQL: auto|always|never")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

// ddlEngine picks the dialect from the settings file. Without an explicit
// --settings, a missing or incomplete file falls back to --engine.
func (c *Config) ddlEngine(cmd *cobra.Command) (string, error) {
	s, err := c.resolveSettings(cmd)
	switch {
	case err == nil:
		return s.Engine, nil
	case cmd.Flags().Changed("settings"):
		return "", err
	case errors.Is(err, os.ErrNotExist), errors.Is(err, settings.ErrInvalid):
		return c.Engine, nil
	default:
		return "", err
	}
}

func parseFields(specs []string) []ddl.Field {
	fields := make([]ddl.Field, 0, len(specs))
	for _, spec := range specs {
		name, ts, _ := strings.Cut(spec, ":")
		fields = append(fields, ddl.Field{Name: name, Column: name, Tablespace: ts})
	}
	return fields
}

func operationsFor(engine string) (ddl.Operations, error) {
	switch engine {
	case settings.EngineMySQL:
		return mysql.Operations{}, nil
	case settings.EnginePostgres:
		return postgres.Operations{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", settings.ErrUnknownEngine, engine)
	}
}

func styleFor(mode string, w io.Writer) ddl.Style {
	switch mode {
	case "always":
		return ddl.ColorStyle{}
	case "auto":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return ddl.ColorStyle{}
		}
	}
	return ddl.PlainStyle{}
}
