package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/formatter"
)

func MigrationsCommand() *cli.Command {
	return &cli.Command{
		Name:        "migrations",
		Usage:       "List a context's migrations in replay order",
		Description: `List the migrations found under Migrations/<context> and Migrations, oldest first, one per migration.`,
		ArgsUsage:   projectArgsUsage,
		Flags:       []cli.Flag{contextFlag(), formatFlag()},
		Action: action(func(_ context.Context, cmd *cli.Command, _ *config.Config) error {
			p, err := resolveProject(cmd)
			if err != nil {
				return err
			}

			format, err := parseFormat(cmd)
			if err != nil {
				return err
			}

			return runMigrations(cmd.Root().Writer, formatter.NewTerminalFormatter(), p.Dir, cmd.String("context"), format)
		}),
	}
}

func runMigrations(w io.Writer, f *formatter.Formatter, dir, contextName string, format formatter.OutputFormat) error {
	artifacts, err := listArtifacts(dir, contextName)
	if err != nil {
		return err
	}

	if len(artifacts) == 0 && format == formatter.FormatTable {
		_, err := fmt.Fprintf(w, "No migrations found for %s\n", contextShortLabel(contextName))
		return err
	}

	return f.Migrations(w, artifacts, format)
}
