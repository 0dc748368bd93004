package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/formatter"
	"github.com/kyleking/schema-replay/internal/replay"
	"github.com/kyleking/schema-replay/internal/storage"
)

func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Reconstruct the schema at a migration",
		Description: `Replay the context's migrations oldest first, up to and including the cutoff, and
print every (table, column) with its type and nullability. Without --at the whole history
is replayed. --save stores the result in the snapshot history.`,
		ArgsUsage: projectArgsUsage,
		Flags: append([]cli.Flag{
			contextFlag(),
			formatFlag(),
			&cli.StringFlag{Name: "at", Usage: "Cutoff: 14-digit timestamp or migration name (default: latest)"},
			&cli.BoolFlag{Name: "save", Usage: "Save the reconstruction as a snapshot"},
		}, replayFlags()...),
		Action: action(func(ctx context.Context, cmd *cli.Command, cfg *config.Config) error {
			p, err := resolveProject(cmd)
			if err != nil {
				return err
			}

			format, err := parseFormat(cmd)
			if err != nil {
				return err
			}

			opts := schemaOptions{
				ProjectDir: p.Dir,
				Context:    cmd.String("context"),
				At:         cmd.String("at"),
				Format:     format,
				Save:       cmd.Bool("save"),
			}

			return runSchema(ctx, cmd.Root().Writer, cfg, opts, nil)
		}),
	}
}

type schemaOptions struct {
	ProjectDir string
	Context    string
	At         string
	Format     formatter.OutputFormat
	Save       bool
}

// runSchema reconstructs and prints a schema. repo is only opened when
// saving and may be injected for tests.
func runSchema(ctx context.Context, w io.Writer, cfg *config.Config, opts schemaOptions, repo storage.Repository) error {
	artifacts, err := listArtifacts(opts.ProjectDir, opts.Context)
	if err != nil {
		return err
	}

	cutoff, err := resolveCutoff("at", opts.At, artifacts)
	if err != nil {
		return err
	}

	r, err := newReplayer(cfg)
	if err != nil {
		return err
	}

	cols, err := r.reconstruct(ctx, artifacts, cutoff)
	if err != nil {
		return err
	}

	if err := formatter.NewTerminalFormatter().Columns(w, cols, opts.Format); err != nil {
		return errors.Wrap(err, errors.ErrTypeInternal, "failed to write output")
	}

	if !opts.Save {
		return nil
	}

	if repo == nil {
		repo, err = initializeStorage(ctx, cfg)
		if err != nil {
			return err
		}

		defer repo.Close()
	}

	if cutoff == "" {
		cutoff = replay.Latest(artifacts)
	}

	saved, err := repo.SaveSnapshot(ctx, storage.Snapshot{
		ProjectDir:  opts.ProjectDir,
		ContextName: opts.Context,
		Cutoff:      cutoff,
		Columns:     cols,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to save snapshot")
	}

	// stdout may carry json/csv, so the confirmation goes to stderr
	fmt.Fprintf(os.Stderr, "Saved snapshot %s (%d columns)\n", saved.ID, saved.ColumnCount)

	return nil
}
