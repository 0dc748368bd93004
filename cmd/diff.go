package cmd

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/formatter"
	"github.com/kyleking/schema-replay/internal/replay"
	"github.com/kyleking/schema-replay/internal/schema"
	"github.com/kyleking/schema-replay/internal/storage"
)

func DiffCommand() *cli.Command {
	return &cli.Command{
		Name:  "diff",
		Usage: "Compare the schema at two points in history",
		Description: `Show columns added, removed, or changed between --from and --to (default: latest).
The starting point may instead be a saved snapshot (--from-snapshot).`,
		ArgsUsage: projectArgsUsage,
		Flags: append([]cli.Flag{
			contextFlag(),
			formatFlag(),
			&cli.StringFlag{Name: "from", Usage: "Starting cutoff: timestamp or migration name"},
			&cli.StringFlag{Name: "from-snapshot", Usage: "Starting point: saved snapshot id or unique prefix"},
			&cli.StringFlag{Name: "to", Usage: "Ending cutoff (default: latest)"},
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

			opts := diffOptions{
				ProjectDir:   p.Dir,
				Context:      cmd.String("context"),
				From:         cmd.String("from"),
				FromSnapshot: cmd.String("from-snapshot"),
				To:           cmd.String("to"),
				Format:       format,
			}

			return runDiff(ctx, cmd.Root().Writer, cfg, opts, nil)
		}),
	}
}

type diffOptions struct {
	ProjectDir   string
	Context      string
	From         string
	FromSnapshot string
	To           string
	Format       formatter.OutputFormat
}

func runDiff(ctx context.Context, w io.Writer, cfg *config.Config, opts diffOptions, repo storage.Repository) error {
	if (opts.From == "") == (opts.FromSnapshot == "") {
		return errors.New(errors.ErrTypeValidation, "exactly one of --from and --from-snapshot is required")
	}

	artifacts, err := listArtifacts(opts.ProjectDir, opts.Context)
	if err != nil {
		return err
	}

	to, err := resolveCutoff("to", opts.To, artifacts)
	if err != nil {
		return err
	}

	r, err := newReplayer(cfg)
	if err != nil {
		return err
	}

	var before []schema.Column

	if opts.FromSnapshot != "" {
		before, err = snapshotColumns(ctx, cfg, opts.FromSnapshot, repo)
	} else {
		var from string

		from, err = resolveCutoff("from", opts.From, artifacts)
		if err == nil {
			before, err = r.reconstruct(ctx, artifacts, from)
		}
	}

	if err != nil {
		return err
	}

	after, err := r.reconstruct(ctx, artifacts, to)
	if err != nil {
		return err
	}

	return formatter.NewTerminalFormatter().Diff(w, replay.Diff(before, after), opts.Format)
}

func snapshotColumns(ctx context.Context, cfg *config.Config, id string, repo storage.Repository) ([]schema.Column, error) {
	if repo == nil {
		var err error

		repo, err = initializeStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}

		defer repo.Close()
	}

	snap, err := repo.GetSnapshot(ctx, id)
	if err != nil {
		return nil, snapshotError(err, id)
	}

	return snap.Columns, nil
}
