package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/formatter"
	"github.com/kyleking/schema-replay/internal/storage"
)

func SnapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshots",
		Usage: "Manage saved schema snapshots",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List saved snapshots, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of snapshots"},
					&cli.IntFlag{Name: "offset", Usage: "Number of snapshots to skip"},
					formatFlag(),
				},
				Action: storageAction(func(ctx context.Context, cmd *cli.Command, repo storage.Repository) error {
					format, err := parseFormat(cmd)
					if err != nil {
						return err
					}

					return runSnapshotsList(ctx, cmd.Root().Writer, repo, int(cmd.Int("limit")), int(cmd.Int("offset")), format)
				}),
			},
			{
				Name:      "show",
				Usage:     "Show a snapshot's columns",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{formatFlag()},
				Action: storageAction(func(ctx context.Context, cmd *cli.Command, repo storage.Repository) error {
					id, err := snapshotArg(cmd)
					if err != nil {
						return err
					}

					format, err := parseFormat(cmd)
					if err != nil {
						return err
					}

					return runSnapshotsShow(ctx, cmd.Root().Writer, repo, id, format)
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a snapshot",
				ArgsUsage: "<id>",
				Action: storageAction(func(ctx context.Context, cmd *cli.Command, repo storage.Repository) error {
					id, err := snapshotArg(cmd)
					if err != nil {
						return err
					}

					return runSnapshotsDelete(ctx, cmd.Root().Writer, repo, id)
				}),
			},
			{
				Name:        "clear",
				Usage:       "Delete every snapshot",
				Description: `Remove all saved snapshots. This action requires confirmation.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Skip confirmation prompt"},
				},
				Action: storageAction(func(ctx context.Context, cmd *cli.Command, repo storage.Repository) error {
					return runSnapshotsClear(ctx, cmd.Root().Writer, os.Stdin, repo, cmd.Bool("force"))
				}),
			},
			{
				Name:  "migrate",
				Usage: "Move the snapshot store's own schema to a version",
				Description: `Apply or roll back the store's table migrations. Rolling back lets an older
release open the database; any later command migrates it forward again. Version 0 drops
every snapshot table.`,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "to", Usage: "Target store schema version", Required: true},
				},
				Action: storageAction(func(ctx context.Context, cmd *cli.Command, repo storage.Repository) error {
					return runSnapshotsMigrate(ctx, cmd.Root().Writer, repo, int(cmd.Int("to")))
				}),
			},
			{
				Name:  "stats",
				Usage: "Display snapshot database statistics",
				Flags: []cli.Flag{formatFlag()},
				Action: storageAction(func(ctx context.Context, cmd *cli.Command, repo storage.Repository) error {
					format, err := parseFormat(cmd)
					if err != nil {
						return err
					}

					return runSnapshotsStats(ctx, cmd.Root().Writer, repo, format)
				}),
			},
		},
	}
}

// storageAction is action with an opened snapshot store
func storageAction(fn func(ctx context.Context, cmd *cli.Command, repo storage.Repository) error) cli.ActionFunc {
	return action(func(ctx context.Context, cmd *cli.Command, cfg *config.Config) error {
		repo, err := initializeStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		return fn(ctx, cmd, repo)
	})
}

func snapshotArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", errors.Newf(errors.ErrTypeValidation, "expected exactly 1 argument, got %d", cmd.Args().Len())
	}

	return cmd.Args().First(), nil
}

func runSnapshotsList(ctx context.Context, w io.Writer, repo storage.Repository, limit, offset int, format formatter.OutputFormat) error {
	snaps, err := repo.ListSnapshots(ctx, limit, offset)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to list snapshots")
	}

	return formatter.NewTerminalFormatter().Snapshots(w, snaps, format)
}

func runSnapshotsShow(ctx context.Context, w io.Writer, repo storage.Repository, id string, format formatter.OutputFormat) error {
	snap, err := repo.GetSnapshot(ctx, id)
	if err != nil {
		return snapshotError(err, id)
	}

	return formatter.NewTerminalFormatter().Snapshot(w, *snap, format)
}

func runSnapshotsDelete(ctx context.Context, w io.Writer, repo storage.Repository, id string) error {
	if err := repo.DeleteSnapshot(ctx, id); err != nil {
		return snapshotError(err, id)
	}

	_, err := fmt.Fprintf(w, "Deleted snapshot %s\n", id)

	return err
}

func runSnapshotsClear(ctx context.Context, w io.Writer, in io.Reader, repo storage.Repository, force bool) error {
	stats, err := repo.GetStats(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to get statistics")
	}

	if stats.TotalSnapshots == 0 {
		fmt.Fprintln(w, "No snapshots to clear.")
		return nil
	}

	fmt.Fprintf(w, "This will delete:\n")
	fmt.Fprintf(w, "  • %d snapshots\n", stats.TotalSnapshots)
	fmt.Fprintf(w, "  • %d stored columns\n", stats.TotalColumns)

	if !force {
		fmt.Fprintf(w, "\nType 'yes' to confirm: ")

		response, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return errors.Wrap(err, errors.ErrTypeInternal, "failed to read input")
		}

		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintln(w, "Operation cancelled.")
			return nil
		}
	}

	if err := repo.Clear(ctx); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to clear snapshots")
	}

	fmt.Fprintln(w, "Snapshots cleared.")

	return nil
}

func runSnapshotsStats(ctx context.Context, w io.Writer, repo storage.Repository, format formatter.OutputFormat) error {
	stats, err := repo.GetStats(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to get statistics")
	}

	return formatter.NewTerminalFormatter().Stats(w, *stats, format)
}

func runSnapshotsMigrate(ctx context.Context, w io.Writer, repo storage.Repository, version int) error {
	if err := repo.MigrateTo(ctx, version); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to migrate snapshot store to version %d", version)
	}

	if version == 0 {
		fmt.Fprintln(w, "Snapshot tables removed.")
		return nil
	}

	stats, err := repo.GetStats(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to get statistics")
	}

	fmt.Fprintf(w, "Snapshot store schema at v%d (latest v%d)\n", stats.SchemaVersion, stats.LatestSchemaVersion)

	return nil
}
