package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/formatter"
	"github.com/kyleking/schema-replay/internal/logging"
	"github.com/kyleking/schema-replay/internal/watch"
)

func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-render the schema whenever migration files change",
		Description: `Print the reconstructed schema, then print it again each time a .cs file in the
context's migration folders is written, created, or removed. Stop with Ctrl-C.`,
		ArgsUsage: projectArgsUsage,
		Flags: append([]cli.Flag{
			contextFlag(),
			formatFlag(),
			&cli.StringFlag{Name: "at", Usage: "Cutoff: 14-digit timestamp or migration name (default: latest)"},
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
			}

			return runWatch(ctx, cmd.Root().Writer, cfg, opts)
		}),
	}
}

// schemaRenderer re-renders one context's schema, reusing its extraction cache
type schemaRenderer struct {
	mu   sync.Mutex
	w    io.Writer
	r    *replayer
	f    *formatter.Formatter
	opts schemaOptions
}

func (s *schemaRenderer) render(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts, err := listArtifacts(s.opts.ProjectDir, s.opts.Context)
	if err != nil {
		return err
	}

	cutoff, err := resolveCutoff("at", s.opts.At, artifacts)
	if err != nil {
		return err
	}

	cols, err := s.r.reconstruct(ctx, artifacts, cutoff)
	if err != nil {
		return err
	}

	return s.f.Columns(s.w, cols, s.opts.Format)
}

// runWatch renders once, then on every debounced change until ctx ends
func runWatch(ctx context.Context, w io.Writer, cfg *config.Config, opts schemaOptions) error {
	r, err := newReplayer(cfg)
	if err != nil {
		return err
	}

	s := &schemaRenderer{w: w, r: r, f: formatter.NewTerminalFormatter(), opts: opts}

	if err := s.render(ctx); err != nil {
		return err
	}

	watcher := watch.New(opts.ProjectDir, opts.Context, func(paths []string) {
		fmt.Fprintf(w, "\n--- %s: %d file(s) changed ---\n", time.Now().Format(time.TimeOnly), len(paths))

		if err := s.render(ctx); err != nil {
			logging.WithError(err).Error("Failed to rebuild schema")
		}
	}, watch.WithDebounce(cfg.WatchDebounce()))

	logging.WithField("project", opts.ProjectDir).Info("Watching for migration changes")

	if err := watcher.Run(ctx); err != nil {
		return errors.Wrap(err, errors.ErrTypeFileSystem, "failed to watch migrations")
	}

	return nil
}
