package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/cache"
	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/dotnet"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/extract"
	"github.com/kyleking/schema-replay/internal/formatter"
	"github.com/kyleking/schema-replay/internal/logging"
	"github.com/kyleking/schema-replay/internal/project"
	"github.com/kyleking/schema-replay/internal/replay"
	"github.com/kyleking/schema-replay/internal/schema"
)

const projectArgsUsage = "[project]"

func contextFlag() cli.Flag {
	return &cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "DbContext name, optionally namespace-qualified", Required: true}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(formatter.FormatTable), Usage: "Output format (table, json, csv, yaml)"}
}

func replayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "up-only", Usage: "Ignore each migration's Down method (default from config)"},
		&cli.IntFlag{Name: "workers", Usage: "Concurrent file reads (default from config)"},
	}
}

// resolveProject turns the optional positional argument into a project location
func resolveProject(cmd *cli.Command) (project.Project, error) {
	path := cmd.Args().First()
	if path == "" {
		path = "."
	}

	p, err := project.Resolve(path)
	if err != nil {
		return project.Project{}, errors.Wrapf(err, errors.ErrTypeNotFound, "project not found: %s", path).
			WithSuggestion("Pass a project directory or a .csproj file")
	}

	return p, nil
}

func parseFormat(cmd *cli.Command) (formatter.OutputFormat, error) {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeValidation, "invalid --format")
	}

	return f, nil
}

// listArtifacts lists a context's migrations, oldest first
func listArtifacts(dir, contextName string) ([]catalog.Artifact, error) {
	artifacts, err := catalog.List(dir, contextName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to list migrations")
	}

	logging.WithFields(map[string]any{
		"context":    contextName,
		"migrations": len(artifacts),
	}).Debug("Listed migrations")

	return artifacts, nil
}

// resolveCutoff accepts an empty cutoff, a 14-digit timestamp, or the name
// of one of artifacts, which resolves to that migration's timestamp.
func resolveCutoff(flag, ref string, artifacts []catalog.Artifact) (string, error) {
	if ref == "" || catalog.IsTimestamp(ref) {
		return ref, nil
	}

	if a, ok := catalog.Find(artifacts, ref); ok && a.Timestamp != "" {
		return a.Timestamp, nil
	}

	return "", errors.Newf(errors.ErrTypeValidation, "invalid --%s %q: expected a 14-digit timestamp or a migration name", flag, ref).
		WithSuggestion("List migrations with `schema-replay migrations <project> --context <name>`")
}

// replayer reconstructs schemas for one command invocation
type replayer struct {
	cfg   *config.Config
	cache *extract.Cache
}

func newReplayer(cfg *config.Config) (*replayer, error) {
	c, err := extract.NewCache(cfg.Replay.ExtractCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to create extraction cache")
	}

	return &replayer{cfg: cfg, cache: c}, nil
}

func (r *replayer) reconstruct(ctx context.Context, artifacts []catalog.Artifact, cutoff string) ([]schema.Column, error) {
	read, err := replay.Prefetch(ctx, artifacts, cutoff, r.cfg.Replay.Workers, replay.ReadFile)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to read migrations")
	}

	cols, err := replay.Reconstruct(artifacts, cutoff, read,
		replay.WithUpOnly(r.cfg.Replay.UpOnly),
		replay.WithCache(r.cache),
		replay.WithObserver(func(a catalog.Artifact, ops []schema.Operation) {
			logging.WithArtifact(a).WithField("operations", len(ops)).Debug("Applied migration")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to replay migrations")
	}

	return cols, nil
}

// newRunner builds a dotnet runner with the context-list cache. A cache that
// cannot be opened is logged and skipped.
func newRunner(cfg *config.Config) (*dotnet.Runner, func()) {
	opts := []dotnet.Option{}
	closeFn := func() {}

	fc, err := cache.NewFileCache(cfg.Cache.Directory, cfg.Cache.MaxSizeMB, cfg.CacheTTL(), cfg.CacheCleanupFreq())
	if err != nil {
		logging.WithError(err).Warn("Context cache unavailable")
	} else {
		opts = append(opts, dotnet.WithCache(fc))
		closeFn = func() { _ = fc.Close() }
	}

	return dotnet.NewRunner(cfg.Dotnet.Binary, cfg.DotnetTimeout(), opts...), closeFn
}

// requireDotnet fails early with install hints when the dotnet binary is missing
func requireDotnet(cfg *config.Config) error {
	if _, err := dotnet.FindDotnet(cfg.Dotnet.Binary); err != nil {
		return errors.Wrap(err, errors.ErrTypeNotFound, "dotnet executable not found").
			WithSuggestion("Install the .NET SDK or point --dotnet at the executable")
	}

	return nil
}

// withSpinner shows a spinner on stderr while fn runs, if stderr is a terminal
func withSpinner(message string, fn func() error) error {
	if !term.IsTerminal(os.Stderr) {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	s.Start()

	err := fn()

	s.Stop()

	return err
}

func contextShortLabel(contextName string) string {
	return fmt.Sprintf("%s (folder %s)", contextName, dotnet.OutputDir(contextName))
}
