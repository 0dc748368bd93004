package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/logging"
)

const appName = "schema-replay"

var version = "dev"

// NewApp builds the command tree
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    appName,
		Usage:   "Reconstruct an EF Core schema from its migration history",
		Version: version,
		Description: `schema-replay reads the C# migration files of an Entity Framework Core project and
replays their column operations to show the schema as it stood at any migration.
Reconstructions can be saved to a local DuckDB history and compared later.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "db-path", Usage: "Snapshot database path"},
			&cli.StringFlag{Name: "cache-dir", Usage: "Cache directory"},
			&cli.StringFlag{Name: "dotnet", Usage: "dotnet executable"},
			&cli.BoolFlag{Name: "verbose", Usage: "Enable verbose logging"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug mode"},
		},
		Commands: []*cli.Command{
			MigrationsCommand(),
			SchemaCommand(),
			DiffCommand(),
			WatchCommand(),
			FrameworksCommand(),
			ContextsCommand(),
			AddCommand(),
			SnapshotsCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the CLI against os.Args and prints typed errors to stderr
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewApp().Run(ctx, os.Args)
	if err != nil {
		printError(os.Stderr, err)
	}

	_ = logging.GetLogger().Close()

	return err
}

// action loads configuration and logging before running fn, and times it
func action(fn func(ctx context.Context, cmd *cli.Command, cfg *config.Config) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if err := logging.InitializeLogger(cfg.Logging); err != nil {
			return errors.Wrap(err, errors.ErrTypeConfig, "failed to initialize logging")
		}

		ctx = withConfig(ctx, cfg)

		return logging.LoggerMiddleware(cmd.Name, func() error {
			return fn(ctx, cmd, cfg)
		})
	}
}

var stringOverrides = []string{"db-path", "log-level", "cache-dir", "dotnet"}

// loadConfig layers flag overrides on top of file and environment config.
// Flags of parent commands are visible from subcommands.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	overrides := make(map[string]any)

	for _, name := range stringOverrides {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	for _, name := range []string{"verbose", "debug", "up-only"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.Bool(name)
		}
	}

	if cmd.IsSet("workers") {
		overrides["workers"] = int(cmd.Int("workers"))
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return nil, errors.NewConfigError(err.Error(), "").WithSuggestion("Inspect the active settings with `schema-replay config`")
	}

	cfg.ExpandAllPaths()

	return cfg, nil
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// getConfigFromContext returns the config stored by action, or nil
func getConfigFromContext(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// printError writes err with any captured tool output and suggestions
func printError(w io.Writer, err error) {
	var appErr *errors.Error
	if !stderrors.As(err, &appErr) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "Error: %s\n", appErr.Message)

	if appErr.Cause != nil {
		fmt.Fprintf(w, "Cause: %v\n", appErr.Cause)
	}

	if appErr.Details != "" {
		fmt.Fprintf(w, "\n%s\n", appErr.Details)
	}

	if len(appErr.Suggestions) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")

		for _, s := range appErr.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}
