package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/formatter"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the configuration after merging the config file, environment variables, and command-line flags.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "Output format (text, json)"},
		},
		Action: action(func(ctx context.Context, cmd *cli.Command, _ *config.Config) error {
			return runConfig(ctx, cmd.Root().Writer, cmd.String("format"))
		}),
	}
}

func runConfig(ctx context.Context, w io.Writer, format string) error {
	cfg := getConfigFromContext(ctx)
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	switch format {
	case "json":
		return formatter.WriteJSON(w, cfg)
	case "text", "":
	default:
		return errors.Newf(errors.ErrTypeValidation, "unknown format %q (expected text or json)", format)
	}

	fmt.Fprintf(w, "Config file: %s\n", config.ConfigPath())

	fmt.Fprintln(w, "\nDatabase:")
	fmt.Fprintf(w, "  Path: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "  Query Timeout: %s\n", cfg.Database.QueryTimeout)

	fmt.Fprintln(w, "\nCache:")
	fmt.Fprintf(w, "  Directory: %s\n", cfg.Cache.Directory)
	fmt.Fprintf(w, "  Max Size: %d MB\n", cfg.Cache.MaxSizeMB)
	fmt.Fprintf(w, "  TTL: %d hours\n", cfg.Cache.TTLHours)
	fmt.Fprintf(w, "  Cleanup Frequency: %s\n", cfg.Cache.CleanupFreq)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", cfg.Logging.File)
	}

	fmt.Fprintln(w, "\nReplay:")
	fmt.Fprintf(w, "  Up Only: %t\n", cfg.Replay.UpOnly)
	fmt.Fprintf(w, "  Workers: %d\n", cfg.Replay.Workers)
	fmt.Fprintf(w, "  Extract Cache Size: %d\n", cfg.Replay.ExtractCacheSize)

	fmt.Fprintln(w, "\nDotnet:")
	fmt.Fprintf(w, "  Binary: %s\n", cfg.Dotnet.Binary)
	fmt.Fprintf(w, "  Timeout: %s\n", cfg.Dotnet.Timeout)

	fmt.Fprintln(w, "\nWatch:")
	fmt.Fprintf(w, "  Debounce: %s\n", cfg.Watch.Debounce)

	fmt.Fprintln(w, "\nDebug:")
	fmt.Fprintf(w, "  Enabled: %t\n", cfg.Debug.Enabled)
	fmt.Fprintf(w, "  Verbose: %t\n", cfg.Debug.Verbose)

	return nil
}
