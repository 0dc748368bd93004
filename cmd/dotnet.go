package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/dotnet"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/formatter"
	"github.com/kyleking/schema-replay/internal/project"
)

func FrameworksCommand() *cli.Command {
	return &cli.Command{
		Name:        "frameworks",
		Usage:       "List the project's target frameworks",
		Description: `Read <TargetFrameworks> or <TargetFramework> from the project file.`,
		ArgsUsage:   projectArgsUsage,
		Action: action(func(_ context.Context, cmd *cli.Command, _ *config.Config) error {
			p, err := resolveProject(cmd)
			if err != nil {
				return err
			}

			return runFrameworks(cmd.Root().Writer, p)
		}),
	}
}

func runFrameworks(w io.Writer, p project.Project) error {
	if p.File == "" {
		return errors.Newf(errors.ErrTypeNotFound, "no single %s file in %s", project.ProjectExt, p.Dir).
			WithSuggestion("Pass the .csproj path explicitly")
	}

	return formatter.Lines(w, project.TargetFrameworks(p.File))
}

func ContextsCommand() *cli.Command {
	return &cli.Command{
		Name:        "contexts",
		Usage:       "List the project's DbContexts via `dotnet ef dbcontext list`",
		Description: `Run the EF tool in the project directory. Results are cached until the project file changes.`,
		ArgsUsage:   projectArgsUsage,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "framework", Usage: "Target framework for multi-targeted projects"},
			&cli.BoolFlag{Name: "refresh", Usage: "Ignore the cached list"},
		},
		Action: action(func(ctx context.Context, cmd *cli.Command, cfg *config.Config) error {
			p, err := resolveProject(cmd)
			if err != nil {
				return err
			}

			if err := requireDotnet(cfg); err != nil {
				return err
			}

			runner, closeRunner := newRunner(cfg)
			defer closeRunner()

			req := dotnet.ListRequest{
				ProjectDir: p.Dir,
				Csproj:     p.File,
				Framework:  cmd.String("framework"),
				Refresh:    cmd.Bool("refresh"),
			}

			return runContexts(ctx, cmd.Root().Writer, runner, req)
		}),
	}
}

func runContexts(ctx context.Context, w io.Writer, runner *dotnet.Runner, req dotnet.ListRequest) error {
	var contexts []string

	err := withSpinner("Listing DbContexts...", func() error {
		var err error
		contexts, err = runner.ListContexts(ctx, req)

		return err
	})
	if err != nil {
		return err
	}

	if len(contexts) == 0 {
		_, err := fmt.Fprintln(w, "No DbContexts found")
		return err
	}

	return formatter.Lines(w, contexts)
}

func AddCommand() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Scaffold a migration via `dotnet ef migrations add`",
		Description: `Create a migration in Migrations/<context>. Names already used by the context are rejected.`,
		ArgsUsage:   projectArgsUsage,
		Flags: []cli.Flag{
			contextFlag(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Migration name", Required: true},
			&cli.StringFlag{Name: "framework", Usage: "Target framework for multi-targeted projects"},
		},
		Action: action(func(ctx context.Context, cmd *cli.Command, cfg *config.Config) error {
			p, err := resolveProject(cmd)
			if err != nil {
				return err
			}

			if err := requireDotnet(cfg); err != nil {
				return err
			}

			runner, closeRunner := newRunner(cfg)
			defer closeRunner()

			req := dotnet.AddRequest{
				ProjectDir: p.Dir,
				Context:    cmd.String("context"),
				Name:       cmd.String("name"),
				Framework:  cmd.String("framework"),
			}

			return runAdd(ctx, cmd.Root().Writer, runner, req)
		}),
	}
}

func runAdd(ctx context.Context, w io.Writer, runner *dotnet.Runner, req dotnet.AddRequest) error {
	err := withSpinner("Adding migration...", func() error {
		_, err := runner.AddMigration(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "Migration '%s' created in %s\n", req.Name, dotnet.OutputDir(req.Context))

	return err
}
