package dotnet

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/logging"
)

// AddRequest describes a new migration
type AddRequest struct {
	ProjectDir string
	Context    string
	Name       string
	Framework  string
}

// OutputDir is the project-relative folder new migrations for a context go to
func OutputDir(contextName string) string {
	return catalog.MigrationsDir + "/" + catalog.ContextShort(contextName)
}

// AddMigration scaffolds a migration with `dotnet ef migrations add`. A name
// already used by one of the context's migrations (ignoring case) is rejected
// before the tool runs.
func (r *Runner) AddMigration(ctx context.Context, req AddRequest) (Output, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Context = strings.TrimSpace(req.Context)

	switch {
	case req.ProjectDir == "":
		return Output{}, errors.New(errors.ErrTypeValidation, "project directory is required")
	case req.Context == "":
		return Output{}, errors.New(errors.ErrTypeValidation, "a DbContext is required").
			WithSuggestion("List the available contexts with `schema-replay contexts <project>`")
	case req.Name == "":
		return Output{}, errors.New(errors.ErrTypeValidation, "a migration name is required")
	}

	existing, err := catalog.List(req.ProjectDir, req.Context)
	if err != nil {
		return Output{}, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to list existing migrations")
	}

	if catalog.HasName(existing, req.Name) {
		return Output{}, errors.Newf(errors.ErrTypeValidation, "migration %q already exists", req.Name).
			WithSuggestion("Choose a different migration name")
	}

	outputDir := OutputDir(req.Context)
	if err := os.MkdirAll(filepath.Join(req.ProjectDir, filepath.FromSlash(outputDir)), 0o755); err != nil {
		return Output{}, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to create migrations directory")
	}

	args := []string{"migrations", "add", req.Name, "--context", req.Context, "--output-dir", outputDir}
	if req.Framework != "" {
		args = append(args, "--framework", req.Framework)
	}

	args = append(args, "--verbose")

	out, err := r.ef(ctx, req.ProjectDir, args...)
	if err != nil {
		return out, errors.Wrap(err, errors.ErrTypeTool, "failed to add migration")
	}

	if out.ExitCode != 0 {
		return out, errors.NewToolError("failed to add migration", out.Stdout, out.Stderr, req.ProjectDir)
	}

	logging.WithFields(map[string]any{
		"context":   req.Context,
		"migration": req.Name,
	}).Info("Migration added")

	return out, nil
}
