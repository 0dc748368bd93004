package dotnet

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/kyleking/schema-replay/internal/cache"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/logging"
)

const invalidNameChars = `<>:"/\|?*`

var errorMarkers = []string{"error", "failed", "doesn't reference"}

// ListRequest selects a project for `dotnet ef dbcontext list`
type ListRequest struct {
	ProjectDir string
	// Csproj, when set, keys the cache on the project file's modification time
	Csproj    string
	Framework string
	// Refresh skips the cache lookup; the fresh result is still stored
	Refresh bool
}

// ListContexts returns the DbContext names the EF tool reports for a project
func (r *Runner) ListContexts(ctx context.Context, req ListRequest) ([]string, error) {
	key := cache.ContextKey(req.ProjectDir, req.Csproj, req.Framework)

	if r.cache != nil && !req.Refresh {
		list, ok, err := cache.GetContexts(ctx, r.cache, key)
		if err != nil {
			logging.WithError(err).Warn("Failed to read context cache")
		} else if ok {
			logging.WithField("project", req.ProjectDir).Debug("Using cached context list")
			return list.Contexts, nil
		}
	}

	args := []string{"dbcontext", "list"}
	if req.Framework != "" {
		args = append(args, "--framework", req.Framework)
	}

	out, err := r.ef(ctx, req.ProjectDir, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeTool, "failed to list DbContexts").
			WithSuggestion("Check that the .NET SDK is installed and on PATH")
	}

	if LooksLikeError(out) {
		return nil, errors.NewToolError("failed to list DbContexts", out.Stdout, out.Stderr, req.ProjectDir)
	}

	contexts := ParseContexts(out.Stdout)

	if r.cache != nil {
		list := cache.ContextList{
			ProjectDir: req.ProjectDir,
			Framework:  req.Framework,
			Contexts:   contexts,
			ListedAt:   time.Now(),
		}
		if err := cache.PutContexts(ctx, r.cache, key, list); err != nil {
			logging.WithError(err).Warn("Failed to cache context list")
		}
	}

	return contexts, nil
}

// LooksLikeError reports whether a `dbcontext list` run failed. The tool
// sometimes exits 0 while printing a build failure, so stdout is inspected
// as well.
func LooksLikeError(out Output) bool {
	if out.ExitCode != 0 {
		return true
	}

	for _, line := range outputLines(out.Stdout) {
		lower := strings.ToLower(line)
		for _, marker := range errorMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}

	return false
}

// ParseContexts keeps the lines of `dbcontext list` output that can be type
// names: no "...", no whitespace, and none of <>:"/\|?*.
func ParseContexts(stdout string) []string {
	contexts := []string{}

	for _, line := range outputLines(stdout) {
		if strings.Contains(line, "...") ||
			strings.IndexFunc(line, unicode.IsSpace) >= 0 ||
			strings.ContainsAny(line, invalidNameChars) {
			continue
		}

		contexts = append(contexts, line)
	}

	return contexts
}

func outputLines(s string) []string {
	var lines []string

	for line := range strings.Lines(s) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
