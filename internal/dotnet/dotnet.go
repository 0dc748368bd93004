// Package dotnet drives the `dotnet ef` command line tool.
package dotnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/kyleking/schema-replay/internal/cache"
	"github.com/kyleking/schema-replay/internal/logging"
)

const (
	// DefaultBinary is the dotnet host looked up in PATH
	DefaultBinary = "dotnet"

	// DefaultTimeout bounds a single `dotnet ef` invocation; the first run builds the project
	DefaultTimeout = 5 * time.Minute
)

// Output is the captured result of a process
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Commander runs a process in dir and captures its output. A non-zero exit
// is reported through Output.ExitCode, not as an error; err is reserved for
// failures to start or wait on the process.
type Commander interface {
	Run(ctx context.Context, dir, name string, args ...string) (Output, error)
}

// ExecCommander runs real processes with os/exec
type ExecCommander struct{}

// Run implements Commander
func (ExecCommander) Run(ctx context.Context, dir, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}

	if err != nil {
		out.ExitCode = -1
		return out, err
	}

	return out, nil
}

// Runner invokes `dotnet ef` subcommands
type Runner struct {
	binary    string
	timeout   time.Duration
	commander Commander
	cache     cache.Cache
}

// Option configures a Runner
type Option func(*Runner)

// WithCommander replaces the process runner
func WithCommander(c Commander) Option {
	return func(r *Runner) { r.commander = c }
}

// WithCache enables caching of context lists
func WithCache(c cache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// NewRunner creates a Runner. An empty binary or non-positive timeout falls
// back to the defaults.
func NewRunner(binary string, timeout time.Duration, opts ...Option) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r := &Runner{binary: binary, timeout: timeout, commander: ExecCommander{}}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// FindDotnet locates binary in PATH
func FindDotnet(binary string) (string, error) {
	if binary == "" {
		binary = DefaultBinary
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: install the .NET SDK from https://dotnet.microsoft.com/download", binary)
	}

	return path, nil
}

// ef runs `dotnet ef <args>` in dir under the runner's timeout
func (r *Runner) ef(ctx context.Context, dir string, args ...string) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	full := append([]string{"ef"}, args...)

	logging.WithFields(map[string]any{
		"dir":  dir,
		"args": full,
	}).Debug("Running dotnet")

	start := time.Now()
	out, err := r.commander.Run(ctx, dir, r.binary, full...)

	logging.WithFields(map[string]any{
		"exit_code": out.ExitCode,
		"duration":  time.Since(start).String(),
	}).Debug("dotnet finished")

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("dotnet ef timed out after %s", r.timeout)
		}

		return out, fmt.Errorf("failed to run %s: %w", r.binary, err)
	}

	return out, nil
}
