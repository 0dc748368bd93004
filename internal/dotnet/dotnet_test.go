package dotnet

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/schema-replay/internal/cache"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/testutil"
)

const contextListOutput = `Build started...
Build succeeded.
Shop.Data.ShopContext
Shop.Data.BillingContext
`

func newRunner(t *testing.T, fake *FakeCommander, opts ...Option) *Runner {
	t.Helper()

	return NewRunner("dotnet", time.Minute, append([]Option{WithCommander(fake)}, opts...)...)
}

func newCache(t *testing.T) *cache.FileCache {
	t.Helper()

	c, err := cache.NewFileCache(t.TempDir(), 10, time.Hour, 0)
	require.NoError(t, err)

	t.Cleanup(func() { c.Close() })

	return c
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner("", 0)
	assert.Equal(t, DefaultBinary, r.binary)
	assert.Equal(t, DefaultTimeout, r.timeout)
	assert.IsType(t, ExecCommander{}, r.commander)
	assert.Nil(t, r.cache)
}

func TestParseContexts(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   []string
	}{
		{"build noise filtered", contextListOutput, []string{"Shop.Data.ShopContext", "Shop.Data.BillingContext"}},
		{"empty", "", []string{}},
		{"whitespace lines", "\n   \n\tShopContext  \n", []string{"ShopContext"}},
		{"windows newlines", "A.Context\r\nB.Context\r\n", []string{"A.Context", "B.Context"}},
		{"path-like lines dropped", "C:\\src\\Shop\nShopContext\n<none>\n", []string{"ShopContext"}},
		{"ellipsis dropped", "Done...\nX...Y\nShopContext", []string{"ShopContext"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContexts(tt.stdout))
		})
	}
}

func TestLooksLikeError(t *testing.T) {
	tests := []struct {
		name string
		out  Output
		want bool
	}{
		{"clean", Output{Stdout: contextListOutput}, false},
		{"non-zero exit", Output{Stdout: contextListOutput, ExitCode: 1}, true},
		{"error line", Output{Stdout: "Build started...\nerror CS1002: ; expected"}, true},
		{"failed line", Output{Stdout: "Build FAILED."}, true},
		{"missing reference", Output{Stdout: "Your startup project 'Shop' doesn't reference Microsoft.EntityFrameworkCore.Design."}, true},
		{"stderr alone is not inspected", Output{Stdout: "ShopContext", Stderr: "warning: error-prone"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeError(tt.out))
		})
	}
}

func TestListContexts(t *testing.T) {
	fake := NewFakeCommander().Respond("ef dbcontext list", Output{Stdout: contextListOutput})
	r := newRunner(t, fake)

	got, err := r.ListContexts(context.Background(), ListRequest{ProjectDir: "/src/shop"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shop.Data.ShopContext", "Shop.Data.BillingContext"}, got)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/src/shop", calls[0].Dir)
	assert.Equal(t, "dotnet", calls[0].Name)
	assert.Equal(t, []string{"ef", "dbcontext", "list"}, calls[0].Args)
}

func TestListContextsWithFramework(t *testing.T) {
	fake := NewFakeCommander().Respond("ef dbcontext list", Output{Stdout: "ShopContext"})
	r := newRunner(t, fake)

	_, err := r.ListContexts(context.Background(), ListRequest{ProjectDir: "/p", Framework: "net8.0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ef", "dbcontext", "list", "--framework", "net8.0"}, fake.Calls()[0].Args)
}

func TestListContextsToolFailure(t *testing.T) {
	fake := NewFakeCommander().Respond("ef dbcontext list", Output{
		Stdout:   "Build started...",
		Stderr:   "The target framework was not specified... The target framework is not specified",
		ExitCode: 1,
	})
	r := newRunner(t, fake)

	_, err := r.ListContexts(context.Background(), ListRequest{ProjectDir: "/src/shop"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTool))

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "/src/shop")
	assert.Contains(t, appErr.Details, "Build started...")
	require.NotEmpty(t, appErr.Suggestions)
	assert.Contains(t, appErr.Suggestions[0], "--framework")
}

func TestListContextsEmptyOutputSucceeds(t *testing.T) {
	r := newRunner(t, NewFakeCommander())

	got, err := r.ListContexts(context.Background(), ListRequest{ProjectDir: "/p"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListContextsStartFailure(t *testing.T) {
	fake := NewFakeCommander().Fail("ef", stderrors.New("executable file not found"))
	r := newRunner(t, fake)

	_, err := r.ListContexts(context.Background(), ListRequest{ProjectDir: "/p"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTool))
	assert.ErrorContains(t, err, "executable file not found")
}

func TestListContextsTimeout(t *testing.T) {
	fake := NewFakeCommander()
	fake.OnRun = func(Call) { time.Sleep(50 * time.Millisecond) }
	r := NewRunner("dotnet", 10*time.Millisecond, WithCommander(fake))

	_, err := r.ListContexts(context.Background(), ListRequest{ProjectDir: "/p"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "timed out")
}

func TestListContextsCached(t *testing.T) {
	fake := NewFakeCommander().Respond("ef dbcontext list", Output{Stdout: contextListOutput})
	r := newRunner(t, fake, WithCache(newCache(t)))
	ctx := context.Background()

	dir := t.TempDir()
	csproj := testutil.WriteFile(t, dir, "Shop.csproj", "<Project />")
	req := ListRequest{ProjectDir: dir, Csproj: csproj}

	first, err := r.ListContexts(ctx, req)
	require.NoError(t, err)

	second, err := r.ListContexts(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, fake.Calls(), 1)

	req.Refresh = true
	_, err = r.ListContexts(ctx, req)
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 2)

	// touching the project file invalidates the entry
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(csproj, later, later))

	req.Refresh = false
	_, err = r.ListContexts(ctx, req)
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 3)

	// different framework, different entry
	req.Framework = "net8.0"
	_, err = r.ListContexts(ctx, req)
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 4)
}

func TestListContextsFailureNotCached(t *testing.T) {
	fake := NewFakeCommander().Respond("ef dbcontext list", Output{Stdout: "Build FAILED."})
	r := newRunner(t, fake, WithCache(newCache(t)))
	ctx := context.Background()

	for range 2 {
		_, err := r.ListContexts(ctx, ListRequest{ProjectDir: "/p"})
		require.Error(t, err)
	}

	assert.Len(t, fake.Calls(), 2)
}

func TestOutputDir(t *testing.T) {
	assert.Equal(t, "Migrations/Shop", OutputDir(testutil.TestContext))
	assert.Equal(t, "Migrations/Billing", OutputDir("BillingContext"))
}

func TestAddMigration(t *testing.T) {
	root := t.TempDir()
	fake := NewFakeCommander().Respond("ef migrations add", Output{Stdout: "Done."})
	r := newRunner(t, fake)

	_, err := r.AddMigration(context.Background(), AddRequest{
		ProjectDir: root,
		Context:    testutil.TestContext,
		Name:       "AddOrders",
		Framework:  "net8.0",
	})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, root, calls[0].Dir)
	assert.Equal(t, []string{
		"ef", "migrations", "add", "AddOrders",
		"--context", testutil.TestContext,
		"--output-dir", "Migrations/Shop",
		"--framework", "net8.0",
		"--verbose",
	}, calls[0].Args)

	info, err := os.Stat(filepath.Join(root, "Migrations", "Shop"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAddMigrationWithoutFramework(t *testing.T) {
	fake := NewFakeCommander()
	r := newRunner(t, fake)

	_, err := r.AddMigration(context.Background(), AddRequest{
		ProjectDir: t.TempDir(),
		Context:    "ShopContext",
		Name:       "Init",
	})
	require.NoError(t, err)
	assert.NotContains(t, fake.Calls()[0].Args, "--framework")
	assert.Equal(t, "--verbose", fake.Calls()[0].Args[len(fake.Calls()[0].Args)-1])
}

func TestAddMigrationDuplicateName(t *testing.T) {
	root := testutil.ScenarioProject(t)
	fake := NewFakeCommander()
	r := newRunner(t, fake)

	_, err := r.AddMigration(context.Background(), AddRequest{
		ProjectDir: root,
		Context:    testutil.TestContext,
		Name:       "addage",
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	assert.ErrorContains(t, err, "already exists")
	assert.Empty(t, fake.Calls())
}

func TestAddMigrationValidation(t *testing.T) {
	tests := []struct {
		name string
		req  AddRequest
		want string
	}{
		{"no project", AddRequest{Context: "C", Name: "N"}, "project directory"},
		{"no context", AddRequest{ProjectDir: "/p", Context: "  ", Name: "N"}, "DbContext"},
		{"no name", AddRequest{ProjectDir: "/p", Context: "C", Name: " "}, "migration name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := NewFakeCommander()
			r := newRunner(t, fake)

			_, err := r.AddMigration(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			assert.ErrorContains(t, err, tt.want)
			assert.Empty(t, fake.Calls())
		})
	}
}

func TestAddMigrationToolFailure(t *testing.T) {
	fake := NewFakeCommander().Respond("ef migrations add", Output{
		Stderr:   "Unable to create an object of type 'ShopContext'.",
		ExitCode: 1,
	})
	r := newRunner(t, fake)

	out, err := r.AddMigration(context.Background(), AddRequest{
		ProjectDir: t.TempDir(),
		Context:    "ShopContext",
		Name:       "Init",
	})
	require.Error(t, err)
	assert.Equal(t, 1, out.ExitCode)

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrTypeTool, appErr.Type)
	require.Len(t, appErr.Suggestions, 1)
	assert.Contains(t, appErr.Suggestions[0], "IDesignTimeDbContextFactory")
}

func TestFakeCommanderLongestPrefixWins(t *testing.T) {
	fake := NewFakeCommander().
		Respond("ef", Output{Stdout: "generic"}).
		Respond("ef migrations", Output{Stdout: "specific"})

	out, err := fake.Run(context.Background(), "", "dotnet", "ef", "migrations", "list")
	require.NoError(t, err)
	assert.Equal(t, "specific", out.Stdout)

	out, err = fake.Run(context.Background(), "", "dotnet", "ef", "dbcontext", "list")
	require.NoError(t, err)
	assert.Equal(t, "generic", out.Stdout)
}

func TestExecCommanderExitCode(t *testing.T) {
	if _, err := FindDotnet("sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := ExecCommander{}.Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
	assert.Equal(t, 3, out.ExitCode)
}

func TestExecCommanderMissingBinary(t *testing.T) {
	_, err := ExecCommander{}.Run(context.Background(), t.TempDir(), "schema-replay-definitely-missing")
	require.Error(t, err)
}
