package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/replay"
	"github.com/kyleking/schema-replay/internal/schema"
	"github.com/kyleking/schema-replay/internal/storage"
)

var sampleColumns = []schema.Column{
	{Table: "Users", Column: "Age", DisplayType: "int", Nullable: true},
	{Table: "Users", Column: "Id", DisplayType: "int", Nullable: false},
}

// rowFields finds the output line mentioning needle and splits it on whitespace
func rowFields(t *testing.T, out, needle string) []string {
	t.Helper()

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, needle) {
			return strings.Fields(line)
		}
	}

	t.Fatalf("no line containing %q in:\n%s", needle, out)

	return nil
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnsTable(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Columns(&buf, sampleColumns, FormatTable))

	out := buf.String()
	assert.Equal(t, []string{"Users", "Age", "int", "YES"}, rowFields(t, out, "Age"))
	assert.Equal(t, []string{"Users", "Id", "int", "NO"}, rowFields(t, out, "Id"))
}

func TestColumnsJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Columns(&buf, sampleColumns, FormatJSON))

	var got []schema.Column
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleColumns, got)
	assert.Contains(t, buf.String(), `"display_type": "int"`)
}

func TestColumnsEmptyJSONIsArray(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Columns(&buf, nil, FormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestColumnsCSV(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Columns(&buf, sampleColumns, FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"table", "column", "type", "nullable"},
		{"Users", "Age", "int", "YES"},
		{"Users", "Id", "int", "NO"},
	}, records)
}

func TestColumnsYAML(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Columns(&buf, sampleColumns, FormatYAML))

	var got []schema.Column
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleColumns, got)
}

func TestMigrations(t *testing.T) {
	artifacts := []catalog.Artifact{
		{Timestamp: "20240101000000", Name: "Init", Path: "/p/Migrations/20240101000000_Init.cs"},
		{Name: "Legacy", Path: "/p/Migrations/Legacy.cs"},
	}

	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Migrations(&buf, artifacts, FormatTable))
	assert.Equal(t, "20240101000000 - Init\nLegacy\n", buf.String())

	buf.Reset()
	require.NoError(t, NewFormatter().Migrations(&buf, artifacts, FormatCSV))
	assert.Contains(t, buf.String(), "20240101000000,Init,/p/Migrations/20240101000000_Init.cs")

	buf.Reset()
	require.NoError(t, NewFormatter().Migrations(&buf, nil, FormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestDiff(t *testing.T) {
	before := []schema.Column{{Table: "Users", Column: "Name", DisplayType: "string", Nullable: true}}
	after := []schema.Column{
		{Table: "Users", Column: "Name", DisplayType: "string", Nullable: false},
		{Table: "Users", Column: "Age", DisplayType: "int", Nullable: true},
	}
	changes := replay.Diff(before, after)

	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Diff(&buf, changes, FormatTable))

	out := buf.String()
	assert.Equal(t, []string{"added", "Users", "Age", "-", "int", "NULL"}, rowFields(t, out, "Age"))
	assert.Equal(t, []string{"changed", "Users", "Name", "string", "NULL", "string", "NOT", "NULL"}, rowFields(t, out, "Name"))

	buf.Reset()
	require.NoError(t, NewFormatter().Diff(&buf, changes, FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"change", "table", "column", "before", "after"}, records[0])
}

func TestDiffEmpty(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Diff(&buf, nil, FormatTable))
	assert.Equal(t, "No schema changes\n", buf.String())

	buf.Reset()
	require.NoError(t, NewFormatter().Diff(&buf, nil, FormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestSnapshots(t *testing.T) {
	snaps := []storage.Snapshot{{
		ID:          "0123456789abcdef",
		ProjectDir:  "/src/shop",
		ContextName: "ShopContext",
		Cutoff:      "",
		CreatedAt:   time.Now().Add(-3 * time.Hour),
		ColumnCount: 4,
	}}

	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Snapshots(&buf, snaps, FormatTable))
	assert.Equal(t,
		[]string{"01234567", "ShopContext", "-", "4", "3", "hours", "ago", "/src/shop"},
		rowFields(t, buf.String(), "ShopContext"))

	buf.Reset()
	require.NoError(t, NewFormatter().Snapshots(&buf, nil, FormatTable))
	assert.Equal(t, "No snapshots saved\n", buf.String())

	buf.Reset()
	require.NoError(t, NewFormatter().Snapshots(&buf, snaps, FormatCSV))
	assert.Contains(t, buf.String(), "0123456789abcdef,ShopContext,,4,")
}

func TestSnapshotDetail(t *testing.T) {
	snap := storage.Snapshot{
		ID:          "abc",
		ProjectDir:  "/src/shop",
		ContextName: "ShopContext",
		Cutoff:      "20240101000000",
		CreatedAt:   time.Now(),
		ColumnCount: 2,
		Columns:     sampleColumns,
	}

	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Snapshot(&buf, snap, FormatTable))

	out := buf.String()
	assert.Contains(t, out, "Snapshot: abc")
	assert.Contains(t, out, "Cutoff:   20240101000000")
	assert.Equal(t, []string{"Users", "Age", "int", "YES"}, rowFields(t, out, "Age"))

	buf.Reset()
	require.NoError(t, NewFormatter().Snapshot(&buf, snap, FormatJSON))

	var got storage.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleColumns, got.Columns)
}

func TestStats(t *testing.T) {
	stats := storage.Stats{
		TotalSnapshots:      3,
		TotalColumns:        12,
		Projects:            2,
		DatabaseSizeMB:      1.5,
		PerContext:          map[string]int{"ShopContext": 2, "BillingContext": 1},
		SchemaVersion:       1,
		LatestSchemaVersion: 2,
		Migrations: []storage.MigrationStatus{
			{Version: 1, Description: "Snapshot tables", Applied: true},
			{Version: 2, Description: "Index snapshots by project and context"},
		},
	}

	var buf bytes.Buffer

	require.NoError(t, NewFormatter().Stats(&buf, stats, FormatTable))

	out := buf.String()
	assert.Contains(t, out, "Snapshots:     3")
	assert.Contains(t, out, "Last saved:    never")
	assert.Contains(t, out, "Database size: 1.50 MB")
	assert.Contains(t, out, "Store schema:  v1 (latest v2)")
	assert.Contains(t, out, "Pending store migrations:\n  v2 Index snapshots by project and context\n")
	assert.NotContains(t, out, "v1 Snapshot tables")
	assert.Less(t, strings.Index(out, "BillingContext: 1"), strings.Index(out, "ShopContext: 2"))
}

func TestHumanizeAge(t *testing.T) {
	now := time.Now()

	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-time.Minute - time.Second), "1 minute ago"},
		{now.Add(-5 * time.Hour), "5 hours ago"},
		{now.Add(-36 * time.Hour), "1 day ago"},
		{now.Add(-65 * 24 * time.Hour), "2 months ago"},
		{now.Add(-800 * 24 * time.Hour), "2 years ago"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, humanizeAge(tt.in))
		})
	}
}

func TestLines(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, Lines(&buf, []string{"net8.0", "net9.0"}))
	assert.Equal(t, "net8.0\nnet9.0\n", buf.String())
}
