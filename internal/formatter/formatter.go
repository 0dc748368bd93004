package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/tableprinter"
	"github.com/cli/go-gh/v2/pkg/term"
	"gopkg.in/yaml.v3"

	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/replay"
	"github.com/kyleking/schema-replay/internal/schema"
	"github.com/kyleking/schema-replay/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatYAML  OutputFormat = "yaml"
)

// Formats lists the accepted output formats
var Formats = []OutputFormat{FormatTable, FormatJSON, FormatCSV, FormatYAML}

// ParseFormat validates a --format value; empty means table
func ParseFormat(s string) (OutputFormat, error) {
	if s == "" {
		return FormatTable, nil
	}

	f := OutputFormat(strings.ToLower(s))
	if !slices.Contains(Formats, f) {
		return "", fmt.Errorf("unknown output format %q (expected table, json, csv or yaml)", s)
	}

	return f, nil
}

// Formatter renders command results
type Formatter struct {
	isTTY bool
	width int
}

// NewFormatter creates a formatter for a non-interactive writer
func NewFormatter() *Formatter {
	return &Formatter{width: 120}
}

// NewTerminalFormatter sizes tables to the current terminal when stdout is one
func NewTerminalFormatter() *Formatter {
	t := term.FromEnv()
	f := &Formatter{isTTY: t.IsTerminalOutput(), width: 120}

	if f.isTTY {
		if w, _, err := t.Size(); err == nil && w > 0 {
			f.width = w
		}
	}

	return f
}

// Columns renders a reconstructed schema
func (f *Formatter) Columns(w io.Writer, cols []schema.Column, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, nonNil(cols))
	case FormatYAML:
		return WriteYAML(w, nonNil(cols))
	case FormatCSV:
		rows := make([][]string, 0, len(cols))
		for _, c := range cols {
			rows = append(rows, columnRow(c))
		}

		return writeCSV(w, []string{"table", "column", "type", "nullable"}, rows)
	default:
		tp := f.table(w)
		tp.AddHeader([]string{"TABLE", "COLUMN", "TYPE", "NULLABLE"})

		for _, c := range cols {
			for _, field := range columnRow(c) {
				tp.AddField(field)
			}

			tp.EndRow()
		}

		return tp.Render()
	}
}

// Migrations renders the ordered migration list
func (f *Formatter) Migrations(w io.Writer, artifacts []catalog.Artifact, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, nonNil(artifacts))
	case FormatYAML:
		return WriteYAML(w, nonNil(artifacts))
	case FormatCSV:
		rows := make([][]string, 0, len(artifacts))
		for _, a := range artifacts {
			rows = append(rows, []string{a.Timestamp, a.Name, a.Path})
		}

		return writeCSV(w, []string{"timestamp", "name", "path"}, rows)
	default:
		return Lines(w, catalog.Labels(artifacts))
	}
}

// Diff renders schema changes
func (f *Formatter) Diff(w io.Writer, changes []replay.Change, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, nonNil(changes))
	case FormatYAML:
		return WriteYAML(w, nonNil(changes))
	case FormatCSV:
		rows := make([][]string, 0, len(changes))
		for _, c := range changes {
			rows = append(rows, []string{string(c.Kind), c.Table, c.Column, describe(c.Before), describe(c.After)})
		}

		return writeCSV(w, []string{"change", "table", "column", "before", "after"}, rows)
	default:
		if len(changes) == 0 {
			_, err := fmt.Fprintln(w, "No schema changes")
			return err
		}

		tp := f.table(w)
		tp.AddHeader([]string{"CHANGE", "TABLE", "COLUMN", "BEFORE", "AFTER"})

		for _, c := range changes {
			tp.AddField(string(c.Kind))
			tp.AddField(c.Table)
			tp.AddField(c.Column)
			tp.AddField(describe(c.Before))
			tp.AddField(describe(c.After))
			tp.EndRow()
		}

		return tp.Render()
	}
}

// Snapshots renders a snapshot listing
func (f *Formatter) Snapshots(w io.Writer, snaps []storage.Snapshot, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, nonNil(snaps))
	case FormatYAML:
		return WriteYAML(w, nonNil(snaps))
	case FormatCSV:
		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			rows = append(rows, []string{
				s.ID, s.ContextName, s.Cutoff, strconv.Itoa(s.ColumnCount),
				s.CreatedAt.UTC().Format(time.RFC3339), s.ProjectDir,
			})
		}

		return writeCSV(w, []string{"id", "context", "cutoff", "columns", "created_at", "project"}, rows)
	default:
		if len(snaps) == 0 {
			_, err := fmt.Fprintln(w, "No snapshots saved")
			return err
		}

		tp := f.table(w)
		tp.AddHeader([]string{"ID", "CONTEXT", "CUTOFF", "COLUMNS", "SAVED", "PROJECT"})

		for _, s := range snaps {
			tp.AddField(shortID(s.ID))
			tp.AddField(s.ContextName)
			tp.AddField(orDash(s.Cutoff))
			tp.AddField(strconv.Itoa(s.ColumnCount))
			tp.AddField(humanizeAge(s.CreatedAt))
			tp.AddField(s.ProjectDir)
			tp.EndRow()
		}

		return tp.Render()
	}
}

// Snapshot renders one snapshot with its columns
func (f *Formatter) Snapshot(w io.Writer, snap storage.Snapshot, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, snap)
	case FormatYAML:
		return WriteYAML(w, snap)
	case FormatCSV:
		return f.Columns(w, snap.Columns, format)
	default:
		fmt.Fprintf(w, "Snapshot: %s\n", snap.ID)
		fmt.Fprintf(w, "Context:  %s\n", snap.ContextName)
		fmt.Fprintf(w, "Project:  %s\n", snap.ProjectDir)
		fmt.Fprintf(w, "Cutoff:   %s\n", orDash(snap.Cutoff))
		fmt.Fprintf(w, "Saved:    %s (%s)\n\n", snap.CreatedAt.Local().Format(time.DateTime), humanizeAge(snap.CreatedAt))

		return f.Columns(w, snap.Columns, format)
	}
}

// Stats renders snapshot store statistics
func (f *Formatter) Stats(w io.Writer, stats storage.Stats, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, stats)
	case FormatYAML:
		return WriteYAML(w, stats)
	default:
		fmt.Fprintf(w, "Snapshots:     %d\n", stats.TotalSnapshots)
		fmt.Fprintf(w, "Columns:       %d\n", stats.TotalColumns)
		fmt.Fprintf(w, "Projects:      %d\n", stats.Projects)
		fmt.Fprintf(w, "Last saved:    %s\n", humanizeAge(stats.LastSavedAt))
		fmt.Fprintf(w, "Database size: %.2f MB\n", stats.DatabaseSizeMB)
		fmt.Fprintf(w, "Store schema:  v%d (latest v%d)\n", stats.SchemaVersion, stats.LatestSchemaVersion)

		if pending := stats.Pending(); len(pending) > 0 {
			fmt.Fprintln(w, "\nPending store migrations:")

			for _, m := range pending {
				fmt.Fprintf(w, "  v%d %s\n", m.Version, m.Description)
			}
		}

		if len(stats.PerContext) == 0 {
			return nil
		}

		fmt.Fprintln(w, "\nBy context:")

		for _, name := range slices.Sorted(maps.Keys(stats.PerContext)) {
			fmt.Fprintf(w, "  %s: %d\n", name, stats.PerContext[name])
		}

		return nil
	}
}

// Lines writes one item per line
func Lines(w io.Writer, items []string) error {
	for _, item := range items {
		if _, err := fmt.Fprintln(w, item); err != nil {
			return err
		}
	}

	return nil
}

func (f *Formatter) table(w io.Writer) tableprinter.TablePrinter {
	return tableprinter.New(w, f.isTTY, f.width)
}

func columnRow(c schema.Column) []string {
	return []string{c.Table, c.Column, c.DisplayType, yesNo(c.Nullable)}
}

func describe(c *schema.Column) string {
	if c == nil {
		return "-"
	}

	if c.Nullable {
		return c.DisplayType + " NULL"
	}

	return c.DisplayType + " NOT NULL"
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}

	return "NO"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// WriteYAML writes v as YAML
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return err
	}

	return enc.Close()
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return err
	}

	if err := cw.WriteAll(rows); err != nil {
		return err
	}

	return cw.Error()
}

// humanizeAge converts a time to a human-readable age string
func humanizeAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return plural(int(duration.Minutes()), "minute")
	case duration < 24*time.Hour:
		return plural(int(duration.Hours()), "hour")
	}

	days := int(duration.Hours() / 24)

	switch {
	case days < 30:
		return plural(days, "day")
	case days < 365:
		return plural(days/30, "month")
	default:
		return plural(days/365, "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}

	return fmt.Sprintf("%d %ss ago", n, unit)
}
