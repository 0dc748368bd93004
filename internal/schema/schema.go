// Package schema holds the operation variants extracted from migration files
// and the case-insensitive table/column state they are folded into.
package schema

import (
	"sort"
	"strings"
)

// ColumnDecl is a column as declared inside a migration statement
type ColumnDecl struct {
	Name     string `json:"name"`
	RawType  string `json:"raw_type"`
	Nullable bool   `json:"nullable"`
}

// Operation is one typed schema change. The set of implementations is closed.
type Operation interface {
	// TableName returns the table the operation targets
	TableName() string
	isOperation()
}

// CreateTable declares a table together with its initial columns
type CreateTable struct {
	Table   string
	Columns []ColumnDecl
}

// AddColumn adds (or, on replay, overwrites) a single column
type AddColumn struct {
	Table  string
	Column ColumnDecl
}

// DropColumn removes a column by name
type DropColumn struct {
	Table  string
	Column string
}

// AlterColumn changes the definition of an existing column
type AlterColumn struct {
	Table  string
	Column ColumnDecl
}

func (o CreateTable) TableName() string { return o.Table }
func (o AddColumn) TableName() string   { return o.Table }
func (o DropColumn) TableName() string  { return o.Table }
func (o AlterColumn) TableName() string { return o.Table }

func (CreateTable) isOperation() {}
func (AddColumn) isOperation()   {}
func (DropColumn) isOperation()  {}
func (AlterColumn) isOperation() {}

// Column is one row of a reconstructed schema
type Column struct {
	Table       string `json:"table"        yaml:"table"`
	Column      string `json:"column"       yaml:"column"`
	DisplayType string `json:"display_type" yaml:"display_type"`
	Nullable    bool   `json:"nullable"     yaml:"nullable"`
}

// Key folds a table or column name for case-insensitive lookups.
func Key(name string) string {
	return strings.ToUpper(name)
}

// State maps table key -> column key -> Column. The zero value is not usable;
// use NewState.
type State struct {
	tables map[string]map[string]Column
}

// NewState returns an empty state
func NewState() *State {
	return &State{tables: make(map[string]map[string]Column)}
}

// Upsert stores col under (col.Table, col.Column), replacing any column with
// the same key regardless of case.
func (s *State) Upsert(col Column) {
	tk := Key(col.Table)

	cols, ok := s.tables[tk]
	if !ok {
		cols = make(map[string]Column)
		s.tables[tk] = cols
	}

	cols[Key(col.Column)] = col
}

// Drop removes the column if present. Dropping an unknown table or column is a no-op.
func (s *State) Drop(table, column string) {
	if cols, ok := s.tables[Key(table)]; ok {
		delete(cols, Key(column))
	}
}

// Lookup returns the column stored under (table, column)
func (s *State) Lookup(table, column string) (Column, bool) {
	cols, ok := s.tables[Key(table)]
	if !ok {
		return Column{}, false
	}

	col, ok := cols[Key(column)]

	return col, ok
}

// Len returns the number of columns across all tables
func (s *State) Len() int {
	n := 0
	for _, cols := range s.tables {
		n += len(cols)
	}

	return n
}

// Columns flattens the state into a list sorted by (Table, Column) using
// byte-wise comparison.
func (s *State) Columns() []Column {
	out := make([]Column, 0, s.Len())
	for _, cols := range s.tables {
		for _, col := range cols {
			out = append(out, col)
		}
	}

	SortColumns(out)

	return out
}

// SortColumns orders columns by (Table, Column) ordinally
func SortColumns(cols []Column) {
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Table != cols[j].Table {
			return cols[i].Table < cols[j].Table
		}

		return cols[i].Column < cols[j].Column
	})
}
