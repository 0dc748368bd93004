package replay

import (
	"sort"

	"github.com/kyleking/schema-replay/internal/schema"
)

// ChangeKind classifies a column difference between two snapshots
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
)

// Change is one column that differs between two snapshots. Before is nil
// for added columns and After is nil for removed ones.
type Change struct {
	Kind   ChangeKind     `json:"kind"             yaml:"kind"`
	Table  string         `json:"table"            yaml:"table"`
	Column string         `json:"column"           yaml:"column"`
	Before *schema.Column `json:"before,omitempty" yaml:"before,omitempty"`
	After  *schema.Column `json:"after,omitempty"  yaml:"after,omitempty"`
}

func stateOf(cols []schema.Column) *schema.State {
	s := schema.NewState()
	for _, c := range cols {
		s.Upsert(c)
	}

	return s
}

// Diff compares two column lists case-insensitively by (table, column). A
// column counts as changed when its display type or nullability differs.
func Diff(before, after []schema.Column) []Change {
	old, current := stateOf(before), stateOf(after)

	var changes []Change

	for _, c := range after {
		prev, ok := old.Lookup(c.Table, c.Column)

		switch {
		case !ok:
			changes = append(changes, Change{Kind: ChangeAdded, Table: c.Table, Column: c.Column, After: &c})
		case prev.DisplayType != c.DisplayType || prev.Nullable != c.Nullable:
			changes = append(changes, Change{Kind: ChangeChanged, Table: c.Table, Column: c.Column, Before: &prev, After: &c})
		}
	}

	for _, c := range before {
		if _, ok := current.Lookup(c.Table, c.Column); !ok {
			changes = append(changes, Change{Kind: ChangeRemoved, Table: c.Table, Column: c.Column, Before: &c})
		}
	}

	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Table != changes[j].Table {
			return changes[i].Table < changes[j].Table
		}

		return changes[i].Column < changes[j].Column
	})

	return changes
}
