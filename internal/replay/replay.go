// Package replay folds the operations of a migration history into the schema
// as it stood at a given migration.
package replay

import (
	"fmt"
	"slices"

	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/extract"
	"github.com/kyleking/schema-replay/internal/schema"
	"github.com/kyleking/schema-replay/internal/typename"
)

// Reader returns the source text of an artifact
type Reader func(a catalog.Artifact) (string, error)

// Option configures a reconstruction
type Option func(*options)

type options struct {
	upOnly  bool
	extract func(string) []schema.Operation
	observe func(catalog.Artifact, []schema.Operation)
}

// WithUpOnly restricts extraction to the part of each file before its Down method
func WithUpOnly(upOnly bool) Option {
	return func(o *options) {
		o.upOnly = upOnly
	}
}

// WithCache routes extraction through a memoizing cache
func WithCache(c *extract.Cache) Option {
	return func(o *options) {
		if c != nil {
			o.extract = c.Extract
		}
	}
}

// WithObserver is called once per applied artifact with its operations
func WithObserver(fn func(catalog.Artifact, []schema.Operation)) Option {
	return func(o *options) {
		o.observe = fn
	}
}

// Applies reports whether an artifact is replayed for cutoff. An empty cutoff
// admits everything, as does an artifact without a timestamp.
func Applies(a catalog.Artifact, cutoff string) bool {
	return cutoff == "" || a.Timestamp == "" || a.Timestamp <= cutoff
}

// Reconstruct replays artifacts oldest first up to and including cutoff and
// returns the resulting columns sorted by (table, column). The input slice is
// not modified. Only read errors are returned.
func Reconstruct(artifacts []catalog.Artifact, cutoff string, read Reader, opts ...Option) ([]schema.Column, error) {
	state, err := Fold(artifacts, cutoff, read, opts...)
	if err != nil {
		return nil, err
	}

	return state.Columns(), nil
}

// Fold is Reconstruct without the final flattening
func Fold(artifacts []catalog.Artifact, cutoff string, read Reader, opts ...Option) (*schema.State, error) {
	o := options{extract: extract.Extract}
	for _, opt := range opts {
		opt(&o)
	}

	ordered := slices.Clone(artifacts)
	catalog.SortByTimestamp(ordered)

	state := schema.NewState()

	for _, a := range ordered {
		if !Applies(a, cutoff) {
			break
		}

		text, err := read(a)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", a.Path, err)
		}

		if o.upOnly {
			text = extract.UpSection(text)
		}

		ops := o.extract(text)
		for _, op := range ops {
			Apply(state, op)
		}

		if o.observe != nil {
			o.observe(a, ops)
		}
	}

	return state, nil
}

// Apply folds one operation into state. Creates, adds and alters all
// overwrite by key; drops of unknown columns do nothing.
func Apply(state *schema.State, op schema.Operation) {
	switch op := op.(type) {
	case schema.CreateTable:
		for _, c := range op.Columns {
			state.Upsert(column(op.Table, c))
		}
	case schema.AddColumn:
		state.Upsert(column(op.Table, op.Column))
	case schema.AlterColumn:
		state.Upsert(column(op.Table, op.Column))
	case schema.DropColumn:
		state.Drop(op.Table, op.Column)
	}
}

func column(table string, c schema.ColumnDecl) schema.Column {
	return schema.Column{
		Table:       table,
		Column:      c.Name,
		DisplayType: typename.Normalize(c.RawType),
		Nullable:    c.Nullable,
	}
}

// Latest returns the greatest timestamp among artifacts, or "" if none has one
func Latest(artifacts []catalog.Artifact) string {
	latest := ""
	for _, a := range artifacts {
		if a.Timestamp > latest {
			latest = a.Timestamp
		}
	}

	return latest
}
