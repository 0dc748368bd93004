// Package extract pulls typed schema operations out of migration source text.
//
// Extraction is pattern based: it recognises the builder calls a code-first
// migration emits (CreateTable, AddColumn, DropColumn, AlterColumn) and reads
// their named arguments in any order. Anything it does not recognise is
// skipped; no function in this package returns an error.
package extract

import (
	"iter"
	"regexp"
	"sort"
	"strings"

	"github.com/kyleking/schema-replay/internal/schema"
)

var (
	createTableCallRegex = regexp.MustCompile(`\bCreateTable\s*\(`)
	createTableRegex     = regexp.MustCompile(`^CreateTable\s*\(\s*name\s*:\s*"([^"]+)"`)
	columnRegex          = regexp.MustCompile(`\b(\w+)\s*=\s*\w+\s*\.\s*Column\s*<`)
	addColumnRegex       = regexp.MustCompile(`\bAddColumn\s*<`)
	alterColumnRegex     = regexp.MustCompile(`\bAlterColumn\s*<`)
	dropColumnRegex      = regexp.MustCompile(`\bDropColumn\s*\(`)
	downMethodRegex      = regexp.MustCompile(`\bvoid\s+Down\s*\(`)

	// Only string-valued name/table and boolean nullable are read; other
	// arguments (type, maxLength, defaultValue, oldClrType...) are ignored.
	attrRegex = regexp.MustCompile(`\b(?:(name|table)\s*:\s*"([^"]*)"|nullable\s*:\s*((?i:true|false))\b)`)
)

// Extract returns every operation found in text, in the order the statements
// appear. It is a pure function of text.
func Extract(text string) []schema.Operation {
	type located struct {
		offset int
		op     schema.Operation
	}

	var found []located

	for off, op := range createTables(text) {
		found = append(found, located{off, op})
	}

	for off, op := range addColumns(text) {
		found = append(found, located{off, op})
	}

	for off, op := range dropColumns(text) {
		found = append(found, located{off, op})
	}

	for off, op := range alterColumns(text) {
		found = append(found, located{off, op})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].offset < found[j].offset
	})

	ops := make([]schema.Operation, len(found))
	for i, f := range found {
		ops[i] = f.op
	}

	return ops
}

// CreateTables yields one CreateTable per table-creation call in text
func CreateTables(text string) iter.Seq[schema.CreateTable] {
	return values(createTables(text))
}

// AddColumns yields one AddColumn per AddColumn<T>(...) call in text
func AddColumns(text string) iter.Seq[schema.AddColumn] {
	return values(addColumns(text))
}

// DropColumns yields one DropColumn per DropColumn(...) call in text
func DropColumns(text string) iter.Seq[schema.DropColumn] {
	return values(dropColumns(text))
}

// AlterColumns yields one AlterColumn per AlterColumn<T>(...) call in text
func AlterColumns(text string) iter.Seq[schema.AlterColumn] {
	return values(alterColumns(text))
}

// UpSection returns the part of a migration class that precedes its Down
// method, or text unchanged when no Down method is declared.
func UpSection(text string) string {
	if loc := downMethodRegex.FindStringIndex(text); loc != nil {
		return text[:loc[0]]
	}

	return text
}

func values[T any](seq iter.Seq2[int, T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range seq {
			if !yield(v) {
				return
			}
		}
	}
}

// createTables pairs each CreateTable with its offset. The column block of a
// table runs until the next CreateTable call of any shape, or the end of text.
// Calls whose first argument is not the table name yield nothing.
func createTables(text string) iter.Seq2[int, schema.CreateTable] {
	return func(yield func(int, schema.CreateTable) bool) {
		calls := createTableCallRegex.FindAllStringIndex(text, -1)

		for i, c := range calls {
			end := len(text)
			if i+1 < len(calls) {
				end = calls[i+1][0]
			}

			block := text[c[0]:end]

			m := createTableRegex.FindStringSubmatch(block)
			if m == nil {
				continue
			}

			op := schema.CreateTable{
				Table:   m[1],
				Columns: columnDecls(block),
			}

			if !yield(c[0], op) {
				return
			}
		}
	}
}

// columnDecls reads `Ident = table.Column<T>(..., nullable: b, ...)` entries.
// An explicit name argument overrides the property identifier.
func columnDecls(block string) []schema.ColumnDecl {
	var cols []schema.ColumnDecl

	for _, m := range columnRegex.FindAllStringSubmatchIndex(block, -1) {
		rawType, next, ok := genericArg(block, m[1]-1)
		if !ok {
			continue
		}

		args, _, ok := argList(block, next)
		if !ok {
			continue
		}

		a := parseAttrs(args)
		if !a.hasNullable {
			continue
		}

		name := block[m[2]:m[3]]
		if a.name != "" {
			name = a.name
		}

		cols = append(cols, schema.ColumnDecl{
			Name:     name,
			RawType:  strings.TrimSpace(rawType),
			Nullable: a.nullable,
		})
	}

	return cols
}

func addColumns(text string) iter.Seq2[int, schema.AddColumn] {
	return func(yield func(int, schema.AddColumn) bool) {
		for off, c := range typedCalls(text, addColumnRegex) {
			if !yield(off, schema.AddColumn{Table: c.table, Column: c.decl}) {
				return
			}
		}
	}
}

func alterColumns(text string) iter.Seq2[int, schema.AlterColumn] {
	return func(yield func(int, schema.AlterColumn) bool) {
		for off, c := range typedCalls(text, alterColumnRegex) {
			if !yield(off, schema.AlterColumn{Table: c.table, Column: c.decl}) {
				return
			}
		}
	}
}

func dropColumns(text string) iter.Seq2[int, schema.DropColumn] {
	return func(yield func(int, schema.DropColumn) bool) {
		for _, loc := range dropColumnRegex.FindAllStringIndex(text, -1) {
			args, _, ok := argList(text, loc[1]-1)
			if !ok {
				continue
			}

			a := parseAttrs(args)
			if a.name == "" || a.table == "" {
				continue
			}

			if !yield(loc[0], schema.DropColumn{Table: a.table, Column: a.name}) {
				return
			}
		}
	}
}

type typedCall struct {
	table string
	decl  schema.ColumnDecl
}

// typedCalls matches `Keyword<T>(name: "...", table: "...", nullable: b)`
// with the arguments in any order.
func typedCalls(text string, re *regexp.Regexp) iter.Seq2[int, typedCall] {
	return func(yield func(int, typedCall) bool) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			rawType, next, ok := genericArg(text, loc[1]-1)
			if !ok {
				continue
			}

			args, _, ok := argList(text, next)
			if !ok {
				continue
			}

			a := parseAttrs(args)
			if a.name == "" || a.table == "" || !a.hasNullable {
				continue
			}

			decl := schema.ColumnDecl{
				Name:     a.name,
				RawType:  strings.TrimSpace(rawType),
				Nullable: a.nullable,
			}

			if !yield(loc[0], typedCall{table: a.table, decl: decl}) {
				return
			}
		}
	}
}
