package testutil

import (
	"fmt"
	"strings"
)

// Col describes a column inside a CreateTable fixture
type Col struct {
	Name     string
	Type     string
	Nullable bool
}

// MigrationOption configures a generated migration class
type MigrationOption func(*migrationClass)

type migrationClass struct {
	namespace string
	name      string
	up        []string
	down      []string
}

// WithNamespace sets the namespace of the generated class
func WithNamespace(ns string) MigrationOption {
	return func(m *migrationClass) {
		m.namespace = ns
	}
}

// WithUp appends statements to the Up method
func WithUp(stmts ...string) MigrationOption {
	return func(m *migrationClass) {
		m.up = append(m.up, stmts...)
	}
}

// WithDown appends statements to the Down method
func WithDown(stmts ...string) MigrationOption {
	return func(m *migrationClass) {
		m.down = append(m.down, stmts...)
	}
}

// MigrationSource renders a migration class in the shape the EF tooling emits
func MigrationSource(className string, opts ...MigrationOption) string {
	m := &migrationClass{
		namespace: "Shop.Data.Migrations." + TestContextShort,
		name:      className,
	}

	for _, opt := range opts {
		opt(m)
	}

	var b strings.Builder

	b.WriteString("using System;\nusing Microsoft.EntityFrameworkCore.Migrations;\n\n#nullable disable\n\n")
	fmt.Fprintf(&b, "namespace %s\n{\n", m.namespace)
	fmt.Fprintf(&b, "    public partial class %s : Migration\n    {\n", m.name)
	writeMethod(&b, "Up", m.up)
	b.WriteString("\n")
	writeMethod(&b, "Down", m.down)
	b.WriteString("    }\n}\n")

	return b.String()
}

func writeMethod(b *strings.Builder, name string, stmts []string) {
	fmt.Fprintf(b, "        protected override void %s(MigrationBuilder migrationBuilder)\n        {\n", name)

	for _, s := range stmts {
		fmt.Fprintf(b, "            %s\n\n", s)
	}

	b.WriteString("        }\n")
}

// CreateTableStmt renders a migrationBuilder.CreateTable call
func CreateTableStmt(table string, cols ...Col) string {
	var b strings.Builder

	fmt.Fprintf(&b, "migrationBuilder.CreateTable(\n                name: %q,\n                columns: table => new\n                {\n", table)

	for i, c := range cols {
		sep := ","
		if i == len(cols)-1 {
			sep = ""
		}

		fmt.Fprintf(&b, "                    %s = table.Column<%s>(nullable: %t)%s\n", c.Name, c.Type, c.Nullable, sep)
	}

	fmt.Fprintf(&b, "                },\n                constraints: table =>\n                {\n")
	fmt.Fprintf(&b, "                    table.PrimaryKey(\"PK_%s\", x => x.%s);\n                });", table, firstName(cols))

	return b.String()
}

// AddColumnStmt renders a migrationBuilder.AddColumn<T> call
func AddColumnStmt(table string, c Col) string {
	return fmt.Sprintf("migrationBuilder.AddColumn<%s>(\n                name: %q,\n                table: %q,\n                nullable: %t);",
		c.Type, c.Name, table, c.Nullable)
}

// AlterColumnStmt renders a migrationBuilder.AlterColumn<T> call
func AlterColumnStmt(table string, c Col) string {
	return fmt.Sprintf("migrationBuilder.AlterColumn<%s>(\n                name: %q,\n                table: %q,\n                nullable: %t,\n                oldClrType: typeof(object));",
		c.Type, c.Name, table, c.Nullable)
}

// DropColumnStmt renders a migrationBuilder.DropColumn call
func DropColumnStmt(table, column string) string {
	return fmt.Sprintf("migrationBuilder.DropColumn(\n                name: %q,\n                table: %q);", column, table)
}

func firstName(cols []Col) string {
	if len(cols) == 0 {
		return "Id"
	}

	return cols[0].Name
}
