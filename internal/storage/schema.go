package storage

import (
	"fmt"
	"strings"
)

// Table names.
const (
	WorksTable    = "works"
	ChaptersTable = "chapters"
)

// Column is one column of a table, typed per dialect.
type Column struct {
	Name     string
	Type     map[string]string // dialect -> SQL type
	Nullable bool
}

// TableSpec describes a table for CreateTableSQL.
type TableSpec struct {
	Name       string
	PrimaryKey string
	Columns    []Column
	Unique     [][]string
	References map[string]string // column -> "table(column)"
}

func typ(sqlite, postgres, mssql string) map[string]string {
	return map[string]string{"sqlite": sqlite, "postgres": postgres, "mssql": mssql}
}

// Tables is the archive schema, in creation order.
var Tables = []TableSpec{
	{
		Name:       WorksTable,
		PrimaryKey: "id",
		Columns: []Column{
			{Name: "id", Type: typ("TEXT", "UUID", "NVARCHAR(36)")},
			{Name: "url", Type: typ("TEXT", "TEXT", "NVARCHAR(450)")},
			{Name: "title", Type: typ("TEXT", "TEXT", "NVARCHAR(MAX)")},
			{Name: "author", Type: typ("TEXT", "TEXT", "NVARCHAR(MAX)")},
			{Name: "description", Type: typ("TEXT", "TEXT", "NVARCHAR(MAX)"), Nullable: true},
			{Name: "source", Type: typ("TEXT", "TEXT", "NVARCHAR(16)")},
			{Name: "fetched_at", Type: typ("TEXT", "TIMESTAMPTZ", "DATETIMEOFFSET")},
		},
		Unique: [][]string{{"url"}},
	},
	{
		Name:       ChaptersTable,
		PrimaryKey: "id",
		Columns: []Column{
			{Name: "id", Type: typ("TEXT", "UUID", "NVARCHAR(36)")},
			{Name: "work_id", Type: typ("TEXT", "UUID", "NVARCHAR(36)")},
			{Name: "seq", Type: typ("INTEGER", "INTEGER", "INT")},
			{Name: "episode", Type: typ("INTEGER", "INTEGER", "INT")},
			{Name: "url", Type: typ("TEXT", "TEXT", "NVARCHAR(450)")},
			{Name: "title", Type: typ("TEXT", "TEXT", "NVARCHAR(MAX)")},
			{Name: "updated", Type: typ("TEXT", "TEXT", "NVARCHAR(64)"), Nullable: true},
			{Name: "body", Type: typ("TEXT", "TEXT", "NVARCHAR(MAX)")},
			{Name: "body_hash", Type: typ("TEXT", "CHAR(64)", "CHAR(64)")},
			{Name: "fetched_at", Type: typ("TEXT", "TIMESTAMPTZ", "DATETIMEOFFSET")},
		},
		Unique:     [][]string{{"work_id", "url"}},
		References: map[string]string{"work_id": WorksTable + "(id)"},
	},
}

// CreateTableSQL renders the CREATE TABLE statement of t for dialect.
// sqlite and postgres get IF NOT EXISTS; mssql is wrapped in an
// OBJECT_ID guard.
func CreateTableSQL(dialect string, t TableSpec) (string, error) {
	var cols []string
	for _, c := range t.Columns {
		ty, ok := c.Type[dialect]
		if !ok {
			return "", fmt.Errorf("storage: no %s type for %s.%s", dialect, t.Name, c.Name)
		}
		def := c.Name + " " + ty
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.Name == t.PrimaryKey {
			def += " PRIMARY KEY"
		}
		if ref, ok := t.References[c.Name]; ok {
			def += " REFERENCES " + ref
		}
		cols = append(cols, def)
	}
	for _, u := range t.Unique {
		cols = append(cols, "UNIQUE ("+strings.Join(u, ", ")+")")
	}
	body := "(\n  " + strings.Join(cols, ",\n  ") + "\n)"

	switch dialect {
	case "sqlite", "postgres":
		return "CREATE TABLE IF NOT EXISTS " + t.Name + " " + body, nil
	case "mssql":
		return fmt.Sprintf("IF OBJECT_ID(N'dbo.%s', N'U') IS NULL CREATE TABLE dbo.%s %s", t.Name, t.Name, body), nil
	default:
		return "", fmt.Errorf("storage: unknown dialect %q", dialect)
	}
}
