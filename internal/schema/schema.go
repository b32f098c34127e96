// Package schema reads table and column metadata for a single namespace of the target database.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

const (
	tablesQuery = `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name`

	columnsQueryTemplate = `SELECT column_name, data_type FROM information_schema.columns ` +
		`WHERE table_schema = $1 AND table_name = %s ORDER BY ordinal_position`
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Description maps table name to its columns in declaration order.
type Description map[string][]Column

// Tables returns the table names in lexical order.
func (d Description) Tables() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Error reports a failed metadata query.
type Error struct {
	Namespace string
	Table     string
	Err       error
}

func (e *Error) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("describe schema %s table %s: %v", e.Namespace, e.Table, e.Err)
	}
	return fmt.Sprintf("describe schema %s: %v", e.Namespace, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Introspector struct {
	namespace string
}

func NewIntrospector(namespace string) *Introspector {
	return &Introspector{namespace: strings.TrimSpace(namespace)}
}

func (i *Introspector) Namespace() string {
	return i.namespace
}

// Describe lists every table in the namespace and its columns. Nothing is cached.
func (i *Introspector) Describe(ctx context.Context, q Queryer) (Description, error) {
	tables, err := i.listTables(ctx, q)
	if err != nil {
		return nil, &Error{Namespace: i.namespace, Err: err}
	}

	description := make(Description, len(tables))
	for _, table := range tables {
		columns, err := i.listColumns(ctx, q, table)
		if err != nil {
			return nil, &Error{Namespace: i.namespace, Table: table, Err: err}
		}
		description[table] = columns
	}
	return description, nil
}

func (i *Introspector) listTables(ctx context.Context, q Queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx, tablesQuery, i.namespace)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// listColumns interpolates the table name, which always comes from the database's own catalog.
func (i *Introspector) listColumns(ctx context.Context, q Queryer, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(columnsQueryTemplate, quoteLiteral(table)), i.namespace)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	columns := make([]Column, 0)
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
