// Package export encodes result rows posted back by a client as CSV, JSON or Parquet files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

var (
	ErrNoRows          = errors.New("no data to export")
	ErrNotArray        = errors.New("export data must be an array of objects")
	ErrUnsupportedType = errors.New("unsupported export format")
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts csv, json and parquet in any case. An empty value means csv.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, raw)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv"
	}
}

func (f Format) Filename() string {
	return "query-results." + string(f)
}

// Table is a set of rows with the union of their keys. Columns follow the first row's key order, with keys
// first seen in later rows appended.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// DecodeRows reads a JSON array of objects, keeping key order. Numbers are kept as json.Number.
func DecodeRows(raw []byte) (Table, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, ErrNoRows
		}
		return Table{}, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if tok == nil {
		return Table{}, ErrNoRows
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return Table{}, ErrNotArray
	}

	table := Table{}
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Table{}, fmt.Errorf("%w: %v", ErrNotArray, err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			return Table{}, ErrNotArray
		}
		row := map[string]any{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return Table{}, fmt.Errorf("%w: %v", ErrNotArray, err)
			}
			key, _ := keyTok.(string)
			var value any
			if err := dec.Decode(&value); err != nil {
				return Table{}, fmt.Errorf("%w: %v", ErrNotArray, err)
			}
			if !seen[key] {
				seen[key] = true
				table.Columns = append(table.Columns, key)
			}
			row[key] = value
		}
		if _, err := dec.Token(); err != nil {
			return Table{}, fmt.Errorf("%w: %v", ErrNotArray, err)
		}
		table.Rows = append(table.Rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if len(table.Rows) == 0 || len(table.Columns) == 0 {
		return Table{}, ErrNoRows
	}
	return table, nil
}

func Write(w io.Writer, format Format, table Table) error {
	if len(table.Rows) == 0 || len(table.Columns) == 0 {
		return ErrNoRows
	}
	switch format {
	case FormatCSV:
		return writeCSV(w, table)
	case FormatJSON:
		return writeJSON(w, table)
	case FormatParquet:
		return writeParquet(w, table)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, format)
	}
}

// Encode renders the whole file in memory.
func Encode(format Format, table Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, format, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCSV(w io.Writer, table Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, column := range table.Columns {
			record[i] = cellText(row[column])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, table Table) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range table.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		written := 0
		for _, column := range table.Columns {
			value, ok := row[column]
			if !ok {
				continue
			}
			if written > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(column)
			if err != nil {
				return fmt.Errorf("encode json key: %w", err)
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode json value for %q: %w", column, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(encoded)
			written++
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	_, err := w.Write(buf.Bytes())
	return err
}

// writeParquet stores every column as an optional string so that rows of mixed shapes fit one schema.
func writeParquet(w io.Writer, table Table) error {
	group := parquet.Group{}
	for _, column := range table.Columns {
		group[column] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("query_results", group)
	fields := schema.Fields()

	rows := make([]parquet.Row, 0, len(table.Rows))
	for _, record := range table.Rows {
		row := make(parquet.Row, 0, len(fields))
		for i, field := range fields {
			value, ok := record[field.Name()]
			if !ok || value == nil {
				row = append(row, parquet.NullValue().Level(0, 0, i))
				continue
			}
			row = append(row, parquet.ByteArrayValue([]byte(cellText(value))).Level(0, 1, i))
		}
		rows = append(rows, row)
	}

	writer := parquet.NewGenericWriter[any](w, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func cellText(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}
