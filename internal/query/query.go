// Package query executes generated SQL statements and materialises their rows.
package query

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/talk2db/talk2db/internal/observability"
)

// ErrEmptyStatement is returned for a blank statement before the database is touched.
var ErrEmptyStatement = errors.New("sql statement is empty")

// ExecutionError carries the database's failure. Its message is shown to the user as is.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Row maps result column name to value.
type Row map[string]any

// ResultSet holds every row of a statement. It encodes to JSON as an array of row objects whose keys follow
// the statement's column order.
type ResultSet struct {
	Columns  []string
	Rows     []Row
	Duration time.Duration
}

func (r ResultSet) MarshalJSON() ([]byte, error) {
	columns := uniqueColumns(r.Columns)
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(columns) == 0 {
			encoded, err := json.Marshal(map[string]any(row))
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
			continue
		}
		buf.WriteByte('{')
		for j, column := range columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(column)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(row[column])
			if err != nil {
				// Values the driver hands back that JSON cannot carry are sent as text.
				value, err = json.Marshal(fmt.Sprint(row[column]))
				if err != nil {
					return nil, err
				}
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{logger: logger}
}

// Execute runs statement verbatim and reads all of its rows. Nothing is rewritten or limited.
func (e *Executor) Execute(ctx context.Context, q Queryer, statement string) (ResultSet, error) {
	if strings.TrimSpace(statement) == "" {
		return ResultSet{}, ErrEmptyStatement
	}

	start := time.Now()
	result, err := execute(ctx, q, statement)
	elapsed := time.Since(start)
	observability.ObserveQueryExecution(err != nil, elapsed)
	if err != nil {
		e.logger.WarnContext(ctx, "query execution failed",
			observability.TraceAttr(ctx),
			slog.String("error", err.Error()),
			slog.String("duration", elapsed.String()),
		)
		return ResultSet{}, &ExecutionError{Err: err}
	}
	result.Duration = elapsed
	e.logger.DebugContext(ctx, "query executed",
		observability.TraceAttr(ctx),
		slog.Int("rows", len(result.Rows)),
		slog.String("duration", elapsed.String()),
	)
	return result, nil
}

func execute(ctx context.Context, q Queryer, statement string) (ResultSet, error) {
	rows, err := q.QueryContext(ctx, statement)
	if err != nil {
		return ResultSet{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return ResultSet{}, err
	}

	resultRows := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return ResultSet{}, err
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, err
	}
	return ResultSet{Columns: columns, Rows: resultRows}, nil
}

// normalizeValue turns driver-specific values into JSON scalars. Decimals keep their exact digits.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return normalizeBytes(typed)
	case float64:
		return normalizeFloat(typed, 64)
	case float32:
		return normalizeFloat(float64(typed), 32)
	case duckdb.Decimal:
		if typed.Value == nil {
			return nil
		}
		return json.Number(typed.String())
	case *big.Int:
		if typed == nil {
			return nil
		}
		return json.Number(typed.String())
	case duckdb.UUID:
		return uuid.UUID(typed).String()
	case *duckdb.UUID:
		if typed == nil {
			return nil
		}
		return uuid.UUID(*typed).String()
	case duckdb.Interval:
		return formatInterval(typed)
	case duckdb.Union:
		return normalizeValue(typed.Value)
	case duckdb.Map:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(normalizeValue(key))] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return typed
	}
}

func normalizeBytes(value []byte) any {
	if len(value) == 16 && !utf8.Valid(value) {
		return uuid.UUID(value).String()
	}
	if utf8.Valid(value) {
		return string(value)
	}
	return value
}

func normalizeFloat(value float64, bitSize int) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return strconv.FormatFloat(value, 'g', -1, bitSize)
	}
	if bitSize == 32 {
		return float32(value)
	}
	return value
}

func formatInterval(interval duckdb.Interval) string {
	return fmt.Sprintf("%d months %d days %s", interval.Months, interval.Days, time.Duration(interval.Micros)*time.Microsecond)
}

func uniqueColumns(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		if seen[column] {
			continue
		}
		seen[column] = true
		out = append(out, column)
	}
	return out
}
