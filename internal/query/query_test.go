package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marcboeker/go-duckdb/v2"
)

func TestExecuteRejectsEmptyStatementWithoutTouchingDatabase(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(nil)
	for _, statement := range []string{"", "   ", "\n\t"} {
		_, err := executor.Execute(context.Background(), db, statement)
		if !errors.Is(err, ErrEmptyStatement) {
			t.Fatalf("Execute(%q) error = %v, want ErrEmptyStatement", statement, err)
		}
	}
	assertSQLMock(t, mock)
}

func TestExecuteMaterialisesRowsByColumnName(t *testing.T) {
	db, mock := newSQLMock(t)
	statement := "SELECT name AS employee, salary FROM employees ORDER BY salary DESC LIMIT 2"
	mock.ExpectQuery(regexp.QuoteMeta(statement)).
		WillReturnRows(sqlmock.NewRows([]string{"employee", "salary"}).
			AddRow([]byte("Ada"), 120000.0).
			AddRow("Grace", 110000.0))

	result, err := NewExecutor(nil).Execute(context.Background(), db, statement)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0]["employee"] != "Ada" {
		t.Fatalf("row[0].employee = %#v, want string", result.Rows[0]["employee"])
	}
	if result.Rows[1]["salary"] != 110000.0 {
		t.Fatalf("row[1].salary = %#v", result.Rows[1]["salary"])
	}
	assertSQLMock(t, mock)
}

func TestExecuteWrapsDatabaseErrorVerbatim(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery("SELEC").WillReturnError(errors.New(`syntax error at or near "SELEC"`))

	_, err := NewExecutor(nil).Execute(context.Background(), db, "SELEC 1")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want ExecutionError", err)
	}
	if err.Error() != `syntax error at or near "SELEC"` {
		t.Fatalf("Error() = %q", err.Error())
	}
	assertSQLMock(t, mock)
}

func TestExecuteAgainstDuckDB(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE employees (name VARCHAR, salary INTEGER, department VARCHAR)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO employees VALUES ('a', 10, 'x'), ('b', 30, 'y'), ('c', 20, 'x')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	result, err := NewExecutor(nil).Execute(ctx, db, `SELECT department AS dept, SUM(salary) AS total FROM employees GROUP BY department ORDER BY total DESC;`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "dept" || result.Columns[1] != "total" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if len(result.Rows) != 2 || result.Rows[0]["dept"] != "x" {
		t.Fatalf("rows = %#v", result.Rows)
	}

	_, err = NewExecutor(nil).Execute(ctx, db, `SELECT missing_column FROM employees`)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Error() == "" {
		t.Fatalf("Execute() error = %v, want ExecutionError", err)
	}
}

func TestExecuteEncodesDuckDBValuesAsScalars(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE employees (name VARCHAR, salary NUMERIC(12, 2), badge UUID, tenure INTERVAL)`,
		`INSERT INTO employees VALUES ('Ada', 150000.50, '550e8400-e29b-41d4-a716-446655440000', INTERVAL 3 DAY)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	result, err := NewExecutor(nil).Execute(ctx, db, `SELECT name, salary, badge, tenure, 'nan'::DOUBLE AS ratio, '-inf'::DOUBLE AS low FROM employees`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"name":"Ada","salary":150000.5,"badge":"550e8400-e29b-41d4-a716-446655440000","tenure":"0 months 3 days 0s","ratio":"NaN","low":"-Inf"}]`
	if string(encoded) != want {
		t.Fatalf("Marshal() = %s, want %s", encoded, want)
	}
}

func TestNormalizeValue(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{name: "decimal", in: duckdb.Decimal{Width: 12, Scale: 2, Value: big.NewInt(-1234505)}, want: `-12345.05`},
		{name: "hugeint", in: new(big.Int).Lsh(big.NewInt(1), 70), want: `1180591620717411303424`},
		{name: "uuid bytes", in: []byte{0x55, 0x0e, 0x84, 0x00, 0xe2, 0x9b, 0x41, 0xd4, 0xa7, 0x16, 0x44, 0x66, 0x55, 0x44, 0x00, 0x00}, want: `"550e8400-e29b-41d4-a716-446655440000"`},
		{name: "text bytes", in: []byte("héllo"), want: `"héllo"`},
		{name: "binary bytes", in: []byte{0xff, 0xfe}, want: `"//4="`},
		{name: "nan", in: math.NaN(), want: `"NaN"`},
		{name: "inf32", in: float32(math.Inf(1)), want: `"+Inf"`},
		{name: "finite", in: 2.5, want: `2.5`},
		{name: "list", in: []any{math.Inf(-1), []byte("a")}, want: `["-Inf","a"]`},
		{name: "map", in: duckdb.Map{int32(1): math.NaN()}, want: `{"1":"NaN"}`},
		{name: "interval", in: duckdb.Interval{Months: 1, Days: 2, Micros: 1500000}, want: `"1 months 2 days 1.5s"`},
	}
	for _, tc := range cases {
		encoded, err := json.Marshal(normalizeValue(tc.in))
		if err != nil {
			t.Fatalf("%s: Marshal() error = %v", tc.name, err)
		}
		if string(encoded) != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, encoded, tc.want)
		}
	}
}

func TestResultSetFallsBackToTextForUnencodableValues(t *testing.T) {
	result := ResultSet{
		Columns: []string{"ratio", "name"},
		Rows:    []Row{{"ratio": math.NaN(), "name": "Ada"}},
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.HasPrefix(string(encoded), `[{"ratio":"NaN","name":"Ada"}`) {
		t.Fatalf("Marshal() = %s", encoded)
	}
}

func TestResultSetMarshalsRowsInColumnOrder(t *testing.T) {
	result := ResultSet{
		Columns: []string{"zeta", "alpha"},
		Rows:    []Row{{"zeta": 1, "alpha": "a"}},
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(encoded) != `[{"zeta":1,"alpha":"a"}]` {
		t.Fatalf("Marshal() = %s", encoded)
	}

	empty, err := json.Marshal(ResultSet{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(empty) != `[]` {
		t.Fatalf("Marshal(empty) = %s", empty)
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
