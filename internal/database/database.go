// Package database opens the connection pool for the database users ask questions about.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const duckDBPrefix = "duckdb:"

const (
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"
)

type Config struct {
	URL             string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Target is the resolved driver, data source and namespace for a connection URL.
type Target struct {
	Driver    string
	DSN       string
	Namespace string
	Dialect   string
}

// Resolve maps "duckdb:<path>" to the DuckDB driver (an empty path is in-memory) and anything else to pgx.
// An empty schema falls back to the driver's default namespace.
func Resolve(url, schema string) (Target, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Target{}, fmt.Errorf("database url is required")
	}

	var target Target
	if strings.HasPrefix(url, duckDBPrefix) {
		target = Target{
			Driver:    DriverDuckDB,
			DSN:       strings.TrimPrefix(url, duckDBPrefix),
			Namespace: "main",
			Dialect:   "DuckDB",
		}
	} else {
		target = Target{
			Driver:    DriverPostgres,
			DSN:       url,
			Namespace: "public",
			Dialect:   "PostgreSQL",
		}
	}
	if schema = strings.TrimSpace(schema); schema != "" {
		target.Namespace = schema
	}
	return target, nil
}

func Open(ctx context.Context, cfg Config) (*sql.DB, Target, error) {
	target, err := Resolve(cfg.URL, cfg.Schema)
	if err != nil {
		return nil, Target{}, err
	}

	db, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, Target{}, fmt.Errorf("open %s database: %w", target.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Target{}, fmt.Errorf("ping %s database: %w", target.Driver, err)
	}

	return db, target, nil
}
