package query

import (
	"fmt"
	"time"
)

// Dialect renders the parts of a predicate that differ between SQL engines.
type Dialect interface {
	// Name is the database/sql driver name.
	Name() string
	// HourOf returns an expression yielding the UTC hour (0-23) of a time column.
	HourOf(column string) string
	// BindTime converts an instant to the value stored in the time column.
	BindTime(t time.Time) any
}

// SQLite stores event times as INTEGER unix milliseconds.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) HourOf(column string) string {
	return "CAST(strftime('%H', " + column + " / 1000, 'unixepoch') AS INTEGER)"
}

func (SQLite) BindTime(t time.Time) any { return t.UTC().UnixMilli() }

// DuckDB stores event times as TIMESTAMP in UTC.
type DuckDB struct{}

func (DuckDB) Name() string { return "duckdb" }

func (DuckDB) HourOf(column string) string { return "hour(" + column + ")" }

func (DuckDB) BindTime(t time.Time) any { return t.UTC() }

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "duckdb":
		return DuckDB{}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}
