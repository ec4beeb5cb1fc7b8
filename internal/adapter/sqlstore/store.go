// Package sqlstore keeps seismic events in an embedded SQL database (SQLite or
// DuckDB) and answers predicate queries for the search service.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/query"
)

const table = "earthquakes"

const columns = "id, occurred_at, latitude, longitude, depth, mag, mag_type, place, place_name, distance, direction, place_source, processed_at"

// insertColumns adds the derived place_folded column, which is written but
// never read back.
const insertColumns = columns + ", place_folded"

// BreakerSettings configures the circuit breaker guarding reads.
type BreakerSettings struct {
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// Store implements search.RecordSource and pipeline.BatchLoader.
type Store struct {
	db      *sql.DB
	dialect query.Dialect
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// Open connects to driver ("sqlite" or "duckdb") at dsn. An empty DSN opens
// an in-memory database.
func Open(ctx context.Context, driver, dsn string, bs BreakerSettings, logger *slog.Logger) (*Store, error) {
	dialect, err := query.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}

	if _, ok := dialect.(query.SQLite); ok {
		if err := configureSQLite(ctx, db, dsn); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name(), err)
	}
	return New(db, dialect, bs, logger), nil
}

func configureSQLite(ctx context.Context, db *sql.DB, dsn string) error {
	if dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		// Every connection to an in-memory SQLite database is a new database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return nil
}

// New wraps an open database handle.
func New(db *sql.DB, dialect query.Dialect, bs BreakerSettings, logger *slog.Logger) *Store {
	if bs.Failures == 0 {
		bs.Failures = 5
	}
	s := &Store{db: db, dialect: dialect, logger: logger}
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "record-store",
		Timeout: bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.Failures
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// Dialect returns the SQL dialect of the underlying database.
func (s *Store) Dialect() query.Dialect { return s.dialect }

// Migrate creates the events table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Query returns the events matching p ordered by time then ID. A positive
// limit caps the number of rows.
func (s *Store) Query(ctx context.Context, p query.Predicate, limit int) ([]domain.SeismicEvent, error) {
	where, args := p.Where(s.dialect)
	q := "SELECT " + columns + " FROM " + table + where + " ORDER BY occurred_at, id"
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}

	out, err := s.breaker.Execute(func() (any, error) {
		return s.queryEvents(ctx, q, args)
	})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return out.([]domain.SeismicEvent), nil
}

func (s *Store) queryEvents(ctx context.Context, q string, args []any) ([]domain.SeismicEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SeismicEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of events matching p.
func (s *Store) Count(ctx context.Context, p query.Predicate) (int64, error) {
	where, args := p.Where(s.dialect)
	q := "SELECT count(*) FROM " + table + where

	out, err := s.breaker.Execute(func() (any, error) {
		var n int64
		err := s.db.QueryRowContext(ctx, q, args...).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return out.(int64), nil
}

// LoadBatch inserts events in one transaction. Events whose ID is already
// stored are ignored, so redelivered messages are harmless.
func (s *Store) LoadBatch(ctx context.Context, events []domain.SeismicEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO "+table+" ("+insertColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		if _, err := stmt.ExecContext(ctx, s.insertArgs(events[i])...); err != nil {
			return fmt.Errorf("insert event %s: %w", events[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// CheckReadiness reports whether the database answers.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if s.breaker.State() == gobreaker.StateOpen {
		return errors.New("record store circuit breaker is open")
	}
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) insertArgs(e domain.SeismicEvent) []any {
	var lat, lon sql.NullFloat64
	if e.Geo != nil {
		lat = sql.NullFloat64{Float64: e.Geo.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: e.Geo.Lon, Valid: true}
	}
	var processedAt any
	if !e.ProcessedAt.IsZero() {
		processedAt = s.dialect.BindTime(e.ProcessedAt)
	}
	return []any{
		e.ID,
		s.dialect.BindTime(e.Time),
		lat,
		lon,
		nullFloat(e.Depth),
		e.Magnitude,
		nullString(e.MagType),
		e.Place,
		nullString(e.Location.Name),
		nullFloat(e.Location.Distance),
		nullStringPtr(e.Location.Direction),
		nullString(e.PlaceSource),
		processedAt,
		domain.FoldPlace(e.Place),
	}
}

func scanEvent(rows *sql.Rows) (domain.SeismicEvent, error) {
	var (
		e                         domain.SeismicEvent
		at, processedAt           any
		lat, lon, depth, distance sql.NullFloat64
		magType, place, name      sql.NullString
		direction, placeSource    sql.NullString
	)
	if err := rows.Scan(&e.ID, &at, &lat, &lon, &depth, &e.Magnitude, &magType, &place,
		&name, &distance, &direction, &placeSource, &processedAt); err != nil {
		return e, fmt.Errorf("scan event: %w", err)
	}

	var err error
	if e.Time, err = toTime(at); err != nil {
		return e, fmt.Errorf("scan event %s: time: %w", e.ID, err)
	}
	if e.ProcessedAt, err = toTime(processedAt); err != nil {
		return e, fmt.Errorf("scan event %s: processed_at: %w", e.ID, err)
	}
	if lat.Valid && lon.Valid {
		e.Geo = &domain.Geo{Lat: lat.Float64, Lon: lon.Float64}
	}
	if depth.Valid {
		e.Depth = &depth.Float64
	}
	if distance.Valid {
		e.Location.Distance = &distance.Float64
	}
	if direction.Valid {
		e.Location.Direction = &direction.String
	}
	e.MagType = magType.String
	e.Place = place.String
	e.Location.Name = name.String
	e.PlaceSource = placeSource.String
	return e, nil
}

// toTime converts a stored time column: unix milliseconds for SQLite,
// TIMESTAMP for DuckDB.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case time.Time:
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
