// Package postgres implements the table writer on a PostgreSQL warehouse.
// All five tables are loaded full-refresh inside a single transaction, so a
// failed run leaves the previous tables untouched and readers never observe
// a partial set.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietbarn/songplay-etl/internal/domain"
)

// Writer implements pipeline.TableWriter on pgx.
type Writer struct {
	pool   *pgxpool.Pool
	txn    pgx.Tx
	logger *slog.Logger
}

// New creates a connection pool and verifies connectivity.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Writer, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Writer{pool: pool, logger: logger}, nil
}

// WriteTable creates the table if absent, truncates it, and bulk-loads the
// rows, all inside the run's transaction.
func (w *Writer) WriteTable(ctx context.Context, table domain.Table) error {
	schema, ok := schemas[table.Name]
	if !ok {
		return fmt.Errorf("unknown table %q", table.Name)
	}

	txn, err := w.tx(ctx)
	if err != nil {
		return err
	}

	if _, err := txn.Exec(ctx, schema.ddl); err != nil {
		return fmt.Errorf("create %s: %w", table.Name, err)
	}
	if _, err := txn.Exec(ctx, "TRUNCATE "+table.Name); err != nil {
		return fmt.Errorf("truncate %s: %w", table.Name, err)
	}

	values := make([][]any, len(table.Rows))
	for i, row := range table.Rows {
		values[i] = schema.values(row)
	}

	if _, err := txn.CopyFrom(ctx, pgx.Identifier{table.Name}, schema.columns, pgx.CopyFromRows(values)); err != nil {
		return fmt.Errorf("load %s: %w", table.Name, err)
	}

	// Partition keys have no physical meaning in Postgres; index them instead.
	for _, key := range table.PartitionKeys {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)", table.Name, key, table.Name, key)
		if _, err := txn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("index %s(%s): %w", table.Name, key, err)
		}
	}

	w.logger.Debug("table loaded", "table", table.Name, "rows", len(table.Rows))
	return nil
}

// Commit publishes the run's tables.
func (w *Writer) Commit(ctx context.Context) error {
	if w.txn == nil {
		return errors.New("nothing staged")
	}
	err := w.txn.Commit(ctx)
	w.txn = nil
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close rolls back any uncommitted transaction and releases the pool.
func (w *Writer) Close() {
	if w.txn != nil {
		_ = w.txn.Rollback(context.Background())
		w.txn = nil
	}
	w.pool.Close()
}

func (w *Writer) tx(ctx context.Context) (pgx.Tx, error) {
	if w.txn != nil {
		return w.txn, nil
	}
	txn, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	w.txn = txn
	return w.txn, nil
}

type tableSchema struct {
	ddl     string
	columns []string
	values  func(domain.Row) []any
}

var schemas = map[string]tableSchema{
	domain.TableSongs: {
		ddl: `CREATE TABLE IF NOT EXISTS songs (
			song_id   TEXT PRIMARY KEY,
			title     TEXT NOT NULL,
			artist_id TEXT NOT NULL,
			year      INT NOT NULL,
			duration  DOUBLE PRECISION NOT NULL
		)`,
		columns: []string{"song_id", "title", "artist_id", "year", "duration"},
		values: func(r domain.Row) []any {
			row := r.(domain.SongRow)
			return []any{row.SongID, row.Title, row.ArtistID, row.Year, row.Duration}
		},
	},
	domain.TableArtists: {
		ddl: `CREATE TABLE IF NOT EXISTS artists (
			artist_id TEXT PRIMARY KEY,
			name      TEXT NOT NULL,
			location  TEXT NOT NULL,
			latitude  DOUBLE PRECISION,
			longitude DOUBLE PRECISION
		)`,
		columns: []string{"artist_id", "name", "location", "latitude", "longitude"},
		values: func(r domain.Row) []any {
			row := r.(domain.ArtistRow)
			return []any{row.ArtistID, row.Name, row.Location, row.Latitude, row.Longitude}
		},
	},
	domain.TableUsers: {
		ddl: `CREATE TABLE IF NOT EXISTS users (
			user_id    TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name  TEXT NOT NULL,
			gender     TEXT NOT NULL,
			level      TEXT NOT NULL
		)`,
		columns: []string{"user_id", "first_name", "last_name", "gender", "level"},
		values: func(r domain.Row) []any {
			row := r.(domain.UserRow)
			return []any{row.UserID, row.FirstName, row.LastName, row.Gender, row.Level}
		},
	},
	domain.TableTime: {
		ddl: `CREATE TABLE IF NOT EXISTS time (
			start_time TIMESTAMPTZ PRIMARY KEY,
			hour       INT NOT NULL,
			day        INT NOT NULL,
			week       INT NOT NULL,
			month      INT NOT NULL,
			year       INT NOT NULL,
			weekday    INT NOT NULL
		)`,
		columns: []string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
		values: func(r domain.Row) []any {
			row := r.(domain.TimeRow)
			return []any{time.UnixMilli(row.StartTime).UTC(), row.Hour, row.Day, row.Week, row.Month, row.Year, row.Weekday}
		},
	},
	domain.TableSongplays: {
		ddl: `CREATE TABLE IF NOT EXISTS songplays (
			songplay_id BIGINT PRIMARY KEY,
			start_time  TIMESTAMPTZ NOT NULL,
			user_id     TEXT NOT NULL,
			level       TEXT NOT NULL,
			song_id     TEXT,
			artist_id   TEXT,
			session_id  BIGINT NOT NULL,
			location    TEXT NOT NULL,
			user_agent  TEXT NOT NULL,
			year        INT NOT NULL,
			month       INT NOT NULL
		)`,
		columns: []string{"songplay_id", "start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent", "year", "month"},
		values: func(r domain.Row) []any {
			row := r.(domain.SongplayRow)
			return []any{
				row.SongplayID,
				time.UnixMilli(row.StartTime).UTC(),
				row.UserID,
				row.Level,
				row.SongID,
				row.ArtistID,
				row.SessionID,
				row.Location,
				row.UserAgent,
				row.Year,
				row.Month,
			}
		},
	},
}

// Columns reports the load column list for a table, mostly for tests and
// debugging.
func Columns(table string) []string {
	s, ok := schemas[table]
	if !ok {
		return nil
	}
	return append([]string(nil), s.columns...)
}

// DDL reports the create statement for a table.
func DDL(table string) string {
	s, ok := schemas[table]
	if !ok {
		return ""
	}
	return strings.TrimSpace(s.ddl)
}
