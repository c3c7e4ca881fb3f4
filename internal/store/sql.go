package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/i474232898/track-enrichment/internal/analysis"
	"github.com/i474232898/track-enrichment/internal/track"
)

// Tables names the relational tables written each cycle.
type Tables struct {
	Track   string
	Encoded string
	Classes string
	Report  string
}

type column struct {
	name string
	typ  string
}

var trackColumns = []column{
	{"track_id", "TEXT"},
	{"track_time", "TEXT"},
	{"latitude", "DOUBLE PRECISION"},
	{"longitude", "DOUBLE PRECISION"},
	{"altitude", "DOUBLE PRECISION"},
	{"temperature", "DOUBLE PRECISION"},
	{"region", "TEXT"},
	{"steps", "DOUBLE PRECISION"},
	{"terrain_type", "TEXT"},
	{"key_objects_str", "TEXT"},
}

var encodedColumns = []column{
	{"track_id", "TEXT"},
	{"track_time", "TEXT"},
	{"latitude", "DOUBLE PRECISION"},
	{"longitude", "DOUBLE PRECISION"},
	{"altitude", "DOUBLE PRECISION"},
	{"temperature", "DOUBLE PRECISION"},
	{"region", "BIGINT"},
	{"steps", "DOUBLE PRECISION"},
	{"terrain_type", "BIGINT"},
	{"key_objects_str", "BIGINT"},
	{"season", "BIGINT"},
}

var classColumns = []column{
	{"column_name", "TEXT"},
	{"code", "BIGINT"},
	{"label", "TEXT"},
}

var reportColumns = []column{
	{"cycle_id", "TEXT"},
	{"started_at", "TEXT"},
	{"finished_at", "TEXT"},
	{"result", "TEXT"},
	{"track_id", "TEXT"},
	{"status", "TEXT"},
	{"rows", "BIGINT"},
	{"failures", "TEXT"},
}

// SQLStore writes the enriched tables to SQLite or PostgreSQL. Every write
// replaces the whole table inside one transaction.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	tables   Tables
}

// IsPostgresDSN reports whether dsn addresses PostgreSQL rather than a
// SQLite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenSQL opens the database addressed by dsn.
func OpenSQL(ctx context.Context, dsn string, tables Tables) (*SQLStore, error) {
	postgres := IsPostgresDSN(dsn)
	driver := "sqlite"
	if postgres {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if !postgres {
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	return &SQLStore{db: db, postgres: postgres, tables: tables}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReplaceTracks replaces the track table with rows.
func (s *SQLStore) ReplaceTracks(ctx context.Context, rows []track.Row) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{
			r.TrackID, timeValue(r.Time), r.Lat, r.Lon, floatValue(r.Altitude),
			floatValue(r.Temperature), stringValue(r.Region), r.Steps, r.TerrainType,
			stringValue(r.KeyObjects),
		}
	}
	return s.replace(ctx, s.tables.Track, trackColumns, values)
}

// ReplaceEncoded replaces the encoded table with rows.
func (s *SQLStore) ReplaceEncoded(ctx context.Context, rows []analysis.EncodedRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		var season any
		if r.Season != nil {
			season = int64(*r.Season)
		}
		values[i] = []any{
			r.TrackID, timeValue(r.TrackTime), r.Lat, r.Lon, floatValue(r.Altitude),
			floatValue(r.Temperature), int64(r.Region), r.Steps, int64(r.TerrainType),
			int64(r.KeyObjects), season,
		}
	}
	return s.replace(ctx, s.tables.Encoded, encodedColumns, values)
}

// ReplaceClasses replaces the classes table with the label of every code in
// enc. Code -1 always stands for a missing value and is not stored.
func (s *SQLStore) ReplaceClasses(ctx context.Context, enc analysis.Encoding) error {
	var values [][]any
	for _, c := range []struct {
		name    string
		classes []string
	}{
		{"region", enc.Regions},
		{"terrain_type", enc.TerrainTypes},
		{"key_objects_str", enc.KeyObjects},
	} {
		for code, label := range c.classes {
			values = append(values, []any{c.name, int64(code), label})
		}
	}
	return s.replace(ctx, s.tables.Classes, classColumns, values)
}

// ReplaceReport replaces the report table with one row per track of r.
func (s *SQLStore) ReplaceReport(ctx context.Context, r CycleReport) error {
	values := make([][]any, 0, len(r.Tracks))
	for _, o := range r.Tracks {
		failures, err := json.Marshal(o.Failures)
		if err != nil {
			return err
		}
		values = append(values, []any{
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
			r.Result, o.TrackID, string(o.Status), int64(o.Rows), string(failures),
		})
	}
	return s.replace(ctx, s.tables.Report, reportColumns, values)
}

// Tracks reads rows of the track table, optionally filtered by track id.
// A limit <= 0 returns every row.
func (s *SQLStore) Tracks(ctx context.Context, trackID string, limit int) ([]track.Row, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s`, columnList(trackColumns), quote(s.tables.Track))
	var args []any
	if trackID != "" {
		q += " WHERE track_id = " + s.placeholder(1)
		args = append(args, trackID)
	}
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.tables.Track, err)
	}
	defer rows.Close()

	var out []track.Row
	for rows.Next() {
		var (
			r                   track.Row
			ts, region, objects sql.NullString
			alt, temp           sql.NullFloat64
		)
		if err := rows.Scan(&r.TrackID, &ts, &r.Lat, &r.Lon, &alt, &temp, &region, &r.Steps, &r.TerrainType, &objects); err != nil {
			return nil, err
		}
		if ts.Valid {
			if t, err := time.Parse(time.RFC3339, ts.String); err == nil {
				r.Time = &t
			}
		}
		if alt.Valid {
			r.Altitude = &alt.Float64
		}
		if temp.Valid {
			r.Temperature = &temp.Float64
		}
		if region.Valid {
			r.Region = &region.String
		}
		if objects.Valid {
			r.KeyObjects = &objects.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) replace(ctx context.Context, table string, cols []column, values [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quote(c.name) + " " + c.typ
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = s.placeholder(i + 1)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), columnList(cols), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) placeholder(n int) string {
	if s.postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func columnList(cols []column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quote(c.name)
	}
	return strings.Join(names, ", ")
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func floatValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
