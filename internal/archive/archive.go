// Package archive keeps daily RWU estimates in a local SQLite file so the
// services can answer history queries without the time-series database.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
)

// Store is a SQLite table of day estimates keyed by field, probe and day.
type Store struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS day_estimates (
	field_id      TEXT NOT NULL,
	probe_id      TEXT NOT NULL,
	day           TEXT NOT NULL,
	day_unix      INTEGER NOT NULL,
	rwu           REAL,
	rwu_nonight   REAL,
	night_slope   REAL,
	day_slope     REAL,
	nse           REAL,
	step_control  INTEGER NOT NULL,
	step_detected INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	night_start   TEXT,
	day_start     TEXT,
	next_night    TEXT,
	PRIMARY KEY (field_id, probe_id, day_unix)
)`

// Open creates or opens the archive at path; ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create day_estimates table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func value(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func stamp(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func parseStamp(s sql.NullString) (time.Time, error) {
	if !s.Valid {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Save inserts or replaces the estimates of a probe.
func (s *Store) Save(ctx context.Context, fieldID, probeID string, days ...rootwater.DayEstimate) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO day_estimates
		(field_id, probe_id, day, day_unix, rwu, rwu_nonight, night_slope, day_slope, nse,
		 step_control, step_detected, skipped, night_start, day_start, next_night)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (field_id, probe_id, day_unix) DO UPDATE SET
		 day = excluded.day, rwu = excluded.rwu, rwu_nonight = excluded.rwu_nonight,
		 night_slope = excluded.night_slope, day_slope = excluded.day_slope, nse = excluded.nse,
		 step_control = excluded.step_control, step_detected = excluded.step_detected,
		 skipped = excluded.skipped, night_start = excluded.night_start,
		 day_start = excluded.day_start, next_night = excluded.next_night`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, d := range days {
		if _, err := stmt.ExecContext(ctx, fieldID, probeID, d.Day.Format(time.RFC3339), d.Day.Unix(),
			nullable(d.RWU), nullable(d.RWUNoNight), nullable(d.NightSlope), nullable(d.DaySlope), nullable(d.NSE),
			d.StepControl, boolInt(d.StepDetected), boolInt(d.Skipped),
			stamp(d.NightStart), stamp(d.DayStart), stamp(d.NextNight)); err != nil {
			return fmt.Errorf("upsert %s/%s %s: %w", fieldID, probeID, d.Day.Format("2006-01-02"), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns the estimates of a probe with from <= day < to, oldest first.
// A zero to means no upper bound.
func (s *Store) List(ctx context.Context, fieldID, probeID string, from, to time.Time) ([]rootwater.DayEstimate, error) {
	upper := int64(math.MaxInt64)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT day, rwu, rwu_nonight, night_slope, day_slope, nse,
		step_control, step_detected, skipped, night_start, day_start, next_night
		FROM day_estimates
		WHERE field_id = ? AND probe_id = ? AND day_unix >= ? AND day_unix < ?
		ORDER BY day_unix`, fieldID, probeID, from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("select day_estimates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rootwater.DayEstimate
	for rows.Next() {
		var (
			day                               string
			rwu, nonight, nslope, dslope, nse sql.NullFloat64
			code, detected, skipped           int
			nightStart, dayStart, nextNight   sql.NullString
		)
		if err := rows.Scan(&day, &rwu, &nonight, &nslope, &dslope, &nse,
			&code, &detected, &skipped, &nightStart, &dayStart, &nextNight); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		d := rootwater.DayEstimate{
			RWU: value(rwu), RWUNoNight: value(nonight),
			NightSlope: value(nslope), DaySlope: value(dslope), NSE: value(nse),
			StepControl: code, StepDetected: detected == 1, Skipped: skipped == 1,
		}
		if d.Day, err = time.Parse(time.RFC3339, day); err != nil {
			return nil, fmt.Errorf("parse day: %w", err)
		}
		if d.NightStart, err = parseStamp(nightStart); err != nil {
			return nil, err
		}
		if d.DayStart, err = parseStamp(dayStart); err != nil {
			return nil, err
		}
		if d.NextNight, err = parseStamp(nextNight); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
