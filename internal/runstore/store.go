// Package runstore persists run events in PostgreSQL so pipeline results can
// be compared across runs.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/events"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/postgres"
	"github.com/goccy/go-json"
	"github.com/lib/pq"
)

var ErrNotFound = errors.New("run not found")

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS xmc_runs (
		id          UUID PRIMARY KEY,
		stage       TEXT NOT NULL,
		status      TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		exit_code   INT NOT NULL,
		data        JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS xmc_runs_stage_started_idx ON xmc_runs (stage, started_at DESC)`,
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Stages []string
	Status events.Status
	Since  time.Time
	Limit  int
}

// StageSummary aggregates the stored runs of one stage.
type StageSummary struct {
	Stage         string    `json:"stage"`
	Runs          int64     `json:"runs"`
	Failures      int64     `json:"failures"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
	LastRunAt     time.Time `json:"last_run_at"`
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "runstore"),
	}
}

// Migrate creates the runs table and its index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying runstore schema: %w", err)
			}
		}
		return nil
	})
}

// Save inserts ev. Redelivered events are ignored; the returned flag tells
// whether a row was written.
func (s *Store) Save(ctx context.Context, ev events.RunEvent) (bool, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshaling run %s: %w", ev.ID, err)
	}
	res, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO xmc_runs (id, stage, status, started_at, finished_at, duration_ms, exit_code, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Stage, string(ev.Status), ev.StartedAt, ev.FinishedAt, ev.DurationMs, ev.ExitCode, data,
	)
	if err != nil {
		return false, fmt.Errorf("saving run %s: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("saving run %s: %w", ev.ID, err)
	}
	if n == 0 {
		s.logger.Debug("duplicate run ignored", "run_id", ev.ID)
		return false, nil
	}
	s.logger.Info("run saved", "run_id", ev.ID, "stage", ev.Stage, "status", ev.Status)
	return true, nil
}

func (s *Store) Get(ctx context.Context, id string) (*events.RunEvent, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx, `SELECT data FROM xmc_runs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	var ev events.RunEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &ev, nil
}

// List returns matching runs, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]events.RunEvent, error) {
	query, args := listQuery(f)
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]events.RunEvent, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		var ev events.RunEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("skipping corrupt run row", "error", err)
			continue
		}
		runs = append(runs, ev)
	}
	return runs, rows.Err()
}

func listQuery(f Filter) (string, []any) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query := `SELECT data FROM xmc_runs WHERE TRUE`
	var args []any
	if len(f.Stages) > 0 {
		args = append(args, pq.Array(f.Stages))
		query += fmt.Sprintf(` AND stage = ANY($%d)`, len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(` AND started_at >= $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))
	return query, args
}

// Summary aggregates run counts and mean durations per stage.
func (s *Store) Summary(ctx context.Context) ([]StageSummary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT stage,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COALESCE(AVG(duration_ms), 0),
		        MAX(started_at)
		   FROM xmc_runs
		  GROUP BY stage
		  ORDER BY stage`,
		string(events.StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("summarising runs: %w", err)
	}
	defer rows.Close()

	out := make([]StageSummary, 0)
	for rows.Next() {
		var sum StageSummary
		if err := rows.Scan(&sum.Stage, &sum.Runs, &sum.Failures, &sum.AvgDurationMs, &sum.LastRunAt); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
