package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	RunKindStress      = "stress"
	RunKindAttribution = "attribution"

	runListLimitDefault = 50

	// fixed width so the text column sorts chronologically
	runTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

	insertRunSQL = `INSERT INTO run (id, kind, started_at, duration_ms, rows_written, regions_skipped)
		VALUES (:id, :kind, :started_at, :duration_ms, :rows_written, :regions_skipped)
	`

	selectRunsSQL = `SELECT id, kind, started_at, duration_ms, rows_written, regions_skipped
		FROM run
		ORDER BY started_at DESC, id
		LIMIT ?
	`
)

// Run describes one completed computation whose results were saved.
type Run struct {
	ID        string        `json:"id" yaml:"id"`
	Kind      string        `json:"kind" yaml:"kind"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Rows      int           `json:"rows" yaml:"rows"`
	Skipped   int           `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// NewRun starts a run of the given kind with a fresh identifier.
func NewRun(kind string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
}

type runRow struct {
	ID         string `db:"id"`
	Kind       string `db:"kind"`
	StartedAt  string `db:"started_at"`
	DurationMS int64  `db:"duration_ms"`
	Rows       int    `db:"rows_written"`
	Skipped    int    `db:"regions_skipped"`
}

func (r *runRow) toRun() (*Run, error) {
	ts, err := time.Parse(runTimeLayout, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid run start time %q: %w", r.StartedAt, err)
	}
	return &Run{
		ID:        r.ID,
		Kind:      r.Kind,
		StartedAt: ts,
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
		Rows:      r.Rows,
		Skipped:   r.Skipped,
	}, nil
}

func saveRun(ctx context.Context, tx *sqlx.Tx, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Duration == 0 {
		run.Duration = time.Since(run.StartedAt)
	}
	row := &runRow{
		ID:         run.ID,
		Kind:       run.Kind,
		StartedAt:  run.StartedAt.UTC().Format(runTimeLayout),
		DurationMS: run.Duration.Milliseconds(),
		Rows:       run.Rows,
		Skipped:    run.Skipped,
	}
	if _, err := tx.NamedExecContext(ctx, insertRunSQL, row); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRuns returns the most recent runs first.
func GetRuns(ctx context.Context, db *sqlx.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = runListLimitDefault
	}

	var rows []*runRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(selectRunsSQL), limit); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	list := make([]*Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.toRun()
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, nil
}
