package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/hearth/internal/model"
)

// RecorderRun is one continuous execution lifetime of the recorder process.
// Its start bounds what "since the beginning of recorded history" can mean:
// point-in-time reconstruction does not scan before the run start, because
// rows older than that are not guaranteed to exist in the indexed form the
// current schema expects.
type RecorderRun struct {
	RunID           int64
	RunUID          string
	Start           time.Time
	End             time.Time
	ClosedIncorrect bool
}

// StartRun opens a new recorder run. Any run left open by a crash is closed
// with closed_incorrect set so later maintenance can distrust its tail.
func (s *Store) StartRun(ctx context.Context, start time.Time) (RecorderRun, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recorder_runs
		SET end = ?, closed_incorrect = 1
		WHERE end IS NULL
	`, model.TS(start))
	if err != nil {
		return RecorderRun{}, fmt.Errorf("close dangling runs: %w", err)
	}

	run := RecorderRun{
		RunUID: uuid.Must(uuid.NewV7()).String(),
		Start:  start.UTC(),
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO recorder_runs (run_uid, start, end, closed_incorrect, created)
		VALUES (?, ?, NULL, 0, ?)
	`, run.RunUID, model.TS(run.Start), model.TS(time.Now()))
	if err != nil {
		return RecorderRun{}, fmt.Errorf("start run: %w", err)
	}
	run.RunID, err = result.LastInsertId()
	if err != nil {
		return RecorderRun{}, fmt.Errorf("start run: last insert id: %w", err)
	}
	return run, nil
}

// EndRun closes a run cleanly.
func (s *Store) EndRun(ctx context.Context, runID int64, end time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recorder_runs SET end = ? WHERE run_id = ? AND end IS NULL
	`, model.TS(end), runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// CurrentRun returns the open run, if any. A store that has never recorded
// has no run; callers treat that as "no lower bound".
func (s *Store) CurrentRun(ctx context.Context) (RecorderRun, bool, error) {
	var run RecorderRun
	var start, end sql.NullFloat64
	var uid sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, run_uid, start, end, closed_incorrect
		FROM recorder_runs
		WHERE end IS NULL
		ORDER BY run_id DESC
		LIMIT 1
	`).Scan(&run.RunID, &uid, &start, &end, &run.ClosedIncorrect)
	if err == sql.ErrNoRows {
		return RecorderRun{}, false, nil
	}
	if err != nil {
		return RecorderRun{}, false, fmt.Errorf("current run: %w", err)
	}
	run.RunUID = uid.String
	if start.Valid {
		run.Start = model.FromTS(start.Float64)
	}
	if end.Valid {
		run.End = model.FromTS(end.Float64)
	}
	return run, true, nil
}
