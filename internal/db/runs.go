package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/radarloop/internal/timeutil"
)

// ErrRunNotFound is returned when a run id has no ledger row.
var ErrRunNotFound = errors.New("run not found")

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one pipeline execution.
type Run struct {
	ID            string
	Site          string
	ScanDate      string
	State         string
	FrameCount    int
	AnimationPath string
	ErrorKind     string
	ErrorMessage  string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// RunFrame is one frame produced by a run.
type RunFrame struct {
	ScanKey        string
	TimestampLocal time.Time
	ImagePath      string
}

// Ledger records runs.
type Ledger struct {
	db    *DB
	clock timeutil.Clock
}

// NewLedger wraps db. A nil clock reads the system time.
func NewLedger(db *DB, clock timeutil.Clock) *Ledger {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Ledger{db: db, clock: clock}
}

// StartRun inserts a new run in state and returns its id.
func (l *Ledger) StartRun(ctx context.Context, site, scanDate, state string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, site, scan_date, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, site, scanDate, state, l.clock.Now().UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// SetState records the state a run has reached.
func (l *Ledger) SetState(ctx context.Context, runID, state string) error {
	return l.update(ctx, `UPDATE runs SET state = ? WHERE run_id = ?`, state, runID)
}

// RecordFrame stores one rendered frame against a run.
func (l *Ledger) RecordFrame(ctx context.Context, runID, scanKey string, timestampLocal time.Time, imagePath string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_frames (run_id, scan_key, timestamp_local, image_path) VALUES (?, ?, ?, ?)`,
		runID, scanKey, timestampLocal.Format(timeLayout), imagePath)
	if err != nil {
		return fmt.Errorf("insert frame %s: %w", scanKey, err)
	}
	return nil
}

// FinishRun closes a run with its final state. errKind and errMsg are empty
// on success.
func (l *Ledger) FinishRun(ctx context.Context, runID, state string, frames int, animationPath, errKind, errMsg string) error {
	return l.update(ctx, `
		UPDATE runs
		SET state = ?, frame_count = ?, animation_path = ?, error_kind = ?, error_message = ?, finished_at = ?
		WHERE run_id = ?`,
		state, frames, animationPath, errKind, errMsg, l.clock.Now().UTC().Format(timeLayout), runID)
}

func (l *Ledger) update(ctx context.Context, query string, args ...interface{}) error {
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Run loads one run by id.
func (l *Ledger) Run(ctx context.Context, runID string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, runColumns+` WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, runColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Frames returns the frames of a run in timestamp order.
func (l *Ledger) Frames(ctx context.Context, runID string) ([]RunFrame, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT scan_key, timestamp_local, image_path
		FROM run_frames WHERE run_id = ?
		ORDER BY timestamp_local, scan_key`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var frames []RunFrame
	for rows.Next() {
		var (
			f  RunFrame
			ts string
		)
		if err := rows.Scan(&f.ScanKey, &ts, &f.ImagePath); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		if f.TimestampLocal, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse frame time %q: %w", ts, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

const runColumns = `
	SELECT run_id, site, scan_date, state, frame_count, animation_path,
	       error_kind, error_message, started_at, finished_at
	FROM runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	err := s.Scan(&r.ID, &r.Site, &r.ScanDate, &r.State, &r.FrameCount, &r.AnimationPath,
		&r.ErrorKind, &r.ErrorMessage, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at %q: %w", finished.String, err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}
