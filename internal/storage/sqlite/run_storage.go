package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// RunStorage implements SQLite storage for crawl runs, including the status
// lifecycle guards.
type RunStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewRunStorage creates a new run storage instance
func NewRunStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{db: db, logger: logger}
}

// CreateRun inserts a QUEUED run. The partial unique index on
// (project_id) WHERE status IN ('QUEUED','RUNNING') enforces the single
// active run invariant; a violation surfaces as ErrRunActive.
func (s *RunStorage) CreateRun(ctx context.Context, run *models.CrawlRun) error {
	if run.ID == "" {
		return errors.New("run ID is required")
	}
	if run.ProjectID == "" {
		return errors.New("run project ID is required")
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	settingsJSON, err := run.SettingsSnapshot.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize settings snapshot: %w", err)
	}
	totalsJSON, err := run.Totals.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize totals: %w", err)
	}

	query := `
		INSERT INTO crawl_runs (id, project_id, status, settings_json, totals_json, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL)
	`
	_, err = s.db.DB().ExecContext(ctx, query,
		run.ID, run.ProjectID, string(run.Status), settingsJSON, totalsJSON, run.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return interfaces.ErrRunActive
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun loads a run by ID
func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.CrawlRun, error) {
	query := `
		SELECT id, project_id, status, settings_json, totals_json, created_at, started_at, finished_at
		FROM crawl_runs WHERE id = ?
	`
	return scanRun(s.db.DB().QueryRowContext(ctx, query, id))
}

// GetRunStatus reads only the status column. The BFS driver polls this for
// cooperative cancellation, so it stays as cheap as possible.
func (s *RunStorage) GetRunStatus(ctx context.Context, id string) (models.RunStatus, error) {
	var status string
	err := s.db.DB().QueryRowContext(ctx, `SELECT status FROM crawl_runs WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", interfaces.ErrRunNotFound
		}
		return "", fmt.Errorf("failed to read run status: %w", err)
	}
	return models.RunStatus(status), nil
}

// TransitionRun applies a guarded status transition inside a transaction.
// Terminal states are sinks: any move out of DONE, FAILED, or CANCELED
// returns ErrInvalidTransition.
func (s *RunStorage) TransitionRun(ctx context.Context, id string, to models.RunStatus) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM crawl_runs WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrRunNotFound
		}
		return fmt.Errorf("failed to read run status: %w", err)
	}

	from := models.RunStatus(current)
	if from == to {
		// Idempotent redelivery lands here (e.g. RUNNING -> RUNNING).
		return tx.Commit()
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", interfaces.ErrInvalidTransition, from, to)
	}

	now := time.Now().Unix()
	switch to {
	case models.RunStatusRunning:
		_, err = tx.ExecContext(ctx,
			`UPDATE crawl_runs SET status = ?, started_at = ? WHERE id = ?`,
			string(to), now, id)
	case models.RunStatusDone, models.RunStatusFailed, models.RunStatusCanceled:
		_, err = tx.ExecContext(ctx,
			`UPDATE crawl_runs SET status = ?, finished_at = ? WHERE id = ?`,
			string(to), now, id)
	default:
		return fmt.Errorf("%w: %s -> %s", interfaces.ErrInvalidTransition, from, to)
	}
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return tx.Commit()
}

// SetRunTotals persists the totals JSON on the run row
func (s *RunStorage) SetRunTotals(ctx context.Context, id string, totals models.CrawlTotals) error {
	totalsJSON, err := totals.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize totals: %w", err)
	}
	result, err := s.db.DB().ExecContext(ctx,
		`UPDATE crawl_runs SET totals_json = ? WHERE id = ?`, totalsJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update run totals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrRunNotFound
	}
	return nil
}

// ListRunsByProject returns the project's runs, newest first
func (s *RunStorage) ListRunsByProject(ctx context.Context, projectID string) ([]*models.CrawlRun, error) {
	query := `
		SELECT id, project_id, status, settings_json, totals_json, created_at, started_at, finished_at
		FROM crawl_runs WHERE project_id = ? ORDER BY created_at DESC, id ASC
	`
	rows, err := s.db.DB().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes the run; pages, links, issues, and templates cascade.
func (s *RunStorage) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM crawl_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrRunNotFound
	}
	return nil
}

func scanRun(row rowScanner) (*models.CrawlRun, error) {
	var (
		run          models.CrawlRun
		status       string
		settingsJSON string
		totalsJSON   string
		createdAt    int64
		startedAt    sql.NullInt64
		finishedAt   sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.ProjectID, &status, &settingsJSON, &totalsJSON,
		&createdAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	settings, err := models.CrawlSettingsFromJSON(settingsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings snapshot: %w", err)
	}
	run.SettingsSnapshot = settings

	totals, err := models.CrawlTotalsFromJSON(totalsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse totals: %w", err)
	}
	run.Totals = totals

	run.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		run.FinishedAt = &t
	}
	return &run, nil
}
