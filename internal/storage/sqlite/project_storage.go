package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// ProjectStorage implements SQLite storage for projects
type ProjectStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewProjectStorage creates a new project storage instance
func NewProjectStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ProjectStorage {
	return &ProjectStorage{db: db, logger: logger}
}

// SaveProject creates or updates a project
func (s *ProjectStorage) SaveProject(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		return errors.New("project ID is required")
	}

	settingsJSON, err := project.Settings.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	now := time.Now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	var schedule sql.NullString
	if project.Schedule != "" {
		schedule = sql.NullString{String: project.Schedule, Valid: true}
	}

	query := `
		INSERT INTO projects (id, name, start_url, domain, settings_json, schedule, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_url = excluded.start_url,
			domain = excluded.domain,
			settings_json = excluded.settings_json,
			schedule = excluded.schedule,
			updated_at = excluded.updated_at
	`
	_, err = s.db.DB().ExecContext(ctx, query,
		project.ID, project.Name, project.StartURL, project.Domain,
		settingsJSON, schedule, project.CreatedAt.Unix(), project.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// GetProject loads a project by ID
func (s *ProjectStorage) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, name, start_url, domain, settings_json, schedule, created_at, updated_at
		FROM projects WHERE id = ?
	`
	return scanProject(s.db.DB().QueryRowContext(ctx, query, id))
}

// ListProjects returns all projects ordered by creation time
func (s *ProjectStorage) ListProjects(ctx context.Context) ([]*models.Project, error) {
	query := `
		SELECT id, name, start_url, domain, settings_json, schedule, created_at, updated_at
		FROM projects ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project; runs and their child rows cascade.
func (s *ProjectStorage) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrProjectNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		project      models.Project
		settingsJSON string
		schedule     sql.NullString
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(&project.ID, &project.Name, &project.StartURL, &project.Domain,
		&settingsJSON, &schedule, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	settings, err := models.CrawlSettingsFromJSON(settingsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse project settings: %w", err)
	}
	project.Settings = settings
	project.Schedule = schedule.String
	project.CreatedAt = time.Unix(createdAt, 0)
	project.UpdatedAt = time.Unix(updatedAt, 0)
	return &project, nil
}
