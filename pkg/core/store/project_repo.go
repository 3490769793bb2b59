package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"lbo_workbench/pkg/core/binder"
)

// Project is a stored deal workspace: metadata plus the full document
// tree the binder consumes.
type Project struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      binder.Document `json:"data"`
}

// ProjectSummary is the list-view slice of a project.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectRepository is the storage boundary for project documents.
// Handlers depend on this interface so tests can swap in the
// in-memory implementation.
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	ListByUser(ctx context.Context, userID string) ([]*ProjectSummary, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id string) error
}

// ProjectRepo persists projects in Postgres with the document as a
// JSONB blob.
//
// Schema assumption (managed by migrations elsewhere):
//
//	CREATE TABLE IF NOT EXISTS projects (
//	  id TEXT PRIMARY KEY,
//	  user_id TEXT NOT NULL,
//	  name TEXT NOT NULL,
//	  data JSONB NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	);
type ProjectRepo struct{}

// NewProjectRepo creates a new repository instance.
func NewProjectRepo() *ProjectRepo {
	return &ProjectRepo{}
}

func (r *ProjectRepo) Create(ctx context.Context, p *Project) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	jsonData, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal project data: %w", err)
	}

	query := `
		INSERT INTO projects (id, user_id, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err = pool.Exec(ctx, query, p.ID, p.UserID, p.Name, jsonData, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepo) Get(ctx context.Context, id string) (*Project, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `SELECT id, user_id, name, data, created_at, updated_at FROM projects WHERE id = $1`

	p := &Project{}
	var jsonData []byte
	err := pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.UserID, &p.Name, &jsonData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("project %s not found", id)
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	if err := json.Unmarshal(jsonData, &p.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project data: %w", err)
	}
	return p, nil
}

func (r *ProjectRepo) ListByUser(ctx context.Context, userID string) ([]*ProjectSummary, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `SELECT id, name, updated_at FROM projects WHERE user_id = $1 ORDER BY updated_at DESC`

	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var summaries []*ProjectSummary
	for rows.Next() {
		s := &ProjectSummary{}
		if err := rows.Scan(&s.ID, &s.Name, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *ProjectRepo) Update(ctx context.Context, p *Project) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	jsonData, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal project data: %w", err)
	}

	query := `UPDATE projects SET name = $2, data = $3, updated_at = $4 WHERE id = $1`
	tag, err := pool.Exec(ctx, query, p.ID, p.Name, jsonData, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s not found", p.ID)
	}
	return nil
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	tag, err := pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}
