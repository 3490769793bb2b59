package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryProjectRepo is a map-backed ProjectRepository. It backs tests
// and lets the API binary run without a database.
type MemoryProjectRepo struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewMemoryProjectRepo creates an empty in-memory repository.
func NewMemoryProjectRepo() *MemoryProjectRepo {
	return &MemoryProjectRepo{projects: make(map[string]*Project)}
}

func (r *MemoryProjectRepo) Create(ctx context.Context, p *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[p.ID]; exists {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryProjectRepo) Get(ctx context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s not found", id)
	}
	return p, nil
}

func (r *MemoryProjectRepo) ListByUser(ctx context.Context, userID string) ([]*ProjectSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var summaries []*ProjectSummary
	for _, p := range r.projects {
		if p.UserID == userID {
			summaries = append(summaries, &ProjectSummary{ID: p.ID, Name: p.Name, UpdatedAt: p.UpdatedAt})
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (r *MemoryProjectRepo) Update(ctx context.Context, p *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return fmt.Errorf("project %s not found", p.ID)
	}
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryProjectRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return fmt.Errorf("project %s not found", id)
	}
	delete(r.projects, id)
	return nil
}
