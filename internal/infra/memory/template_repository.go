package memory

import (
	"context"
	"sort"
	"sync"

	"proficiency-exam-service/internal/domain"
)

// TemplateRepository is an in-memory implementation of app.TemplateRepository.
type TemplateRepository struct {
	mu             sync.RWMutex
	templates      map[string]domain.ExamTemplate
	appliedVersion int64
}

func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{templates: make(map[string]domain.ExamTemplate)}
}

func (r *TemplateRepository) List(_ context.Context) ([]domain.ExamTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ExamTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *TemplateRepository) Get(_ context.Context, id string) (domain.ExamTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return domain.ExamTemplate{}, domain.ErrTemplateNotFound
	}
	return t.Clone(), nil
}

func (r *TemplateRepository) Save(_ context.Context, t domain.ExamTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := t.Clone()
	if existing, ok := r.templates[t.ID]; ok {
		stored.IsPublished = existing.IsPublished
	} else {
		stored.IsPublished = false
	}
	r.templates[t.ID] = stored
	return nil
}

func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return domain.ErrTemplateNotFound
	}
	delete(r.templates, id)
	return nil
}

func (r *TemplateRepository) SyncPublished(_ context.Context, activeID string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version <= r.appliedVersion {
		return nil
	}
	r.appliedVersion = version
	for id, t := range r.templates {
		t.IsPublished = id == activeID
		r.templates[id] = t
	}
	return nil
}
