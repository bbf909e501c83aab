package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"proficiency-exam-service/internal/domain"
)

// TemplateService is the single mutation path for exam templates. Every write
// recomputes section and template point totals before it reaches the repository.
type TemplateService struct {
	templates   TemplateRepository
	publication *PublicationController
	opts        options

	mu sync.Mutex // serializes read-modify-write cycles on templates
}

func NewTemplateService(templates TemplateRepository, publication *PublicationController, opts ...Option) *TemplateService {
	return &TemplateService{templates: templates, publication: publication, opts: buildOptions(opts)}
}

// List returns every template.
func (s *TemplateService) List(ctx context.Context) ([]domain.ExamTemplate, error) {
	return s.templates.List(ctx)
}

// Get returns a template by id.
func (s *TemplateService) Get(ctx context.Context, id string) (domain.ExamTemplate, error) {
	return s.templates.Get(ctx, id)
}

// Create stores a new draft. Ids, totals and timestamps supplied by the caller are replaced.
func (s *TemplateService) Create(ctx context.Context, draft domain.ExamTemplate) (domain.ExamTemplate, error) {
	t := draft.Clone()
	t.ID = s.opts.newID()
	t.IsPublished = false
	now := s.opts.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.assignIDs(&t)
	t.RecomputeTotals()
	if err := validateTemplate(t, false); err != nil {
		return domain.ExamTemplate{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.templates.Save(ctx, t); err != nil {
		return domain.ExamTemplate{}, err
	}
	s.opts.log.Info("template created", zap.String("template_id", t.ID), zap.Int("total_points", t.TotalPoints))
	return t, nil
}

// Update applies a partial patch.
func (s *TemplateService) Update(ctx context.Context, id string, patch domain.TemplatePatch) (domain.ExamTemplate, error) {
	return s.mutate(ctx, id, func(t *domain.ExamTemplate) error {
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Instructions != nil {
			t.Instructions = *patch.Instructions
		}
		if patch.TimeLimit != nil {
			t.TimeLimit = *patch.TimeLimit
		}
		if patch.Settings != nil {
			t.Settings = *patch.Settings
		}
		if patch.Sections != nil {
			t.Sections = (domain.ExamTemplate{Sections: *patch.Sections}).Clone().Sections
		}
		return nil
	})
}

// AddSection appends a section to a template.
func (s *TemplateService) AddSection(ctx context.Context, templateID string, section domain.Section) (domain.ExamTemplate, error) {
	return s.mutate(ctx, templateID, func(t *domain.ExamTemplate) error {
		t.Sections = append(t.Sections, (domain.ExamTemplate{Sections: []domain.Section{section}}).Clone().Sections[0])
		return nil
	})
}

// DeleteSection removes a section and its questions.
func (s *TemplateService) DeleteSection(ctx context.Context, templateID, sectionID string) (domain.ExamTemplate, error) {
	return s.mutate(ctx, templateID, func(t *domain.ExamTemplate) error {
		i := t.SectionIndex(sectionID)
		if i < 0 {
			return domain.ErrSectionNotFound
		}
		t.Sections = append(t.Sections[:i], t.Sections[i+1:]...)
		return nil
	})
}

// AddQuestion appends a question to a section.
func (s *TemplateService) AddQuestion(ctx context.Context, templateID, sectionID string, q domain.Question) (domain.ExamTemplate, error) {
	return s.mutate(ctx, templateID, func(t *domain.ExamTemplate) error {
		i := t.SectionIndex(sectionID)
		if i < 0 {
			return domain.ErrSectionNotFound
		}
		t.Sections[i].Questions = append(t.Sections[i].Questions, q)
		return nil
	})
}

// UpdateQuestion replaces a question in place, keeping its id.
func (s *TemplateService) UpdateQuestion(ctx context.Context, templateID, questionID string, q domain.Question) (domain.ExamTemplate, error) {
	return s.mutate(ctx, templateID, func(t *domain.ExamTemplate) error {
		si, qi, ok := t.FindQuestion(questionID)
		if !ok {
			return domain.ErrQuestionNotFound
		}
		q.ID = questionID
		t.Sections[si].Questions[qi] = q
		return nil
	})
}

// DeleteQuestion removes a question from whichever section owns it.
func (s *TemplateService) DeleteQuestion(ctx context.Context, templateID, questionID string) (domain.ExamTemplate, error) {
	return s.mutate(ctx, templateID, func(t *domain.ExamTemplate) error {
		si, qi, ok := t.FindQuestion(questionID)
		if !ok {
			return domain.ErrQuestionNotFound
		}
		qs := t.Sections[si].Questions
		t.Sections[si].Questions = append(qs[:qi], qs[qi+1:]...)
		return nil
	})
}

// Delete removes a template. A published template is unpublished first.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	t, err := s.templates.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.IsPublished && s.publication != nil {
		if _, err := s.publication.Unpublish(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.templates.Delete(ctx, id); err != nil {
		return err
	}
	s.opts.log.Info("template deleted", zap.String("template_id", id))
	return nil
}

// mutate is the only read-modify-write path: load, apply, assign ids, recompute, validate, save.
// Edits to the published template must leave it publishable.
func (s *TemplateService) mutate(ctx context.Context, id string, apply func(*domain.ExamTemplate) error) (domain.ExamTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := false
	if s.publication != nil {
		active, release, err := s.publication.holdEdits(ctx, id)
		if err != nil {
			return domain.ExamTemplate{}, err
		}
		defer release()
		live = active
	}

	current, err := s.templates.Get(ctx, id)
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	live = live || current.IsPublished
	t := current.Clone()
	if err := apply(&t); err != nil {
		return domain.ExamTemplate{}, err
	}
	t.ID = current.ID
	t.CreatedAt = current.CreatedAt
	t.IsPublished = current.IsPublished
	t.UpdatedAt = s.opts.now()
	s.assignIDs(&t)
	t.RecomputeTotals()
	// the active exam must stay gradable
	if err := validateTemplate(t, live); err != nil {
		return domain.ExamTemplate{}, err
	}
	if err := s.templates.Save(ctx, t); err != nil {
		return domain.ExamTemplate{}, err
	}
	return t, nil
}

func (s *TemplateService) assignIDs(t *domain.ExamTemplate) {
	for si := range t.Sections {
		if t.Sections[si].ID == "" {
			t.Sections[si].ID = s.opts.newID()
		}
		for qi := range t.Sections[si].Questions {
			if t.Sections[si].Questions[qi].ID == "" {
				t.Sections[si].Questions[qi].ID = s.opts.newID()
			}
		}
	}
}
