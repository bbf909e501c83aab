package memory

import (
	"context"
	"sync"
	"time"

	"proficiency-exam-service/internal/domain"
)

// PublicationStore keeps the active-exam pointer in process memory.
type PublicationStore struct {
	mu      sync.Mutex
	now     func() time.Time
	current domain.Publication
}

func NewPublicationStore() *PublicationStore {
	return &PublicationStore{now: time.Now}
}

func (s *PublicationStore) Current(_ context.Context) (domain.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *PublicationStore) Swap(_ context.Context, expected int64, templateID string) (domain.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Version != expected {
		return domain.Publication{}, domain.ErrConflict
	}
	s.current = domain.Publication{
		TemplateID: templateID,
		Version:    expected + 1,
		UpdatedAt:  s.now().UTC(),
	}
	return s.current, nil
}
