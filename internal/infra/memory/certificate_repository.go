package memory

import (
	"context"
	"sort"
	"sync"

	"proficiency-exam-service/internal/domain"
)

// CertificateRepository enforces one certificate per (student, exam) and unique numbers.
type CertificateRepository struct {
	mu       sync.RWMutex
	byID     map[string]domain.Certificate
	byPair   map[pairKey]string
	byNumber map[string]string
}

type pairKey struct {
	studentID string
	examID    string
}

func NewCertificateRepository() *CertificateRepository {
	return &CertificateRepository{
		byID:     make(map[string]domain.Certificate),
		byPair:   make(map[pairKey]string),
		byNumber: make(map[string]string),
	}
}

func (r *CertificateRepository) FindByStudentExam(_ context.Context, studentID, examID string) (domain.Certificate, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey{studentID, examID}]
	if !ok {
		return domain.Certificate{}, false, nil
	}
	return r.byID[id], true, nil
}

func (r *CertificateRepository) Create(_ context.Context, c domain.Certificate) (domain.Certificate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{c.StudentID, c.ExamID}
	if id, ok := r.byPair[key]; ok {
		return r.byID[id], false, nil
	}
	if _, ok := r.byNumber[c.CertificateNumber]; ok {
		return domain.Certificate{}, false, domain.ErrCertificateNumberTaken
	}
	r.byID[c.ID] = c
	r.byPair[key] = c.ID
	r.byNumber[c.CertificateNumber] = c.ID
	return c, true, nil
}

func (r *CertificateRepository) Get(_ context.Context, id string) (domain.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return c, nil
}

func (r *CertificateRepository) List(_ context.Context, filter domain.CertificateFilter) ([]domain.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Certificate, 0, len(r.byID))
	for _, c := range r.byID {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].GeneratedAt.Before(out[j].GeneratedAt)
		}
		return out[i].CertificateNumber < out[j].CertificateNumber
	})
	return out, nil
}

func (r *CertificateRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	delete(r.byID, id)
	delete(r.byPair, pairKey{c.StudentID, c.ExamID})
	delete(r.byNumber, c.CertificateNumber)
	return nil
}

func (r *CertificateRepository) UpdateDelivery(_ context.Context, id string, status domain.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	c.Delivery = status
	r.byID[id] = c
	return nil
}
