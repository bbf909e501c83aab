package memory

import (
	"context"
	"sync"

	"proficiency-exam-service/internal/domain"
)

// ResultRepository stores results and per-(template, student) attempt counters.
type ResultRepository struct {
	mu       sync.RWMutex
	results  map[string]domain.Result
	order    []string
	attempts map[attemptKey]int
}

type attemptKey struct {
	templateID string
	studentID  string
}

func NewResultRepository() *ResultRepository {
	return &ResultRepository{
		results:  make(map[string]domain.Result),
		attempts: make(map[attemptKey]int),
	}
}

func (r *ResultRepository) Append(_ context.Context, res domain.Result, maxAttempts int) (domain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := attemptKey{templateID: res.TemplateID, studentID: res.Student.ID}
	used := r.attempts[key]
	if maxAttempts > 0 && used >= maxAttempts {
		return domain.Result{}, domain.ErrAttemptsExhausted
	}
	res.AttemptNumber = used + 1
	r.attempts[key] = res.AttemptNumber
	r.results[res.ID] = res
	r.order = append(r.order, res.ID)
	return res, nil
}

func (r *ResultRepository) Get(_ context.Context, id string) (domain.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[id]
	if !ok {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return res, nil
}

func (r *ResultRepository) List(_ context.Context, filter domain.ResultFilter) ([]domain.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Result, 0, len(r.order))
	for _, id := range r.order {
		if res := r.results[id]; filter.Match(res) {
			out = append(out, res)
		}
	}
	return out, nil
}
