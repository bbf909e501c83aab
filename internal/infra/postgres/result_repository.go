package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"proficiency-exam-service/internal/domain"
)

// ResultRepository stores results as JSONB with the attempt counter in its own column.
type ResultRepository struct {
	pool *pgxpool.Pool
}

func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

const appendRetries = 3

// Append claims MAX(attempt)+1 in the same statement as the insert. Two racing inserts
// for the same pair collide on the unique key; the loser recomputes.
func (r *ResultRepository) Append(ctx context.Context, res domain.Result, maxAttempts int) (domain.Result, error) {
	res.AttemptNumber = 0
	raw, err := json.Marshal(res)
	if err != nil {
		return domain.Result{}, fmt.Errorf("marshal result: %w", err)
	}
	for i := 0; i < appendRetries; i++ {
		var attempt int
		err = r.pool.QueryRow(ctx, `
INSERT INTO exam_results (id, template_id, student_id, attempt_number, passed, completed_at, data)
SELECT $1, $2, $3, COALESCE(MAX(attempt_number), 0) + 1, $4, $5, $6
FROM exam_results
WHERE template_id = $2 AND student_id = $3
HAVING $7::int = 0 OR COALESCE(MAX(attempt_number), 0) < $7::int
RETURNING attempt_number`,
			res.ID, res.TemplateID, res.Student.ID, res.Passed, res.CompletedAt, raw, maxAttempts,
		).Scan(&attempt)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Result{}, domain.ErrAttemptsExhausted
		}
		if _, dup := uniqueConstraint(err); dup {
			continue
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("append result: %w", err)
		}
		res.AttemptNumber = attempt
		return res, nil
	}
	return domain.Result{}, fmt.Errorf("append result: %w", domain.ErrConflict)
}

func (r *ResultRepository) Get(ctx context.Context, id string) (domain.Result, error) {
	row := r.pool.QueryRow(ctx, `SELECT data, attempt_number FROM exam_results WHERE id=$1`, id)
	res, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return res, err
}

func (r *ResultRepository) List(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, error) {
	rows, err := r.pool.Query(ctx, `
SELECT data, attempt_number FROM exam_results
WHERE ($1 = '' OR template_id = $1)
  AND ($2 = '' OR student_id = $2)
  AND ($3::boolean IS NULL OR passed = $3::boolean)
ORDER BY seq`,
		filter.TemplateID, filter.StudentID, filter.Passed)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := []domain.Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanResult(row pgx.Row) (domain.Result, error) {
	var (
		raw     []byte
		attempt int
	)
	if err := row.Scan(&raw, &attempt); err != nil {
		return domain.Result{}, err
	}
	var res domain.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	res.AttemptNumber = attempt
	return res, nil
}
