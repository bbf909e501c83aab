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

// TemplateRepository stores templates as JSONB. The is_published column is owned by
// SyncPublished and overrides whatever the document says.
type TemplateRepository struct {
	pool *pgxpool.Pool
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

func (r *TemplateRepository) List(ctx context.Context) ([]domain.ExamTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT data, is_published FROM exam_templates ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []domain.ExamTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (domain.ExamTemplate, error) {
	row := r.pool.QueryRow(ctx, `SELECT data, is_published FROM exam_templates WHERE id=$1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExamTemplate{}, domain.ErrTemplateNotFound
	}
	return t, err
}

func (r *TemplateRepository) Save(ctx context.Context, t domain.ExamTemplate) error {
	t.IsPublished = false
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO exam_templates (id, data, created_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		t.ID, raw, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exam_templates WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) SyncPublished(ctx context.Context, activeID string, version int64) error {
	return r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE publication_state SET applied_version=$1 WHERE id=1 AND applied_version < $1`, version)
		if err != nil {
			return fmt.Errorf("claim publication version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE exam_templates SET is_published=FALSE WHERE is_published AND id<>$1`, activeID); err != nil {
			return fmt.Errorf("clear published flags: %w", err)
		}
		if activeID == "" {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE exam_templates SET is_published=TRUE WHERE id=$1`, activeID); err != nil {
			return fmt.Errorf("set published flag: %w", err)
		}
		return nil
	})
}

func scanTemplate(row pgx.Row) (domain.ExamTemplate, error) {
	var (
		raw       []byte
		published bool
	)
	if err := row.Scan(&raw, &published); err != nil {
		return domain.ExamTemplate{}, err
	}
	var t domain.ExamTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.ExamTemplate{}, fmt.Errorf("unmarshal template: %w", err)
	}
	t.IsPublished = published
	return t, nil
}
