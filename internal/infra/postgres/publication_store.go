package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"proficiency-exam-service/internal/domain"
)

// PublicationStore keeps the active pointer in the single publication_state row.
type PublicationStore struct {
	pool *pgxpool.Pool
}

func NewPublicationStore(pool *pgxpool.Pool) *PublicationStore {
	return &PublicationStore{pool: pool}
}

func (s *PublicationStore) Current(ctx context.Context) (domain.Publication, error) {
	var (
		templateID sql.NullString
		p          domain.Publication
	)
	err := s.pool.QueryRow(ctx,
		`SELECT template_id, version, updated_at FROM publication_state WHERE id=1`,
	).Scan(&templateID, &p.Version, &p.UpdatedAt)
	if err != nil {
		return domain.Publication{}, fmt.Errorf("read publication: %w", err)
	}
	p.TemplateID = templateID.String
	return p, nil
}

func (s *PublicationStore) Swap(ctx context.Context, expected int64, templateID string) (domain.Publication, error) {
	next := domain.Publication{
		TemplateID: templateID,
		Version:    expected + 1,
		UpdatedAt:  time.Now().UTC(),
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE publication_state SET template_id=NULLIF($1, ''), version=$2, updated_at=$3 WHERE id=1 AND version=$4`,
		templateID, next.Version, next.UpdatedAt, expected)
	if err != nil {
		return domain.Publication{}, fmt.Errorf("swap publication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Publication{}, domain.ErrConflict
	}
	return next, nil
}
