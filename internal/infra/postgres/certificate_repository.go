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

// CertificateRepository relies on unique constraints for the (student, exam) and
// certificate-number guarantees.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

const certificateColumns = `data, delivery`

func (r *CertificateRepository) FindByStudentExam(ctx context.Context, studentID, examID string) (domain.Certificate, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE student_id=$1 AND exam_id=$2`, studentID, examID)
	c, err := scanCertificate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Certificate{}, false, nil
	}
	if err != nil {
		return domain.Certificate{}, false, err
	}
	return c, true, nil
}

func (r *CertificateRepository) Create(ctx context.Context, c domain.Certificate) (domain.Certificate, bool, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return domain.Certificate{}, false, fmt.Errorf("marshal certificate: %w", err)
	}
	delivery, err := json.Marshal(c.Delivery)
	if err != nil {
		return domain.Certificate{}, false, fmt.Errorf("marshal delivery: %w", err)
	}
	var id string
	err = r.pool.QueryRow(ctx, `
INSERT INTO certificates (id, student_id, exam_id, result_id, certificate_number, generated_at, data, delivery)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT ON CONSTRAINT certificates_student_exam_key DO NOTHING
RETURNING id`,
		c.ID, c.StudentID, c.ExamID, c.ResultID, c.CertificateNumber, c.GeneratedAt, raw, delivery,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		existing, found, err := r.FindByStudentExam(ctx, c.StudentID, c.ExamID)
		if err != nil {
			return domain.Certificate{}, false, err
		}
		if !found {
			// the conflicting row was deleted in between
			return domain.Certificate{}, false, domain.ErrConflict
		}
		return existing, false, nil
	case err != nil:
		if name, dup := uniqueConstraint(err); dup && name == "certificates_number_key" {
			return domain.Certificate{}, false, domain.ErrCertificateNumberTaken
		}
		return domain.Certificate{}, false, fmt.Errorf("create certificate: %w", err)
	}
	return c, true, nil
}

func (r *CertificateRepository) Get(ctx context.Context, id string) (domain.Certificate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id=$1`, id)
	c, err := scanCertificate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return c, err
}

func (r *CertificateRepository) List(ctx context.Context, filter domain.CertificateFilter) ([]domain.Certificate, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+certificateColumns+` FROM certificates
WHERE ($1 = '' OR student_id = $1) AND ($2 = '' OR exam_id = $2)
ORDER BY generated_at, certificate_number`,
		filter.StudentID, filter.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	out := []domain.Certificate{}
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CertificateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM certificates WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

func (r *CertificateRepository) UpdateDelivery(ctx context.Context, id string, status domain.DeliveryStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE certificates SET delivery=$2 WHERE id=$1`, id, raw)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

func scanCertificate(row pgx.Row) (domain.Certificate, error) {
	var raw, delivery []byte
	if err := row.Scan(&raw, &delivery); err != nil {
		return domain.Certificate{}, err
	}
	var c domain.Certificate
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Certificate{}, fmt.Errorf("unmarshal certificate: %w", err)
	}
	if err := json.Unmarshal(delivery, &c.Delivery); err != nil {
		return domain.Certificate{}, fmt.Errorf("unmarshal delivery: %w", err)
	}
	return c, nil
}
