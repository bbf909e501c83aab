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

const (
	examSettingsKey        = "exam"
	certificateSettingsKey = "certificate"
)

// SettingsRepository keeps each settings record as one JSONB row in app_settings.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) ExamSettings(ctx context.Context) (domain.ExamSettings, bool, error) {
	var s domain.ExamSettings
	ok, err := r.load(ctx, examSettingsKey, &s)
	return s, ok, err
}

func (r *SettingsRepository) SaveExamSettings(ctx context.Context, s domain.ExamSettings) error {
	return r.save(ctx, examSettingsKey, s)
}

func (r *SettingsRepository) InitExamSettings(ctx context.Context, defaults domain.ExamSettings) (domain.ExamSettings, error) {
	var s domain.ExamSettings
	err := r.initialize(ctx, examSettingsKey, defaults, &s)
	return s, err
}

func (r *SettingsRepository) CertificateSettings(ctx context.Context) (domain.CertificateSettings, bool, error) {
	var s domain.CertificateSettings
	ok, err := r.load(ctx, certificateSettingsKey, &s)
	return s, ok, err
}

func (r *SettingsRepository) SaveCertificateSettings(ctx context.Context, s domain.CertificateSettings) error {
	return r.save(ctx, certificateSettingsKey, s)
}

func (r *SettingsRepository) InitCertificateSettings(ctx context.Context, defaults domain.CertificateSettings) (domain.CertificateSettings, error) {
	var s domain.CertificateSettings
	err := r.initialize(ctx, certificateSettingsKey, defaults, &s)
	return s, err
}

// initialize inserts defaults unless the key already has a row, then reads back the
// row that won.
func (r *SettingsRepository) initialize(ctx context.Context, key string, defaults, dst any) error {
	raw, err := json.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("marshal %s settings: %w", key, err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO app_settings (key, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO NOTHING`, key, raw)
	if err != nil {
		return fmt.Errorf("init %s settings: %w", key, err)
	}
	ok, err := r.load(ctx, key, dst)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("init %s settings: row missing after insert", key)
	}
	return nil
}

func (r *SettingsRepository) load(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM app_settings WHERE key=$1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s settings: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal %s settings: %w", key, err)
	}
	return true, nil
}

func (r *SettingsRepository) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s settings: %w", key, err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO app_settings (key, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, key, raw)
	if err != nil {
		return fmt.Errorf("save %s settings: %w", key, err)
	}
	return nil
}
