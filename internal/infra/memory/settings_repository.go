package memory

import (
	"context"
	"sync"

	"proficiency-exam-service/internal/domain"
)

// SettingsRepository holds the two singleton settings records.
type SettingsRepository struct {
	mu          sync.RWMutex
	exam        *domain.ExamSettings
	certificate *domain.CertificateSettings
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{}
}

func (r *SettingsRepository) ExamSettings(_ context.Context) (domain.ExamSettings, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.exam == nil {
		return domain.ExamSettings{}, false, nil
	}
	return *r.exam, true, nil
}

func (r *SettingsRepository) SaveExamSettings(_ context.Context, s domain.ExamSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exam = &s
	return nil
}

func (r *SettingsRepository) InitExamSettings(_ context.Context, defaults domain.ExamSettings) (domain.ExamSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exam == nil {
		r.exam = &defaults
	}
	return *r.exam, nil
}

func (r *SettingsRepository) CertificateSettings(_ context.Context) (domain.CertificateSettings, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.certificate == nil {
		return domain.CertificateSettings{}, false, nil
	}
	return *r.certificate, true, nil
}

func (r *SettingsRepository) SaveCertificateSettings(_ context.Context, s domain.CertificateSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certificate = &s
	return nil
}

func (r *SettingsRepository) InitCertificateSettings(_ context.Context, defaults domain.CertificateSettings) (domain.CertificateSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.certificate == nil {
		r.certificate = &defaults
	}
	return *r.certificate, nil
}
