package app

import (
	"context"

	"go.uber.org/zap"

	"proficiency-exam-service/internal/domain"
)

// SettingsService reads through to documented defaults and replaces records wholesale on save.
type SettingsService struct {
	repo SettingsRepository
	opts options
}

func NewSettingsService(repo SettingsRepository, opts ...Option) *SettingsService {
	return &SettingsService{repo: repo, opts: buildOptions(opts)}
}

// ExamSettings returns the exam-wide defaults, creating them on first read. A save that
// lands first wins over the defaults.
func (s *SettingsService) ExamSettings(ctx context.Context) (domain.ExamSettings, error) {
	settings, ok, err := s.repo.ExamSettings(ctx)
	if err != nil {
		return domain.ExamSettings{}, err
	}
	if ok {
		return settings, nil
	}
	settings = domain.DefaultExamSettings()
	settings.UpdatedAt = s.opts.now()
	return s.repo.InitExamSettings(ctx, settings)
}

// SaveExamSettings replaces the exam-wide settings.
func (s *SettingsService) SaveExamSettings(ctx context.Context, settings domain.ExamSettings) (domain.ExamSettings, error) {
	if err := validateStruct(settings).OrNil(); err != nil {
		return domain.ExamSettings{}, err
	}
	settings.UpdatedAt = s.opts.now()
	if err := s.repo.SaveExamSettings(ctx, settings); err != nil {
		return domain.ExamSettings{}, err
	}
	s.opts.log.Info("exam settings saved",
		zap.Int("passing_score", settings.PassingScore),
		zap.Int("max_attempts", settings.MaxAttempts),
	)
	return settings, nil
}

// CertificateSettings returns the certificate settings, creating them on first read.
func (s *SettingsService) CertificateSettings(ctx context.Context) (domain.CertificateSettings, error) {
	settings, ok, err := s.repo.CertificateSettings(ctx)
	if err != nil {
		return domain.CertificateSettings{}, err
	}
	if ok {
		return settings, nil
	}
	settings = domain.DefaultCertificateSettings()
	settings.UpdatedAt = s.opts.now()
	return s.repo.InitCertificateSettings(ctx, settings)
}

// SaveCertificateSettings replaces the certificate settings.
func (s *SettingsService) SaveCertificateSettings(ctx context.Context, settings domain.CertificateSettings) (domain.CertificateSettings, error) {
	if err := validateStruct(settings).OrNil(); err != nil {
		return domain.CertificateSettings{}, err
	}
	settings.UpdatedAt = s.opts.now()
	if err := s.repo.SaveCertificateSettings(ctx, settings); err != nil {
		return domain.CertificateSettings{}, err
	}
	s.opts.log.Info("certificate settings saved", zap.Bool("auto_generate", settings.AutoGenerate))
	return settings, nil
}
