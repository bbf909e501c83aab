package app

import (
	"context"

	"proficiency-exam-service/internal/domain"
)

// TemplateRepository stores exam templates (in-memory, Postgres, cached, etc).
// Save upserts authored content but never changes the IsPublished flag of an existing
// record: publication state moves only through SyncPublished.
type TemplateRepository interface {
	List(ctx context.Context) ([]domain.ExamTemplate, error)
	Get(ctx context.Context, id string) (domain.ExamTemplate, error)
	Save(ctx context.Context, t domain.ExamTemplate) error
	Delete(ctx context.Context, id string) error
	// SyncPublished marks activeID published and every other template unpublished.
	// Calls carrying a version not newer than the last applied one are ignored.
	SyncPublished(ctx context.Context, activeID string, version int64) error
}

// PublicationStore holds the single active-exam pointer.
type PublicationStore interface {
	Current(ctx context.Context) (domain.Publication, error)
	// Swap replaces the pointer if its version still equals expected, returning
	// domain.ErrConflict otherwise. An empty templateID clears the pointer.
	Swap(ctx context.Context, expected int64, templateID string) (domain.Publication, error)
}

// ResultRepository persists graded results.
type ResultRepository interface {
	// Append claims the next attempt number for (template, student) and stores the result
	// atomically. It returns domain.ErrAttemptsExhausted when maxAttempts (>0) is reached.
	Append(ctx context.Context, r domain.Result, maxAttempts int) (domain.Result, error)
	Get(ctx context.Context, id string) (domain.Result, error)
	List(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, error)
}

// CertificateRepository persists certificates with a uniqueness guarantee per (student, exam).
type CertificateRepository interface {
	FindByStudentExam(ctx context.Context, studentID, examID string) (domain.Certificate, bool, error)
	// Create inserts c unless a certificate for the same (student, exam) exists, in which case
	// the existing one is returned with created=false.
	Create(ctx context.Context, c domain.Certificate) (cert domain.Certificate, created bool, err error)
	Get(ctx context.Context, id string) (domain.Certificate, error)
	List(ctx context.Context, filter domain.CertificateFilter) ([]domain.Certificate, error)
	Delete(ctx context.Context, id string) error
	UpdateDelivery(ctx context.Context, id string, status domain.DeliveryStatus) error
}

// SettingsRepository stores the two singleton settings records. The bool reports presence.
type SettingsRepository interface {
	ExamSettings(ctx context.Context) (domain.ExamSettings, bool, error)
	SaveExamSettings(ctx context.Context, s domain.ExamSettings) error
	// InitExamSettings stores defaults only when no record exists and returns the stored record.
	InitExamSettings(ctx context.Context, defaults domain.ExamSettings) (domain.ExamSettings, error)
	CertificateSettings(ctx context.Context) (domain.CertificateSettings, bool, error)
	SaveCertificateSettings(ctx context.Context, s domain.CertificateSettings) error
	InitCertificateSettings(ctx context.Context, defaults domain.CertificateSettings) (domain.CertificateSettings, error)
}

// Locker serializes work on a key across goroutines (or processes, for shared backends).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ProgressSource reports how many learning units a student has completed.
type ProgressSource interface {
	CompletedUnits(ctx context.Context, studentID string) (int, error)
}

// Renderer hands a resolved certificate to the print/PDF collaborator.
type Renderer interface {
	Render(ctx context.Context, req domain.RenderRequest) error
}

// Mailer hands an email to the send-mail collaborator.
type Mailer interface {
	Send(ctx context.Context, msg domain.Email) error
}
