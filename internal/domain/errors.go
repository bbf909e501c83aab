package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is wrapped by every lookup failure so callers can match on it generically.
	ErrNotFound = errors.New("not found")
	// ErrTemplateNotFound is returned when an exam template id does not exist.
	ErrTemplateNotFound = fmt.Errorf("exam template %w", ErrNotFound)
	// ErrSectionNotFound is returned when a section id is not part of the template.
	ErrSectionNotFound = fmt.Errorf("section %w", ErrNotFound)
	// ErrQuestionNotFound is returned when a question id is not part of the template.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrResultNotFound is returned when a result id does not exist.
	ErrResultNotFound = fmt.Errorf("result %w", ErrNotFound)
	// ErrCertificateNotFound is returned when a certificate id does not exist.
	ErrCertificateNotFound = fmt.Errorf("certificate %w", ErrNotFound)
	// ErrNoActiveExam is returned when no template is currently published.
	ErrNoActiveExam = fmt.Errorf("active exam %w", ErrNotFound)

	// ErrAttemptsExhausted is returned when a student has used every allowed attempt.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	// ErrConflict signals a lost compare-and-swap race; the caller should retry.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrNotPassed is returned when a certificate is requested for a failing result.
	ErrNotPassed = errors.New("result did not pass")
	// ErrCertificatesDisabled is returned when certificate issuance is switched off.
	ErrCertificatesDisabled = errors.New("certificates are disabled")
	// ErrCertificateNumberTaken is returned by repositories when a minted number collides.
	ErrCertificateNumberTaken = errors.New("certificate number already taken")
)

// FieldError describes a single invalid field using its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level feedback for authors.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one field error, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
