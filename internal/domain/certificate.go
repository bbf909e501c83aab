package domain

import "time"

// DeliveryState tracks one side-effect channel of a certificate.
type DeliveryState string

const (
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
	DeliverySkipped DeliveryState = "skipped"
)

// DeliveryStatus is bookkeeping for render and email delivery; it is the only mutable part of a certificate.
type DeliveryStatus struct {
	Render    DeliveryState `json:"render"`
	Email     DeliveryState `json:"email"`
	LastError string        `json:"lastError,omitempty"`
	Attempts  int           `json:"attempts"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Certificate asserts that a student passed an exam. At most one exists per (StudentID, ExamID).
type Certificate struct {
	ID                string         `json:"id"`
	StudentID         string         `json:"studentId"`
	StudentName       string         `json:"studentName"`
	StudentEmail      string         `json:"studentEmail"`
	ExamID            string         `json:"examId"`
	ExamTitle         string         `json:"examTitle"`
	ResultID          string         `json:"resultId"`
	Score             int            `json:"score"`
	CompletedUnits    int            `json:"completedUnits"`
	CertificateNumber string         `json:"certificateNumber"`
	IssuedAt          time.Time      `json:"issuedAt"`
	GeneratedAt       time.Time      `json:"generatedAt"`
	Delivery          DeliveryStatus `json:"delivery"`
}

// CertificateFilter narrows certificate listings.
type CertificateFilter struct {
	StudentID string
	ExamID    string
}

// Match reports whether c satisfies the filter.
func (f CertificateFilter) Match(c Certificate) bool {
	if f.StudentID != "" && c.StudentID != f.StudentID {
		return false
	}
	if f.ExamID != "" && c.ExamID != f.ExamID {
		return false
	}
	return true
}

// RenderRequest is handed to the external print/PDF collaborator with placeholders resolved.
type RenderRequest struct {
	Certificate Certificate         `json:"certificate"`
	Settings    CertificateSettings `json:"settings"`
}

// Email is handed to the external send-mail collaborator.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
