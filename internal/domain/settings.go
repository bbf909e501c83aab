package domain

import (
	"strings"
	"time"
)

// ExamSettings are the exam-wide defaults applied when a template omits a value.
type ExamSettings struct {
	PassingScore           int       `json:"passingScore" validate:"min=0,max=100"`
	MaxAttempts            int       `json:"maxAttempts" validate:"min=0"` // 0 = unlimited
	ShowResultsImmediately bool      `json:"showResultsImmediately"`
	CertificatesEnabled    bool      `json:"certificatesEnabled"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// DefaultExamSettings returns the documented defaults.
func DefaultExamSettings() ExamSettings {
	return ExamSettings{
		PassingScore:           70,
		MaxAttempts:            3,
		ShowResultsImmediately: true,
		CertificatesEnabled:    true,
	}
}

// EffectiveSettings is the outcome of resolving template overrides against exam-wide defaults.
type EffectiveSettings struct {
	PassingScore       int  `json:"passingScore"`
	MaxAttempts        int  `json:"maxAttempts"`
	ShuffleQuestions   bool `json:"shuffleQuestions"`
	ShuffleOptions     bool `json:"shuffleOptions"`
	ShowResults        bool `json:"showResults"`
	CertificateEnabled bool `json:"certificateEnabled"`
}

// Resolve applies template overrides on top of defaults.
func Resolve(t TemplateSettings, defaults ExamSettings) EffectiveSettings {
	eff := EffectiveSettings{
		PassingScore:       defaults.PassingScore,
		MaxAttempts:        defaults.MaxAttempts,
		ShuffleQuestions:   t.ShuffleQuestions,
		ShuffleOptions:     t.ShuffleOptions,
		ShowResults:        defaults.ShowResultsImmediately,
		CertificateEnabled: defaults.CertificatesEnabled,
	}
	if t.PassingScore != nil {
		eff.PassingScore = *t.PassingScore
	}
	if t.MaxAttempts != nil {
		eff.MaxAttempts = *t.MaxAttempts
	}
	if t.ShowResults != nil {
		eff.ShowResults = *t.ShowResults
	}
	// A template can opt out of certificates but cannot re-enable them globally.
	if t.CertificateEnabled != nil {
		eff.CertificateEnabled = eff.CertificateEnabled && *t.CertificateEnabled
	}
	return eff
}

// CertificateSettings is the process-wide certificate copy and behaviour.
type CertificateSettings struct {
	Title               string    `json:"title" validate:"required"`
	Subtitle            string    `json:"subtitle"`
	DescriptionTemplate string    `json:"descriptionTemplate"`
	InstitutionName     string    `json:"institutionName" validate:"required"`
	SignatoryName       string    `json:"signatoryName"`
	SignatoryTitle      string    `json:"signatoryTitle"`
	CEFRLevel           string    `json:"cefrLevel" validate:"omitempty,oneof=A1 A2 B1 B2 C1 C2"`
	AutoGenerate        bool      `json:"autoGenerate"`
	EmailDelivery       bool      `json:"emailDelivery"`
	Template            string    `json:"template" validate:"omitempty,oneof=classic modern minimal"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// DefaultCertificateSettings returns the documented defaults used on first read.
func DefaultCertificateSettings() CertificateSettings {
	return CertificateSettings{
		Title:               "Certificate of Proficiency",
		Subtitle:            "Language Proficiency Examination",
		DescriptionTemplate: "This certifies that {studentName} has successfully demonstrated proficiency at the {cefrLevel} level.",
		InstitutionName:     "Language Learning Academy",
		SignatoryName:       "Academic Director",
		SignatoryTitle:      "Director of Studies",
		CEFRLevel:           "B2",
		AutoGenerate:        true,
		EmailDelivery:       false,
		Template:            "classic",
	}
}

// ResolveCopy substitutes placeholders for a specific student.
func (s CertificateSettings) ResolveCopy(studentName string) CertificateSettings {
	r := strings.NewReplacer("{studentName}", studentName, "{cefrLevel}", s.CEFRLevel)
	s.Title = r.Replace(s.Title)
	s.Subtitle = r.Replace(s.Subtitle)
	s.DescriptionTemplate = r.Replace(s.DescriptionTemplate)
	return s
}
