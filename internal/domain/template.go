package domain

import "time"

// TemplateSettings are per-template overrides. Nil pointers fall back to ExamSettings.
type TemplateSettings struct {
	PassingScore       *int  `json:"passingScore,omitempty" validate:"omitempty,min=0,max=100"`
	MaxAttempts        *int  `json:"maxAttempts,omitempty" validate:"omitempty,min=0"`
	ShuffleQuestions   bool  `json:"shuffleQuestions"`
	ShuffleOptions     bool  `json:"shuffleOptions"`
	ShowResults        *bool `json:"showResults,omitempty"`
	CertificateEnabled *bool `json:"certificateEnabled,omitempty"`
}

// Section groups questions; MaxPoints is derived.
type Section struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required"`
	Description  string     `json:"description,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Questions    []Question `json:"questions" validate:"dive"`
	MaxPoints    int        `json:"maxPoints"`
	TimeLimit    *int       `json:"timeLimit,omitempty" validate:"omitempty,min=0"`
	PassingScore *int       `json:"passingScore,omitempty" validate:"omitempty,min=0,max=100"`
}

// ExamTemplate is an authored exam definition. TotalPoints is derived.
type ExamTemplate struct {
	ID           string           `json:"id"`
	Title        string           `json:"title" validate:"required"`
	Description  string           `json:"description,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Sections     []Section        `json:"sections" validate:"dive"`
	TotalPoints  int              `json:"totalPoints"`
	TimeLimit    int              `json:"timeLimit" validate:"min=0"` // minutes, 0 = untimed
	Settings     TemplateSettings `json:"settings"`
	IsPublished  bool             `json:"isPublished"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// RecomputeTotals derives section.MaxPoints bottom-up and TotalPoints from the sections.
func (t *ExamTemplate) RecomputeTotals() {
	total := 0
	for i := range t.Sections {
		sum := 0
		for _, q := range t.Sections[i].Questions {
			sum += q.Points
		}
		t.Sections[i].MaxPoints = sum
		total += sum
	}
	t.TotalPoints = total
}

// FindQuestion locates a question by id, returning section and question indexes.
func (t *ExamTemplate) FindQuestion(questionID string) (int, int, bool) {
	for si := range t.Sections {
		for qi := range t.Sections[si].Questions {
			if t.Sections[si].Questions[qi].ID == questionID {
				return si, qi, true
			}
		}
	}
	return -1, -1, false
}

// SectionIndex returns the position of a section, or -1.
func (t *ExamTemplate) SectionIndex(sectionID string) int {
	for i := range t.Sections {
		if t.Sections[i].ID == sectionID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so stores never share slices with callers.
func (t ExamTemplate) Clone() ExamTemplate {
	out := t
	out.Settings = t.Settings.clone()
	out.Sections = make([]Section, len(t.Sections))
	for i, s := range t.Sections {
		cs := s
		cs.Questions = make([]Question, len(s.Questions))
		for j, q := range s.Questions {
			cq := q
			cq.Tags = append([]string(nil), q.Tags...)
			if mc, ok := q.Key.(MultipleChoice); ok {
				mc.Options = append([]string(nil), mc.Options...)
				cq.Key = mc
			}
			cs.Questions[j] = cq
		}
		cs.TimeLimit = cloneInt(s.TimeLimit)
		cs.PassingScore = cloneInt(s.PassingScore)
		out.Sections[i] = cs
	}
	return out
}

func (s TemplateSettings) clone() TemplateSettings {
	s.PassingScore = cloneInt(s.PassingScore)
	s.MaxAttempts = cloneInt(s.MaxAttempts)
	s.ShowResults = cloneBool(s.ShowResults)
	s.CertificateEnabled = cloneBool(s.CertificateEnabled)
	return s
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// TemplatePatch is a partial update; nil fields are left untouched.
type TemplatePatch struct {
	Title        *string           `json:"title,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Instructions *string           `json:"instructions,omitempty"`
	TimeLimit    *int              `json:"timeLimit,omitempty"`
	Settings     *TemplateSettings `json:"settings,omitempty"`
	Sections     *[]Section        `json:"sections,omitempty"`
}

// Publication is the single "active exam" pointer. Version increases on every transition.
type Publication struct {
	TemplateID string    `json:"templateId,omitempty"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Active reports whether a template is currently published.
func (p Publication) Active() bool {
	return p.TemplateID != ""
}
