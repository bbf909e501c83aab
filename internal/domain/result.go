package domain

import "time"

// Student identifies the learner behind a submission.
type Student struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

// Submission is the raw learner input for one attempt. Answer values are decoded JSON:
// numbers for multiple-choice, booleans for true-false and strings for text kinds.
type Submission struct {
	TemplateID string         `json:"templateId"`
	Student    Student        `json:"student"`
	Answers    map[string]any `json:"answers"`
	TimeSpent  int            `json:"timeSpent"` // seconds
}

// QuestionOutcome is the graded result for one question.
type QuestionOutcome struct {
	QuestionID    string `json:"questionId"`
	SectionID     string `json:"sectionId"`
	Correct       bool   `json:"correct"`
	PointsAwarded int    `json:"pointsAwarded"`
	NeedsReview   bool   `json:"needsReview,omitempty"`
}

// SectionScore is the per-section breakdown of a result.
type SectionScore struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// Result is the immutable outcome of one graded submission.
type Result struct {
	ID            string                  `json:"id"`
	TemplateID    string                  `json:"templateId"`
	TemplateTitle string                  `json:"templateTitle"`
	Student       Student                 `json:"student"`
	Answers       map[string]any          `json:"answers"`
	Outcomes      []QuestionOutcome       `json:"outcomes"`
	Score         int                     `json:"score"`
	TotalPoints   int                     `json:"totalPoints"`
	Percentage    int                     `json:"percentage"`
	PassingScore  int                     `json:"passingScore"`
	Passed        bool                    `json:"passed"`
	SectionScores map[string]SectionScore `json:"sectionScores"`
	AttemptNumber int                     `json:"attemptNumber"`
	CompletedAt   time.Time               `json:"completedAt"`
	TimeSpent     int                     `json:"timeSpent"`
}

// ResultFilter narrows result listings; zero values match everything.
type ResultFilter struct {
	TemplateID string
	StudentID  string
	Passed     *bool
}

// Match reports whether r satisfies the filter.
func (f ResultFilter) Match(r Result) bool {
	if f.TemplateID != "" && r.TemplateID != f.TemplateID {
		return false
	}
	if f.StudentID != "" && r.Student.ID != f.StudentID {
		return false
	}
	if f.Passed != nil && r.Passed != *f.Passed {
		return false
	}
	return true
}
