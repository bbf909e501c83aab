package app

import (
	"context"

	"go.uber.org/zap"

	"proficiency-exam-service/internal/domain"
)

// SubmissionService grades submissions, aggregates them into results and persists them.
type SubmissionService struct {
	templates   TemplateRepository
	publication *PublicationController
	settings    *SettingsService
	results     ResultRepository
	issuer      *CertificateIssuer
	feed        *ResultFeed
	opts        options
}

func NewSubmissionService(
	templates TemplateRepository,
	publication *PublicationController,
	settings *SettingsService,
	results ResultRepository,
	issuer *CertificateIssuer,
	feed *ResultFeed,
	opts ...Option,
) *SubmissionService {
	return &SubmissionService{
		templates:   templates,
		publication: publication,
		settings:    settings,
		results:     results,
		issuer:      issuer,
		feed:        feed,
		opts:        buildOptions(opts),
	}
}

// Receipt is the outcome of a submission. ShowResults tells callers whether the
// student may see the score right away.
type Receipt struct {
	Result      domain.Result
	ShowResults bool
}

// Submit grades a submission against the identified template, or the active one when
// TemplateID is empty, and stores the result under the next attempt number.
func (s *SubmissionService) Submit(ctx context.Context, sub domain.Submission) (Receipt, error) {
	if err := validateStruct(sub.Student).OrNil(); err != nil {
		return Receipt{}, prefixFields(err, "student")
	}

	t, eff, err := s.resolveTemplate(ctx, sub.TemplateID)
	if err != nil {
		return Receipt{}, err
	}

	r := Aggregate(t, Grade(t, sub.Answers), eff.PassingScore)
	r.ID = s.opts.newID()
	r.Student = sub.Student
	r.Answers = copyAnswers(sub.Answers)
	r.CompletedAt = s.opts.now()
	if sub.TimeSpent > 0 {
		r.TimeSpent = sub.TimeSpent
	}

	stored, err := s.results.Append(ctx, r, eff.MaxAttempts)
	if err != nil {
		return Receipt{}, err
	}
	s.opts.log.Info("submission graded",
		zap.String("result_id", stored.ID),
		zap.String("template_id", stored.TemplateID),
		zap.String("student_id", stored.Student.ID),
		zap.Int("attempt", stored.AttemptNumber),
		zap.Int("percentage", stored.Percentage),
		zap.Bool("passed", stored.Passed),
	)
	if s.feed != nil {
		s.feed.Publish(Event{Type: EventResult, Result: &stored})
	}

	if stored.Passed && eff.CertificateEnabled && s.issuer != nil {
		s.autoIssue(ctx, stored)
	}
	return Receipt{Result: stored, ShowResults: eff.ShowResults}, nil
}

// Get returns a stored result.
func (s *SubmissionService) Get(ctx context.Context, id string) (domain.Result, error) {
	return s.results.Get(ctx, id)
}

// List returns results matching the filter, oldest first.
func (s *SubmissionService) List(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, error) {
	return s.results.List(ctx, filter)
}

func (s *SubmissionService) resolveTemplate(ctx context.Context, templateID string) (domain.ExamTemplate, domain.EffectiveSettings, error) {
	if templateID == "" {
		return s.publication.Active(ctx)
	}
	t, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return domain.ExamTemplate{}, domain.EffectiveSettings{}, err
	}
	defaults, err := s.settings.ExamSettings(ctx)
	if err != nil {
		return domain.ExamTemplate{}, domain.EffectiveSettings{}, err
	}
	return t, domain.Resolve(t.Settings, defaults), nil
}

// autoIssue mints a certificate when certificate settings ask for it. Failures are
// logged; the result is already durable and issuance can be retried explicitly.
func (s *SubmissionService) autoIssue(ctx context.Context, r domain.Result) {
	cs, err := s.settings.CertificateSettings(ctx)
	if err != nil {
		s.opts.log.Warn("auto certificate: load settings", zap.Error(err))
		return
	}
	if !cs.AutoGenerate {
		return
	}
	if _, _, err := s.issuer.IssueForResult(ctx, r); err != nil {
		s.opts.log.Warn("auto certificate issuance failed", zap.String("result_id", r.ID), zap.Error(err))
	}
}

// Aggregate rolls question outcomes into a result for t. Identity, student and timing
// fields are left for the caller.
func Aggregate(t domain.ExamTemplate, outcomes []domain.QuestionOutcome, passingScore int) domain.Result {
	t = t.Clone()
	t.RecomputeTotals()

	sections := make(map[string]domain.SectionScore, len(t.Sections))
	for _, s := range t.Sections {
		sections[s.ID] = domain.SectionScore{Total: s.MaxPoints}
	}
	score := 0
	for _, o := range outcomes {
		score += o.PointsAwarded
		if ss, ok := sections[o.SectionID]; ok {
			ss.Score += o.PointsAwarded
			sections[o.SectionID] = ss
		}
	}
	pct := Percentage(score, t.TotalPoints)
	return domain.Result{
		TemplateID:    t.ID,
		TemplateTitle: t.Title,
		Outcomes:      outcomes,
		Score:         score,
		TotalPoints:   t.TotalPoints,
		Percentage:    pct,
		PassingScore:  passingScore,
		Passed:        pct >= passingScore,
		SectionScores: sections,
	}
}

// Percentage is round-half-up of 100*score/total; zero when total is not positive.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*score + total) / (2 * total)
}

func copyAnswers(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func prefixFields(err error, prefix string) error {
	ve, ok := err.(*domain.ValidationError)
	if !ok {
		return err
	}
	for i := range ve.Fields {
		ve.Fields[i].Field = prefix + "." + ve.Fields[i].Field
	}
	return ve
}
