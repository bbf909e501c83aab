package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/domain"
	"proficiency-exam-service/internal/infra/memory"
)

type testApp struct {
	templates   *app.TemplateService
	publication *app.PublicationController
	submissions *app.SubmissionService
	issuer      *app.CertificateIssuer
	settings    *app.SettingsService
	feed        *app.ResultFeed

	templateRepo *memory.TemplateRepository
	certRepo     *memory.CertificateRepository
	progress     *memory.StaticProgressSource
	renderer     *recordingRenderer
	mailer       *recordingMailer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	var seq atomic.Int64
	clock := func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	ids := func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) }
	opts := []app.Option{app.WithClock(clock), app.WithIDs(ids)}

	a := &testApp{
		templateRepo: memory.NewTemplateRepository(),
		certRepo:     memory.NewCertificateRepository(),
		progress:     memory.NewStaticProgressSource(map[string]int{"s1": 12}, 0),
		renderer:     &recordingRenderer{},
		mailer:       &recordingMailer{},
		feed:         app.NewResultFeed(),
	}
	results := memory.NewResultRepository()
	a.settings = app.NewSettingsService(memory.NewSettingsRepository(), opts...)
	a.publication = app.NewPublicationController(a.templateRepo, memory.NewPublicationStore(), a.settings, opts...)
	a.issuer = app.NewCertificateIssuer(app.IssuerDeps{
		Results:      results,
		Certificates: a.certRepo,
		Settings:     a.settings,
		Progress:     a.progress,
		Locker:       memory.NewKeyedLocker(),
		Renderer:     a.renderer,
		Mailer:       a.mailer,
		Feed:         a.feed,
	}, app.IssuerConfig{InstitutionCode: "TST"}, opts...)
	a.templates = app.NewTemplateService(a.templateRepo, a.publication, opts...)
	a.submissions = app.NewSubmissionService(a.templateRepo, a.publication, a.settings, results, a.issuer, a.feed, opts...)
	t.Cleanup(a.issuer.Wait)
	return a
}

func mcQuestion(id string, points, correct int) domain.Question {
	return domain.Question{
		ID:     id,
		Prompt: "Question " + id,
		Points: points,
		Key:    domain.MultipleChoice{Options: []string{"a", "b", "c"}, CorrectIndex: correct},
	}
}

// twoQuestionDraft is one section with multiple-choice questions worth 2 and 3 points.
func twoQuestionDraft(title string) domain.ExamTemplate {
	return domain.ExamTemplate{
		Title: title,
		Sections: []domain.Section{{
			ID:        "sec-1",
			Title:     "Grammar",
			Questions: []domain.Question{mcQuestion("q1", 2, 1), mcQuestion("q2", 3, 2)},
		}},
	}
}

func createPublished(t *testing.T, a *testApp, title string) domain.ExamTemplate {
	t.Helper()
	ctx := context.Background()
	created, err := a.templates.Create(ctx, twoQuestionDraft(title))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	published, err := a.publication.Publish(ctx, created.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return published
}

func studentSubmission(studentID string, answers map[string]any) domain.Submission {
	return domain.Submission{
		Student: domain.Student{ID: studentID, Name: "Student " + studentID, Email: studentID + "@example.com"},
		Answers: answers,
	}
}

type recordingRenderer struct {
	mu       sync.Mutex
	requests []domain.RenderRequest
	fail     error
}

func (r *recordingRenderer) Render(_ context.Context, req domain.RenderRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.requests = append(r.requests, req)
	return nil
}

func (r *recordingRenderer) setFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []domain.Email
}

func (m *recordingMailer) Send(_ context.Context, msg domain.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []domain.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Email(nil), m.sent...)
}

type failingProgress struct{}

func (failingProgress) CompletedUnits(context.Context, string) (int, error) {
	return 0, errors.New("progress service unavailable")
}

func assertTotals(t *testing.T, tpl domain.ExamTemplate) {
	t.Helper()
	total := 0
	for _, s := range tpl.Sections {
		sum := 0
		for _, q := range s.Questions {
			sum += q.Points
		}
		if s.MaxPoints != sum {
			t.Fatalf("section %s maxPoints=%d, sum of questions=%d", s.ID, s.MaxPoints, sum)
		}
		total += s.MaxPoints
	}
	if tpl.TotalPoints != total {
		t.Fatalf("template totalPoints=%d, sum of sections=%d", tpl.TotalPoints, total)
	}
}
