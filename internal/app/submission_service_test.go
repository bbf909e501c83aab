package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"proficiency-exam-service/internal/domain"
)

func TestSubmitScenarioIssuesOneCertificate(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	tpl := createPublished(t, a, "B2 Exam")

	failed, err := a.submissions.Submit(ctx, studentSubmission("s1", map[string]any{"q1": 1, "q2": 0}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r := failed.Result
	if r.Score != 2 || r.Percentage != 40 || r.Passed || r.AttemptNumber != 1 {
		t.Fatalf("expected 2 / 40%% / failed / attempt 1, got %+v", r)
	}
	if r.TemplateID != tpl.ID || r.TemplateTitle != "B2 Exam" || r.PassingScore != 70 {
		t.Fatalf("result must capture template data, got %+v", r)
	}
	if !failed.ShowResults {
		t.Fatalf("results are shown immediately by default")
	}

	passed, err := a.submissions.Submit(ctx, studentSubmission("s1", map[string]any{"q1": 1, "q2": 2}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if passed.Result.Score != 5 || passed.Result.Percentage != 100 || !passed.Result.Passed || passed.Result.AttemptNumber != 2 {
		t.Fatalf("expected 5 / 100%% / passed / attempt 2, got %+v", passed.Result)
	}

	cert, err := a.issuer.Issue(ctx, passed.Result.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if cert.Score != 100 || cert.StudentID != "s1" || cert.ExamID != tpl.ID {
		t.Fatalf("unexpected certificate %+v", cert)
	}
	certs, err := a.issuer.List(ctx, domain.CertificateFilter{StudentID: "s1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(certs) != 1 || certs[0].ID != cert.ID {
		t.Fatalf("expected exactly one certificate, got %+v", certs)
	}
}

func TestSubmitBeyondMaxAttemptsIsRejected(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	createPublished(t, a, "Limited")

	for i := 1; i <= 3; i++ {
		rec, err := a.submissions.Submit(ctx, studentSubmission("s1", nil))
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if rec.Result.AttemptNumber != i {
			t.Fatalf("expected attempt %d, got %d", i, rec.Result.AttemptNumber)
		}
	}
	_, err := a.submissions.Submit(ctx, studentSubmission("s1", nil))
	if !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected attempts exhausted, got %v", err)
	}
	results, err := a.submissions.List(ctx, domain.ResultFilter{StudentID: "s1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("rejected attempt must not be stored, got %d results", len(results))
	}

	// another student is unaffected
	if _, err := a.submissions.Submit(ctx, studentSubmission("s2", nil)); err != nil {
		t.Fatalf("other student: %v", err)
	}
}

func TestConcurrentSubmissionsClaimUniqueAttempts(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	createPublished(t, a, "Race")

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}
	exhausted := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := a.submissions.Submit(ctx, studentSubmission("s1", nil))
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domain.ErrAttemptsExhausted) {
				exhausted++
				return
			}
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if seen[rec.Result.AttemptNumber] {
				t.Errorf("attempt %d claimed twice", rec.Result.AttemptNumber)
			}
			seen[rec.Result.AttemptNumber] = true
		}()
	}
	wg.Wait()
	if len(seen) != 3 || exhausted != n-3 {
		t.Fatalf("expected 3 stored attempts and %d rejections, got %d and %d", n-3, len(seen), exhausted)
	}
}

func TestSubmitValidatesStudent(t *testing.T) {
	a := newTestApp(t)
	createPublished(t, a, "Exam")

	_, err := a.submissions.Submit(context.Background(), domain.Submission{
		Student: domain.Student{Email: "not-an-email"},
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	if !fields["student.id"] || !fields["student.email"] {
		t.Fatalf("expected student.id and student.email errors, got %+v", ve.Fields)
	}
}

func TestSubmitWithoutActiveExam(t *testing.T) {
	a := newTestApp(t)
	_, err := a.submissions.Submit(context.Background(), studentSubmission("s1", nil))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	sub := studentSubmission("s1", nil)
	sub.TemplateID = "missing"
	if _, err := a.submissions.Submit(context.Background(), sub); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("expected template not found, got %v", err)
	}
}

func TestTemplateOverridesApply(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	passing, attempts, hide := 30, 1, false
	draft := twoQuestionDraft("Lenient")
	draft.Settings = domain.TemplateSettings{PassingScore: &passing, MaxAttempts: &attempts, ShowResults: &hide}
	created, err := a.templates.Create(ctx, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sub := studentSubmission("s1", map[string]any{"q1": 1})
	sub.TemplateID = created.ID
	rec, err := a.submissions.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !rec.Result.Passed || rec.Result.PassingScore != 30 || rec.ShowResults {
		t.Fatalf("expected template overrides to apply, got %+v show=%v", rec.Result, rec.ShowResults)
	}
	if _, err := a.submissions.Submit(ctx, sub); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected single attempt limit, got %v", err)
	}
}

func TestPassingSubmissionAutoIssuesAndBroadcasts(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	createPublished(t, a, "Auto")

	events, cancel := a.feed.Subscribe()
	defer cancel()

	rec, err := a.submissions.Submit(ctx, studentSubmission("s1", map[string]any{"q1": 1, "q2": 2}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	var gotResult, gotCert bool
	for i := 0; i < 2; i++ {
		ev := <-events
		switch {
		case ev.Result != nil:
			gotResult = ev.Result.ID == rec.Result.ID
		case ev.Certificate != nil:
			gotCert = ev.Certificate.ResultID == rec.Result.ID
		}
	}
	if !gotResult || !gotCert {
		t.Fatalf("expected result and certificate events, got result=%v cert=%v", gotResult, gotCert)
	}
	cert, found, err := a.certRepo.FindByStudentExam(ctx, "s1", rec.Result.TemplateID)
	if err != nil || !found {
		t.Fatalf("expected auto-issued certificate, found=%v err=%v", found, err)
	}
	if cert.CompletedUnits != 12 {
		t.Fatalf("expected progress units to be captured, got %d", cert.CompletedUnits)
	}
}

func TestAutoIssueRespectsSettings(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	createPublished(t, a, "Manual")

	cs, err := a.settings.CertificateSettings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	cs.AutoGenerate = false
	if _, err := a.settings.SaveCertificateSettings(ctx, cs); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := a.submissions.Submit(ctx, studentSubmission("s1", map[string]any{"q1": 1, "q2": 2}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, found, _ := a.certRepo.FindByStudentExam(ctx, "s1", rec.Result.TemplateID); found {
		t.Fatalf("autoGenerate=false must not issue")
	}
}
