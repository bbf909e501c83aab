package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/domain"
	"proficiency-exam-service/internal/infra/memory"
	pgstore "proficiency-exam-service/internal/infra/postgres"
	pgmigrations "proficiency-exam-service/internal/infra/postgres/migrations"
	infraredis "proficiency-exam-service/internal/infra/redis"
)

type stack struct {
	templates   *app.TemplateService
	publication *app.PublicationController
	submissions *app.SubmissionService
	issuer      *app.CertificateIssuer
	repo        *pgstore.TemplateRepository
}

func TestExamLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	s := newStack(pool, redisClient)
	defer s.issuer.Wait()

	none, err := s.repo.List(ctx)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if raw, _ := json.Marshal(none); string(raw) != "[]" {
		t.Fatalf("expected an empty JSON array on a fresh schema, got %s", raw)
	}

	a := createTemplate(t, ctx, s, "Exam A")
	b := createTemplate(t, ctx, s, "Exam B")

	if _, err := s.publication.Publish(ctx, a.ID); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if _, err := s.publication.Publish(ctx, b.ID); err != nil {
		t.Fatalf("publish b: %v", err)
	}
	assertOnlyPublished(t, ctx, s.repo, b.ID)

	active, _, err := s.publication.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID != b.ID {
		t.Fatalf("expected b active, got %s", active.ID)
	}

	failed, err := s.submissions.Submit(ctx, submission("s1", 1, 0))
	if err != nil {
		t.Fatalf("submit failing: %v", err)
	}
	if failed.Result.Score != 2 || failed.Result.Percentage != 40 || failed.Result.Passed {
		t.Fatalf("expected 2/40%%/failed, got %+v", failed.Result)
	}

	passed, err := s.submissions.Submit(ctx, submission("s1", 1, 1))
	if err != nil {
		t.Fatalf("submit passing: %v", err)
	}
	if passed.Result.Percentage != 100 || !passed.Result.Passed || passed.Result.AttemptNumber != 2 {
		t.Fatalf("expected 100%% pass on attempt 2, got %+v", passed.Result)
	}

	var wg sync.WaitGroup
	certs := make([]domain.Certificate, 6)
	errs := make([]error, 6)
	for i := range certs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			certs[i], errs[i] = s.issuer.Issue(ctx, passed.Result.ID)
		}(i)
	}
	wg.Wait()
	for i := range certs {
		if errs[i] != nil {
			t.Fatalf("issue %d: %v", i, errs[i])
		}
		if certs[i].ID != certs[0].ID || certs[i].CertificateNumber != certs[0].CertificateNumber {
			t.Fatalf("expected a single certificate, got %+v and %+v", certs[0], certs[i])
		}
	}
	if certs[0].Score != 100 {
		t.Fatalf("expected certificate score 100, got %d", certs[0].Score)
	}
	listed, err := s.issuer.List(ctx, domain.CertificateFilter{StudentID: "s1"})
	if err != nil {
		t.Fatalf("list certificates: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one stored certificate, got %d", len(listed))
	}

	if _, err := s.submissions.Submit(ctx, submission("s1", 0, 0)); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if _, err := s.submissions.Submit(ctx, submission("s1", 0, 0)); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected attempts exhausted, got %v", err)
	}
}

func TestConcurrentSubmissionsClaimDistinctAttempts(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	results := pgstore.NewResultRepository(pool)
	const n = 5
	var wg sync.WaitGroup
	attempts := make(chan int, n)
	exhausted := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := domain.Result{
				ID:          fmt.Sprintf("r%d", i),
				TemplateID:  "t1",
				Student:     domain.Student{ID: "s1"},
				CompletedAt: time.Now().UTC(),
			}
			stored, err := results.Append(ctx, r, 3)
			switch {
			case errors.Is(err, domain.ErrAttemptsExhausted):
				exhausted <- struct{}{}
			case errors.Is(err, domain.ErrConflict):
				// retried out under contention; the caller may resubmit
			case err != nil:
				t.Errorf("append %d: %v", i, err)
			default:
				attempts <- stored.AttemptNumber
			}
		}(i)
	}
	wg.Wait()
	close(attempts)

	seen := map[int]bool{}
	for a := range attempts {
		if seen[a] {
			t.Fatalf("attempt number %d claimed twice", a)
		}
		if a < 1 || a > 3 {
			t.Fatalf("attempt number %d outside limit", a)
		}
		seen[a] = true
	}
}

func TestSettingsDefaultsDoNotReplaceSavedRows(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	repo := pgstore.NewSettingsRepository(pool)
	got, err := repo.InitExamSettings(ctx, domain.DefaultExamSettings())
	if err != nil || got.PassingScore != 70 {
		t.Fatalf("expected defaults on an empty table, got %+v %v", got, err)
	}
	if err := repo.SaveExamSettings(ctx, domain.ExamSettings{PassingScore: 45, MaxAttempts: 2}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = repo.InitExamSettings(ctx, domain.DefaultExamSettings())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if got.PassingScore != 45 || got.MaxAttempts != 2 {
		t.Fatalf("defaults replaced the saved row: %+v", got)
	}

	cs := domain.DefaultCertificateSettings()
	cs.Title = "Diploma"
	if err := repo.SaveCertificateSettings(ctx, cs); err != nil {
		t.Fatalf("save certificate settings: %v", err)
	}
	gotCS, err := repo.InitCertificateSettings(ctx, domain.DefaultCertificateSettings())
	if err != nil || gotCS.Title != "Diploma" {
		t.Fatalf("defaults replaced the saved certificate row: %+v %v", gotCS, err)
	}
}

func newStack(pool *pgxpool.Pool, client *goredis.Client) stack {
	log := zap.NewNop()
	repo := pgstore.NewTemplateRepository(pool)
	templates := infraredis.NewTemplateCache(client, repo, time.Minute)
	results := pgstore.NewResultRepository(pool)
	settings := app.NewSettingsService(pgstore.NewSettingsRepository(pool), app.WithLogger(log))
	publication := app.NewPublicationController(templates, pgstore.NewPublicationStore(pool), settings, app.WithLogger(log))
	feed := app.NewResultFeed()
	issuer := app.NewCertificateIssuer(app.IssuerDeps{
		Results:      results,
		Certificates: pgstore.NewCertificateRepository(pool),
		Settings:     settings,
		Progress:     memory.NewStaticProgressSource(map[string]int{"s1": 12}, 0),
		Locker:       infraredis.NewLocker(client, 10*time.Second),
		Feed:         feed,
	}, app.IssuerConfig{}, app.WithLogger(log))
	return stack{
		templates:   app.NewTemplateService(templates, publication, app.WithLogger(log)),
		publication: publication,
		submissions: app.NewSubmissionService(templates, publication, settings, results, issuer, feed, app.WithLogger(log)),
		issuer:      issuer,
		repo:        repo,
	}
}

func createTemplate(t *testing.T, ctx context.Context, s stack, title string) domain.ExamTemplate {
	t.Helper()
	created, err := s.templates.Create(ctx, domain.ExamTemplate{
		Title: title,
		Sections: []domain.Section{{
			ID:    "s1",
			Title: "Grammar",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "Past tense of go", Points: 2,
					Key: domain.MultipleChoice{Options: []string{"goed", "went"}, CorrectIndex: 1}},
				{ID: "q2", Prompt: "Plural of child", Points: 3,
					Key: domain.MultipleChoice{Options: []string{"childs", "children"}, CorrectIndex: 1}},
			},
		}},
	})
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return created
}

func submission(studentID string, q1, q2 int) domain.Submission {
	return domain.Submission{
		Student: domain.Student{ID: studentID, Name: "Ana Lima", Email: "ana@example.com"},
		Answers: map[string]any{"q1": q1, "q2": q2},
	}
}

func assertOnlyPublished(t *testing.T, ctx context.Context, repo *pgstore.TemplateRepository, id string) {
	t.Helper()
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	for _, tpl := range all {
		if tpl.IsPublished != (tpl.ID == id) {
			t.Fatalf("template %s published=%v, expected only %s published", tpl.ID, tpl.IsPublished, id)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
