package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"proficiency-exam-service/internal/domain"
)

// IssuerConfig tunes certificate numbering and delivery.
type IssuerConfig struct {
	InstitutionCode string
	DeliveryTimeout time.Duration
	Concurrency     int
}

const maxNumberAttempts = 5

// CertificateIssuer mints at most one certificate per (student, exam) and hands
// durable certificates to the render and mail collaborators.
type CertificateIssuer struct {
	results  ResultRepository
	certs    CertificateRepository
	settings *SettingsService
	progress ProgressSource
	locker   Locker
	renderer Renderer
	mailer   Mailer
	feed     *ResultFeed
	cfg      IssuerConfig
	opts     options

	deliveries sync.WaitGroup
}

// IssuerDeps groups the collaborators of a CertificateIssuer.
type IssuerDeps struct {
	Results      ResultRepository
	Certificates CertificateRepository
	Settings     *SettingsService
	Progress     ProgressSource
	Locker       Locker
	Renderer     Renderer
	Mailer       Mailer
	Feed         *ResultFeed
}

func NewCertificateIssuer(deps IssuerDeps, cfg IssuerConfig, opts ...Option) *CertificateIssuer {
	if cfg.InstitutionCode == "" {
		cfg.InstitutionCode = "LLE"
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &CertificateIssuer{
		results:  deps.Results,
		certs:    deps.Certificates,
		settings: deps.Settings,
		progress: deps.Progress,
		locker:   deps.Locker,
		renderer: deps.Renderer,
		mailer:   deps.Mailer,
		feed:     deps.Feed,
		cfg:      cfg,
		opts:     buildOptions(opts),
	}
}

// Issue returns the certificate for a passing result, minting it on first request.
func (s *CertificateIssuer) Issue(ctx context.Context, resultID string) (domain.Certificate, error) {
	r, err := s.results.Get(ctx, resultID)
	if err != nil {
		return domain.Certificate{}, err
	}
	cert, _, err := s.IssueForResult(ctx, r)
	return cert, err
}

// IssueForResult is Issue for an already loaded result. created reports whether a new
// certificate was minted. It never consults the template, which may have been deleted.
func (s *CertificateIssuer) IssueForResult(ctx context.Context, r domain.Result) (cert domain.Certificate, created bool, err error) {
	if !r.Passed {
		return domain.Certificate{}, false, domain.ErrNotPassed
	}
	es, err := s.settings.ExamSettings(ctx)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	if !es.CertificatesEnabled {
		return domain.Certificate{}, false, domain.ErrCertificatesDisabled
	}

	unlock, err := s.locker.Lock(ctx, "certificate:"+r.Student.ID+":"+r.TemplateID)
	if err != nil {
		return domain.Certificate{}, false, fmt.Errorf("lock certificate pair: %w", err)
	}
	defer unlock()

	existing, found, err := s.certs.FindByStudentExam(ctx, r.Student.ID, r.TemplateID)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	if found {
		return existing, false, nil
	}

	cert, created, err = s.mint(ctx, r)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	if !created {
		return cert, false, nil
	}

	s.opts.log.Info("certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("certificate_number", cert.CertificateNumber),
		zap.String("student_id", cert.StudentID),
		zap.String("exam_id", cert.ExamID),
	)
	if s.feed != nil {
		s.feed.Publish(Event{Type: EventCertificate, Certificate: &cert})
	}
	s.dispatch(cert)
	return cert, true, nil
}

func (s *CertificateIssuer) mint(ctx context.Context, r domain.Result) (domain.Certificate, bool, error) {
	units := 0
	if s.progress != nil {
		n, err := s.progress.CompletedUnits(ctx, r.Student.ID)
		if err != nil {
			s.opts.log.Warn("progress lookup failed, issuing with zero units",
				zap.String("student_id", r.Student.ID), zap.Error(err))
		} else {
			units = n
		}
	}

	now := s.opts.now()
	cert := domain.Certificate{
		ID:             s.opts.newID(),
		StudentID:      r.Student.ID,
		StudentName:    r.Student.Name,
		StudentEmail:   r.Student.Email,
		ExamID:         r.TemplateID,
		ExamTitle:      r.TemplateTitle,
		ResultID:       r.ID,
		Score:          r.Percentage,
		CompletedUnits: units,
		IssuedAt:       r.CompletedAt,
		GeneratedAt:    now,
		Delivery: domain.DeliveryStatus{
			Render:    domain.DeliveryPending,
			Email:     domain.DeliveryPending,
			UpdatedAt: now,
		},
	}
	for i := 0; i < maxNumberAttempts; i++ {
		cert.CertificateNumber = s.newNumber(now)
		stored, created, err := s.certs.Create(ctx, cert)
		if errors.Is(err, domain.ErrCertificateNumberTaken) {
			continue
		}
		if err != nil {
			return domain.Certificate{}, false, err
		}
		return stored, created, nil
	}
	return domain.Certificate{}, false, fmt.Errorf("mint certificate number: %w", domain.ErrCertificateNumberTaken)
}

// newNumber builds "<CODE>-<YEAR>-<TOKEN>"; uniqueness is enforced by the repository.
func (s *CertificateIssuer) newNumber(now time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(s.opts.newID(), "-", ""))
	if len(token) > 10 {
		token = token[:10]
	}
	return fmt.Sprintf("%s-%d-%s", s.cfg.InstitutionCode, now.Year(), token)
}

// IssueEligible issues certificates for every passing result, one per (student, exam),
// using the best result of each pair. It returns all certificates and how many were new.
func (s *CertificateIssuer) IssueEligible(ctx context.Context) ([]domain.Certificate, int, error) {
	passed := true
	results, err := s.results.List(ctx, domain.ResultFilter{Passed: &passed})
	if err != nil {
		return nil, 0, err
	}

	type pair struct{ student, exam string }
	best := make(map[pair]int)
	var order []pair
	for i, r := range results {
		p := pair{r.Student.ID, r.TemplateID}
		j, ok := best[p]
		if !ok {
			order = append(order, p)
			best[p] = i
			continue
		}
		if r.Percentage > results[j].Percentage {
			best[p] = i
		}
	}

	certs := make([]domain.Certificate, len(order))
	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, p := range order {
		i, r := i, results[best[p]]
		g.Go(func() error {
			cert, isNew, err := s.IssueForResult(gctx, r)
			if err != nil {
				return fmt.Errorf("issue for result %s: %w", r.ID, err)
			}
			certs[i] = cert
			if isNew {
				created.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	s.opts.log.Info("eligible certificates processed", zap.Int("pairs", len(order)), zap.Int64("created", created.Load()))
	return certs, int(created.Load()), nil
}

// Get returns a certificate by id.
func (s *CertificateIssuer) Get(ctx context.Context, id string) (domain.Certificate, error) {
	return s.certs.Get(ctx, id)
}

// List returns certificates matching the filter.
func (s *CertificateIssuer) List(ctx context.Context, filter domain.CertificateFilter) ([]domain.Certificate, error) {
	return s.certs.List(ctx, filter)
}

// Delete removes a certificate; the pair becomes eligible for issuance again.
func (s *CertificateIssuer) Delete(ctx context.Context, id string) error {
	if err := s.certs.Delete(ctx, id); err != nil {
		return err
	}
	s.opts.log.Info("certificate deleted", zap.String("certificate_id", id))
	return nil
}

// RetryDelivery synchronously re-runs render and email for channels not yet sent.
func (s *CertificateIssuer) RetryDelivery(ctx context.Context, id string) (domain.Certificate, error) {
	return s.deliver(ctx, id)
}

// Wait blocks until in-flight background deliveries finish.
func (s *CertificateIssuer) Wait() {
	s.deliveries.Wait()
}

func (s *CertificateIssuer) dispatch(cert domain.Certificate) {
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliveryTimeout)
		defer cancel()
		if _, err := s.deliver(ctx, cert.ID); err != nil {
			s.opts.log.Error("record certificate delivery", zap.String("certificate_id", cert.ID), zap.Error(err))
		}
	}()
}

// deliver runs each pending or failed channel and records the outcome. Channel failures
// are stored on the status; only bookkeeping failures are returned. Runs for the same
// certificate are serialized and each starts from the status the previous one stored.
func (s *CertificateIssuer) deliver(ctx context.Context, id string) (domain.Certificate, error) {
	unlock, err := s.locker.Lock(ctx, "delivery:"+id)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("lock certificate delivery: %w", err)
	}
	defer unlock()

	cert, err := s.certs.Get(ctx, id)
	if err != nil {
		return domain.Certificate{}, err
	}
	cs, err := s.settings.CertificateSettings(ctx)
	if err != nil {
		return domain.Certificate{}, err
	}
	resolved := cs.ResolveCopy(cert.StudentName)
	status := cert.Delivery
	status.Attempts++
	var failures []string

	if status.Render != domain.DeliverySent {
		switch {
		case s.renderer == nil:
			status.Render = domain.DeliverySkipped
		default:
			if err := s.renderer.Render(ctx, domain.RenderRequest{Certificate: cert, Settings: resolved}); err != nil {
				status.Render = domain.DeliveryFailed
				failures = append(failures, "render: "+err.Error())
			} else {
				status.Render = domain.DeliverySent
			}
		}
	}

	if status.Email != domain.DeliverySent {
		switch {
		case !cs.EmailDelivery || cert.StudentEmail == "" || s.mailer == nil:
			status.Email = domain.DeliverySkipped
		default:
			if err := s.mailer.Send(ctx, certificateEmail(cert, resolved)); err != nil {
				status.Email = domain.DeliveryFailed
				failures = append(failures, "email: "+err.Error())
			} else {
				status.Email = domain.DeliverySent
			}
		}
	}

	status.LastError = strings.Join(failures, "; ")
	status.UpdatedAt = s.opts.now()
	if len(failures) > 0 {
		s.opts.log.Warn("certificate delivery failed",
			zap.String("certificate_id", cert.ID),
			zap.Int("attempts", status.Attempts),
			zap.String("error", status.LastError),
		)
	}
	if err := s.certs.UpdateDelivery(ctx, cert.ID, status); err != nil {
		return domain.Certificate{}, err
	}
	cert.Delivery = status
	return cert, nil
}

func certificateEmail(cert domain.Certificate, cs domain.CertificateSettings) domain.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", cert.StudentName)
	fmt.Fprintf(&b, "%s\n\n", cs.DescriptionTemplate)
	fmt.Fprintf(&b, "Exam: %s\nScore: %d%%\nCertificate number: %s\n\n", cert.ExamTitle, cert.Score, cert.CertificateNumber)
	fmt.Fprintf(&b, "%s\n%s, %s\n", cs.InstitutionName, cs.SignatoryName, cs.SignatoryTitle)
	return domain.Email{
		To:      cert.StudentEmail,
		Subject: cs.Title + " - " + cert.ExamTitle,
		Body:    b.String(),
	}
}
