package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/config"
	"proficiency-exam-service/internal/infra/memory"
	"proficiency-exam-service/internal/infra/notify"
	pgstore "proficiency-exam-service/internal/infra/postgres"
	rediscache "proficiency-exam-service/internal/infra/redis"
)

// services is the wired application shared by every subcommand.
type services struct {
	templates    *app.TemplateService
	publication  *app.PublicationController
	submissions  *app.SubmissionService
	certificates *app.CertificateIssuer
	settings     *app.SettingsService
	feed         *app.ResultFeed
}

// buildServices picks Postgres when configured (memory otherwise) and layers Redis
// for caching, the publication pointer and locks when an address is set.
func buildServices(ctx context.Context, cfg config.Config, log *zap.Logger) (*services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		templates    app.TemplateRepository
		pointer      app.PublicationStore
		results      app.ResultRepository
		certificates app.CertificateRepository
		settingsRepo app.SettingsRepository
		locker       app.Locker = memory.NewKeyedLocker()
	)

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		templates = pgstore.NewTemplateRepository(pool)
		pointer = pgstore.NewPublicationStore(pool)
		results = pgstore.NewResultRepository(pool)
		certificates = pgstore.NewCertificateRepository(pool)
		settingsRepo = pgstore.NewSettingsRepository(pool)
		log.Info("using postgres storage")
	} else {
		templates = memory.NewTemplateRepository()
		pointer = memory.NewPublicationStore()
		results = memory.NewResultRepository()
		certificates = memory.NewCertificateRepository()
		settingsRepo = memory.NewSettingsRepository()
		log.Warn("postgres url not configured, using in-memory storage")
	}

	cacheTTL := config.Duration(cfg.Cache.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		templates = rediscache.NewTemplateCache(client, templates, cacheTTL)
		// postgres keeps the pointer beside the template flags and their single-published
		// index; redis holds it only for in-memory storage
		if cfg.Postgres.URL == "" {
			pointer = rediscache.NewPublicationStore(client)
		}
		locker = rediscache.NewLocker(client, config.Duration(cfg.Redis.TTL, 30*time.Second))
		log.Info("using redis cache and locks", zap.String("addr", cfg.Redis.Addr))
	} else {
		templates = memory.NewTemplateCache(templates, cacheTTL)
	}

	opts := []app.Option{app.WithLogger(log)}
	feed := app.NewResultFeed()
	settings := app.NewSettingsService(settingsRepo, opts...)
	publication := app.NewPublicationController(templates, pointer, settings, opts...)
	issuer := app.NewCertificateIssuer(app.IssuerDeps{
		Results:      results,
		Certificates: certificates,
		Settings:     settings,
		Progress:     memory.NewStaticProgressSource(nil, cfg.Progress.DefaultUnits),
		Locker:       locker,
		Renderer:     notify.NewLogRenderer(log),
		Mailer:       notify.NewLogMailer(log),
		Feed:         feed,
	}, app.IssuerConfig{
		InstitutionCode: cfg.Certificates.InstitutionCode,
		DeliveryTimeout: config.Duration(cfg.Certificates.DeliveryTimeout, 30*time.Second),
		Concurrency:     cfg.Certificates.IssueConcurrency,
	}, opts...)
	closers = append(closers, issuer.Wait)

	if err := publication.Reconcile(ctx); err != nil {
		return nil, cleanup, err
	}

	return &services{
		templates:    app.NewTemplateService(templates, publication, opts...),
		publication:  publication,
		submissions:  app.NewSubmissionService(templates, publication, settings, results, issuer, feed, opts...),
		certificates: issuer,
		settings:     settings,
		feed:         feed,
	}, cleanup, nil
}
