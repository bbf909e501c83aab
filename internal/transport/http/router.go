package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"proficiency-exam-service/internal/app"
)

// API binds the exam services to HTTP.
type API struct {
	templates    *app.TemplateService
	publication  *app.PublicationController
	submissions  *app.SubmissionService
	certificates *app.CertificateIssuer
	settings     *app.SettingsService
	feed         *WSHandler
	log          *zap.Logger
}

// Services groups what the API needs.
type Services struct {
	Templates    *app.TemplateService
	Publication  *app.PublicationController
	Submissions  *app.SubmissionService
	Certificates *app.CertificateIssuer
	Settings     *app.SettingsService
	Feed         *app.ResultFeed
}

func NewAPI(s Services, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		templates:    s.Templates,
		publication:  s.Publication,
		submissions:  s.Submissions,
		certificates: s.Certificates,
		settings:     s.Settings,
		feed:         NewWSHandler(s.Feed, s.Submissions, log),
		log:          log,
	}
}

// Routes returns the HTTP handler for the whole service.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws/results", a.feed.ServeWS)

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", a.listTemplates)
		r.Post("/", a.createTemplate)
		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", a.getTemplate)
			r.Patch("/", a.updateTemplate)
			r.Delete("/", a.deleteTemplate)
			r.Post("/publish", a.publishTemplate)
			r.Post("/unpublish", a.unpublishTemplate)
			r.Post("/sections", a.addSection)
			r.Delete("/sections/{sectionID}", a.deleteSection)
			r.Post("/sections/{sectionID}/questions", a.addQuestion)
			r.Put("/questions/{questionID}", a.updateQuestion)
			r.Delete("/questions/{questionID}", a.deleteQuestion)
		})
	})
	r.Get("/exam/active", a.activeExam)

	r.Post("/submissions", a.submit)
	r.Route("/results", func(r chi.Router) {
		r.Get("/", a.listResults)
		r.Get("/export", a.exportResults)
		r.Get("/{resultID}", a.getResult)
		r.Post("/{resultID}/certificate", a.issueCertificate)
	})

	r.Route("/certificates", func(r chi.Router) {
		r.Get("/", a.listCertificates)
		r.Post("/generate", a.issueEligible)
		r.Get("/{certificateID}", a.getCertificate)
		r.Delete("/{certificateID}", a.deleteCertificate)
		r.Post("/{certificateID}/delivery", a.retryDelivery)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/exam", a.getExamSettings)
		r.Put("/exam", a.saveExamSettings)
		r.Get("/certificate", a.getCertificateSettings)
		r.Put("/certificate", a.saveCertificateSettings)
	})
	return r
}
