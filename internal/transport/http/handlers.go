package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/domain"
)

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := a.templates.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (a *API) createTemplate(w http.ResponseWriter, r *http.Request) {
	var draft domain.ExamTemplate
	if err := decodeJSON(r, &draft); err != nil {
		badRequest(w, "invalid template payload")
		return
	}
	t, err := a.templates.Create(r.Context(), draft)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := a.templates.Get(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var patch domain.TemplatePatch
	if err := decodeJSON(r, &patch); err != nil {
		badRequest(w, "invalid template patch")
		return
	}
	t, err := a.templates.Update(r.Context(), chi.URLParam(r, "templateID"), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.templates.Delete(r.Context(), chi.URLParam(r, "templateID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) publishTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := a.publication.Publish(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) unpublishTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := a.publication.Unpublish(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) addSection(w http.ResponseWriter, r *http.Request) {
	var section domain.Section
	if err := decodeJSON(r, &section); err != nil {
		badRequest(w, "invalid section payload")
		return
	}
	t, err := a.templates.AddSection(r.Context(), chi.URLParam(r, "templateID"), section)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) deleteSection(w http.ResponseWriter, r *http.Request) {
	t, err := a.templates.DeleteSection(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "sectionID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) addQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		badRequest(w, "invalid question payload")
		return
	}
	t, err := a.templates.AddQuestion(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "sectionID"), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		badRequest(w, "invalid question payload")
		return
	}
	t, err := a.templates.UpdateQuestion(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "questionID"), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	t, err := a.templates.DeleteQuestion(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "questionID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type activeExamResponse struct {
	Template domain.ExamTemplate      `json:"template"`
	Settings domain.EffectiveSettings `json:"settings"`
}

// activeExam serves the student projection of the published exam.
func (a *API) activeExam(w http.ResponseWriter, r *http.Request) {
	t, eff, err := a.publication.Active(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activeExamResponse{
		Template: app.StudentView(t, eff, r.URL.Query().Get("studentId")),
		Settings: eff,
	})
}

type submissionAck struct {
	ID            string    `json:"id"`
	AttemptNumber int       `json:"attemptNumber"`
	CompletedAt   time.Time `json:"completedAt"`
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := decodeJSON(r, &sub); err != nil {
		badRequest(w, "invalid submission payload")
		return
	}
	rec, err := a.submissions.Submit(r.Context(), sub)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !rec.ShowResults {
		writeJSON(w, http.StatusCreated, submissionAck{
			ID:            rec.Result.ID,
			AttemptNumber: rec.Result.AttemptNumber,
			CompletedAt:   rec.Result.CompletedAt,
		})
		return
	}
	writeJSON(w, http.StatusCreated, rec.Result)
}

func resultFilter(r *http.Request) (domain.ResultFilter, bool) {
	q := r.URL.Query()
	f := domain.ResultFilter{TemplateID: q.Get("templateId"), StudentID: q.Get("studentId")}
	if raw := q.Get("passed"); raw != "" {
		passed, err := strconv.ParseBool(raw)
		if err != nil {
			return f, false
		}
		f.Passed = &passed
	}
	return f, true
}

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
	f, ok := resultFilter(r)
	if !ok {
		badRequest(w, "passed must be a boolean")
		return
	}
	results, err := a.submissions.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) exportResults(w http.ResponseWriter, r *http.Request) {
	f, ok := resultFilter(r)
	if !ok {
		badRequest(w, "passed must be a boolean")
		return
	}
	results, err := a.submissions.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="exam-results.csv"`)
	if err := app.WriteResultsCSV(w, results); err != nil {
		a.log.Warn("write results csv", zap.Error(err))
	}
}

func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := a.submissions.Get(r.Context(), chi.URLParam(r, "resultID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) issueCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := a.certificates.Issue(r.Context(), chi.URLParam(r, "resultID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

type issueEligibleResponse struct {
	Certificates []domain.Certificate `json:"certificates"`
	Created      int                  `json:"created"`
}

func (a *API) issueEligible(w http.ResponseWriter, r *http.Request) {
	certs, created, err := a.certificates.IssueEligible(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issueEligibleResponse{Certificates: certs, Created: created})
}

func (a *API) listCertificates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	certs, err := a.certificates.List(r.Context(), domain.CertificateFilter{
		StudentID: q.Get("studentId"),
		ExamID:    q.Get("examId"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

func (a *API) getCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := a.certificates.Get(r.Context(), chi.URLParam(r, "certificateID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (a *API) deleteCertificate(w http.ResponseWriter, r *http.Request) {
	if err := a.certificates.Delete(r.Context(), chi.URLParam(r, "certificateID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) retryDelivery(w http.ResponseWriter, r *http.Request) {
	cert, err := a.certificates.RetryDelivery(r.Context(), chi.URLParam(r, "certificateID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (a *API) getExamSettings(w http.ResponseWriter, r *http.Request) {
	s, err := a.settings.ExamSettings(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) saveExamSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.ExamSettings
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, "invalid settings payload")
		return
	}
	s, err := a.settings.SaveExamSettings(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) getCertificateSettings(w http.ResponseWriter, r *http.Request) {
	s, err := a.settings.CertificateSettings(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) saveCertificateSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.CertificateSettings
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, "invalid settings payload")
		return
	}
	s, err := a.settings.SaveCertificateSettings(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
