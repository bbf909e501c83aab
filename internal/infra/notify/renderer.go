package notify

import (
	"context"

	"go.uber.org/zap"

	"proficiency-exam-service/internal/domain"
)

// LogRenderer stands in for the print/PDF service: it records the fully resolved
// certificate so an operator or downstream job can pick it up.
type LogRenderer struct {
	log *zap.Logger
}

func NewLogRenderer(log *zap.Logger) *LogRenderer {
	return &LogRenderer{log: log}
}

func (r *LogRenderer) Render(ctx context.Context, req domain.RenderRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.log.Info("render certificate",
		zap.String("certificate_number", req.Certificate.CertificateNumber),
		zap.String("student", req.Certificate.StudentName),
		zap.String("exam", req.Certificate.ExamTitle),
		zap.Int("score", req.Certificate.Score),
		zap.String("title", req.Settings.Title),
		zap.String("description", req.Settings.DescriptionTemplate),
		zap.String("template", req.Settings.Template),
	)
	return nil
}
