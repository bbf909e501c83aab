package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"proficiency-exam-service/internal/domain"
)

// LogMailer is a placeholder for a real send-mail collaborator.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg domain.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return errors.New("missing recipient")
	}
	m.log.Info("sending email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
