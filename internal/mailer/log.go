package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogSender pretends to deliver email, logging instead. Used in dev and test
// environments where EMAIL_ENABLED is off.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, _, _ string) (string, error) {
	s.log.Info("simulated email delivery",
		zap.String("to", to),
		zap.String("subject", subject))
	return "simulated", nil
}
