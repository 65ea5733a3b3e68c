package sms

import (
	"context"
	"log/slog"
)

// LogProvider writes messages to the log instead of sending them. The body
// contains the plaintext code, so it is only wired in development.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider creates a LogProvider. If logger is nil, slog.Default() is used.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger.With("component", "sms.log")}
}

func (p *LogProvider) Send(_ context.Context, to, body string) (*SendResult, error) {
	p.logger.Info("sms message", "to", to, "body", body)
	return &SendResult{Status: "logged"}, nil
}
