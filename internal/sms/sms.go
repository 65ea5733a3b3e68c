// Package sms delivers OTP messages to guest phones. Providers are
// interchangeable; Channel wraps one for fire-and-forget use.
package sms

import (
	"context"
	"log/slog"
	"time"
)

// SendResult holds the outcome of a provider Send call.
type SendResult struct {
	MessageID string
	Status    string
}

// Provider sends an SMS to an E.164 phone number.
type Provider interface {
	Send(ctx context.Context, to, body string) (*SendResult, error)
}

// Channel delivers messages through a Provider without reporting failures
// to the caller. Failures are logged.
type Channel struct {
	provider Provider
	name     string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewChannel wraps provider. name is used in log lines only. A zero timeout
// leaves the caller's context deadline in charge.
func NewChannel(name string, provider Provider, timeout time.Duration, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{provider: provider, name: name, timeout: timeout, logger: logger}
}

// Deliver sends body to phone. It detaches from the caller's cancellation
// so a client disconnect after the challenge is stored still gets the SMS out.
func (c *Channel) Deliver(ctx context.Context, phone, body string) {
	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res, err := c.provider.Send(ctx, phone, body)
	if err != nil {
		c.logger.Error("sms delivery failed", "provider", c.name, "to", MaskPhone(phone), "error", err)
		return
	}
	c.logger.Debug("sms delivered", "provider", c.name, "to", MaskPhone(phone), "message_id", res.MessageID, "status", res.Status)
}

// MaskPhone hides all but the last two digits of a phone number for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	masked := []byte(phone)
	for i := 1; i < len(masked)-2; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
