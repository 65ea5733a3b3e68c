package sms

import (
	"context"
	"errors"
	"fmt"
)

// SNSPublisher abstracts the AWS SNS Publish call so the provider can be
// tested without AWS credentials.
type SNSPublisher interface {
	Publish(ctx context.Context, phoneNumber, message string) (messageID string, err error)
}

// SNSProvider sends SMS via AWS SNS direct-to-phone publishing.
type SNSProvider struct {
	publisher SNSPublisher
}

// NewSNSProvider creates an SNSProvider with the given publisher.
func NewSNSProvider(publisher SNSPublisher) *SNSProvider {
	return &SNSProvider{publisher: publisher}
}

func (p *SNSProvider) Send(ctx context.Context, to, body string) (*SendResult, error) {
	if p.publisher == nil {
		return nil, errors.New("sns: no publisher configured")
	}
	messageID, err := p.publisher.Publish(ctx, to, body)
	if err != nil {
		return nil, fmt.Errorf("sns: publish: %w", err)
	}
	return &SendResult{MessageID: messageID, Status: "sent"}, nil
}
