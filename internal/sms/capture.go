package sms

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// CaptureProvider records messages in memory. Tests use it to read back the
// code an OTP send produced; setting Err makes every Send fail.
type CaptureProvider struct {
	mu       sync.Mutex
	messages []CapturedMessage
	Err      error
}

// CapturedMessage is one recorded Send.
type CapturedMessage struct {
	To   string
	Body string
}

var codePattern = regexp.MustCompile(`\b(\d{4,10})\b`)

func (c *CaptureProvider) Send(_ context.Context, to, body string) (*SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.messages = append(c.messages, CapturedMessage{To: to, Body: body})
	return &SendResult{MessageID: fmt.Sprintf("capture-%d", len(c.messages)), Status: "captured"}, nil
}

// Messages returns a copy of everything sent so far.
func (c *CaptureProvider) Messages() []CapturedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the most recent message.
func (c *CaptureProvider) Last() (CapturedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return CapturedMessage{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// LastCode extracts the numeric code from the most recent message body.
func (c *CaptureProvider) LastCode() string {
	msg, ok := c.Last()
	if !ok {
		return ""
	}
	m := codePattern.FindStringSubmatch(msg.Body)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Reset clears recorded messages.
func (c *CaptureProvider) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
