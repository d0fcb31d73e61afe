package email

import (
	"context"
	"sync"
)

const (
	TemplateSponsorInvite = "sponsor_invite"
	TemplatePasswordReset = "password_reset"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	return nil
}

// Message is one rendered email captured by RecordingProvider.
type Message struct {
	To       []string
	Subject  string
	Template string
	Body     string
}

// RecordingProvider renders templates like SMTPProvider but keeps the result
// in memory. Err, when set, is returned from every send.
type RecordingProvider struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

func (p *RecordingProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Messages = append(p.Messages, Message{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (p *RecordingProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	subject, body, err := Render(templateName, data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Messages = append(p.Messages, Message{To: to, Subject: subject, Template: templateName, Body: body})
	return nil
}

func (p *RecordingProvider) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.Messages...)
}
