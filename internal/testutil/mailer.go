package testutil

import (
	"context"
	"sync"
)

// SentEmail is one message captured by RecordingMailer
type SentEmail struct {
	To      string
	Subject string
	Text    string
}

// RecordingMailer keeps every email it is asked to send
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentEmail
	Err  error
}

func (m *RecordingMailer) Send(ctx context.Context, to, subject, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentEmail{To: to, Subject: subject, Text: text})
	return nil
}

func (m *RecordingMailer) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}
