package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockProvider accepts every submission and keeps it in memory. Message ids
// are deterministic: MOCK-<invoice number>-<submission count>.
type MockProvider struct {
	mu       sync.Mutex
	sent     []Submission
	messages map[string]*mockMessage
}

type mockMessage struct {
	Submission Submission `json:"-"`
	Invoice    string     `json:"invoice_number"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Size       int        `json:"document_size"`
	Status     string     `json:"status"`
}

func NewMock() *MockProvider {
	return &MockProvider{messages: make(map[string]*mockMessage)}
}

func (p *MockProvider) Name() string {
	return Mock
}

func (p *MockProvider) Send(_ context.Context, s *Submission) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := *s
	sub.Document = append([]byte(nil), s.Document...)
	p.sent = append(p.sent, sub)

	id := fmt.Sprintf("MOCK-%s-%04d", s.InvoiceNumber, len(p.sent))
	msg := &mockMessage{
		Submission: sub,
		Invoice:    s.InvoiceNumber,
		SenderID:   s.SenderID,
		ReceiverID: s.ReceiverID,
		Size:       len(s.Document),
		Status:     StatusSent,
	}
	p.messages[id] = msg

	resp, _ := json.Marshal(msg)
	return &Receipt{MessageID: id, Request: sub.Document, Response: resp}, nil
}

// GetStatus reports DELIVERED for every known message unless SetStatus
// overrode it.
func (p *MockProvider) GetStatus(_ context.Context, messageID string) (*StatusReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg, ok := p.messages[messageID]
	if !ok {
		return nil, &ProviderError{Provider: Mock, Op: "status", StatusCode: 404, Body: "message id not found"}
	}
	if msg.Status == StatusSent {
		msg.Status = StatusDelivered
	}

	details, _ := json.Marshal(msg)
	return &StatusReport{Status: msg.Status, Details: details}, nil
}

func (p *MockProvider) ValidateParticipantID(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// SetStatus fixes the status GetStatus reports for messageID
func (p *MockProvider) SetStatus(messageID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg, ok := p.messages[messageID]; ok {
		msg.Status = status
	}
}

// Sent returns copies of every submission received so far
func (p *MockProvider) Sent() []Submission {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Submission, len(p.sent))
	copy(out, p.sent)
	return out
}
