package store

import (
	"context"
	"sync"

	"github.com/rezonia/invoice-engine/internal/transmission"
)

// Memory keeps transmission records in process
type Memory struct {
	mu      sync.RWMutex
	records []*transmission.Record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Latest(_ context.Context, key string) (*transmission.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *transmission.Record
	for _, r := range m.records {
		if r.IdempotencyKey == key && (latest == nil || r.Attempt > latest.Attempt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, transmission.ErrNotFound
	}
	return clone(latest), nil
}

func (m *Memory) Create(_ context.Context, rec *transmission.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.IdempotencyKey != rec.IdempotencyKey {
			continue
		}
		if r.Status != transmission.StatusFailed || r.Attempt == rec.Attempt {
			return transmission.ErrConflict
		}
	}
	m.records = append(m.records, clone(rec))
	return nil
}

func (m *Memory) Update(_ context.Context, rec *transmission.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.records {
		if r.ID == rec.ID {
			m.records[i] = clone(rec)
			return nil
		}
	}
	return transmission.ErrNotFound
}

func (m *Memory) FindByMessage(_ context.Context, providerName, messageID string) (*transmission.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.Provider == providerName && r.MessageID == messageID && messageID != "" {
			return clone(r), nil
		}
	}
	return nil, transmission.ErrNotFound
}

func (m *Memory) ListByInvoice(_ context.Context, issuerTaxID, number string) ([]*transmission.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*transmission.Record
	for _, r := range m.records {
		if r.IssuerTaxID == issuerTaxID && r.InvoiceNumber == number {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func clone(r *transmission.Record) *transmission.Record {
	c := *r
	c.Request = append([]byte(nil), r.Request...)
	c.Response = append([]byte(nil), r.Response...)
	return &c
}
