package store

import (
	"context"
	"sync"

	"github.com/rezonia/invoice-engine/internal/issuance"
	"github.com/rezonia/invoice-engine/internal/lock"
	"github.com/rezonia/invoice-engine/internal/model"
)

// Memory keeps issued invoices in process. Each issuer's chain is held by a
// keyed lock from BeginIssue until Commit or Rollback.
type Memory struct {
	locks *lock.Keyed

	mu      sync.RWMutex
	chains  map[string][]*model.IssuedInvoice
	numbers map[string]map[string]int // issuer -> number -> index
}

func NewMemory() *Memory {
	return &Memory{
		locks:   lock.NewKeyed(),
		chains:  make(map[string][]*model.IssuedInvoice),
		numbers: make(map[string]map[string]int),
	}
}

func (m *Memory) BeginIssue(ctx context.Context, issuerTaxID string) (issuance.IssueTx, error) {
	unlock, err := m.locks.Lock(ctx, issuerTaxID)
	if err != nil {
		return nil, err
	}
	return &memoryTx{store: m, issuer: issuerTaxID, unlock: unlock}, nil
}

func (m *Memory) Find(_ context.Context, issuerTaxID, number string) (*model.IssuedInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.numbers[issuerTaxID][number]
	if !ok {
		return nil, issuance.ErrNotFound
	}
	return clone(m.chains[issuerTaxID][idx]), nil
}

func (m *Memory) History(_ context.Context, issuerTaxID string) ([]*model.IssuedInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[issuerTaxID]
	out := make([]*model.IssuedInvoice, len(chain))
	for i, issued := range chain {
		out[i] = clone(issued)
	}
	return out, nil
}

type memoryTx struct {
	store   *Memory
	issuer  string
	pending []*model.IssuedInvoice
	unlock  func()
	done    bool
}

func (tx *memoryTx) Head(_ context.Context) (issuance.ChainHead, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	chain := tx.store.chains[tx.issuer]
	if len(chain) == 0 {
		return issuance.ChainHead{}, nil
	}
	last := chain[len(chain)-1].Artifact
	return issuance.ChainHead{ChainHash: last.ChainHash, Sequence: last.Sequence}, nil
}

func (tx *memoryTx) Exists(_ context.Context, number string) (bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	_, ok := tx.store.numbers[tx.issuer][number]
	return ok, nil
}

func (tx *memoryTx) Save(_ context.Context, issued *model.IssuedInvoice) error {
	for _, p := range tx.pending {
		if p.Artifact.InvoiceNumber == issued.Artifact.InvoiceNumber {
			return issuance.ErrDuplicate
		}
	}
	tx.pending = append(tx.pending, clone(issued))
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return nil
	}
	defer tx.finish()

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.numbers[tx.issuer] == nil {
		s.numbers[tx.issuer] = make(map[string]int)
	}
	for _, issued := range tx.pending {
		if _, ok := s.numbers[tx.issuer][issued.Artifact.InvoiceNumber]; ok {
			return issuance.ErrDuplicate
		}
	}
	for _, issued := range tx.pending {
		s.numbers[tx.issuer][issued.Artifact.InvoiceNumber] = len(s.chains[tx.issuer])
		s.chains[tx.issuer] = append(s.chains[tx.issuer], issued)
	}
	return nil
}

func (tx *memoryTx) Rollback() error {
	if !tx.done {
		tx.finish()
	}
	return nil
}

func (tx *memoryTx) finish() {
	tx.done = true
	tx.pending = nil
	tx.unlock()
}

func clone(issued *model.IssuedInvoice) *model.IssuedInvoice {
	c := *issued
	c.Invoice.Lines = append([]model.LineItem(nil), issued.Invoice.Lines...)
	c.Invoice.Breakdown = append([]model.TaxBreakdown(nil), issued.Invoice.Breakdown...)
	c.Artifact.Document = append([]byte(nil), issued.Artifact.Document...)
	return &c
}
