package transmission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rezonia/invoice-engine/internal/lock"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/transmission/provider"
)

const DefaultCallTimeout = 30 * time.Second

// recordAttempts bounds the writes of an accepted submission
const recordAttempts = 3

// Machine drives artifacts through the transmission lifecycle. Calls for the
// same idempotency key are serialized.
type Machine struct {
	repo      Repository
	providers *provider.Registry
	locks     *lock.Keyed
	timeout   time.Duration
	log       zerolog.Logger
	now       func() time.Time

	mu sync.Mutex
	// receipts of accepted submissions whose SENT record was not stored
	unrecorded map[string]*provider.Receipt
}

type MachineOption func(*Machine)

// WithCallTimeout bounds every provider call
func WithCallTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithLogger(log zerolog.Logger) MachineOption {
	return func(m *Machine) {
		m.log = log
	}
}

func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(repo Repository, providers *provider.Registry, opts ...MachineOption) *Machine {
	m := &Machine{
		repo:       repo,
		providers:  providers,
		locks:      lock.NewKeyed(),
		timeout:    DefaultCallTimeout,
		log:        zerolog.Nop(),
		now:        time.Now,
		unrecorded: make(map[string]*provider.Receipt),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Providers returns the enabled provider names
func (m *Machine) Providers() []string {
	return m.providers.Names()
}

// Transmit sends the artifact through the named provider.
//
// A live SENT or DELIVERED record for the same document and provider is
// returned as is without contacting the provider. A REJECTED record yields
// ErrRejected. After FAILED a new attempt is recorded. When the provider call
// fails the stored record is returned together with a *PeppolError.
func (m *Machine) Transmit(ctx context.Context, a *model.Artifact, senderID, receiverID, providerName string) (*Record, error) {
	if errs := validateRequest(a, senderID, receiverID); len(errs) > 0 {
		return nil, errs
	}

	p, err := m.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	key := IdempotencyKey(a.ContentHash, providerName)
	unlock, err := m.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := m.log.With().
		Str("invoice", a.InvoiceNumber).
		Str("provider", providerName).
		Str("content_hash", a.ContentHash).
		Logger()

	attempt := 1
	var rec *Record

	latest, err := m.repo.Latest(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load transmission: %w", err)
	case latest.Success():
		log.Debug().Str("message_id", latest.MessageID).Str("status", string(latest.Status)).
			Msg("already transmitted")
		return latest, nil
	case latest.Status == StatusRejected:
		return latest, fmt.Errorf("invoice %s via %s: %w", a.InvoiceNumber, providerName, ErrRejected)
	case latest.Status == StatusFailed:
		attempt = latest.Attempt + 1
	case latest.Status == StatusNotSent:
		// an earlier attempt stopped before its outcome was stored
		rec = latest
		if receipt := m.takeUnrecorded(key); receipt != nil {
			log.Info().Str("message_id", receipt.MessageID).Msg("recording earlier accepted submission")
			return m.recordSent(ctx, log, key, rec, receipt)
		}
		rec.SenderID, rec.ReceiverID = senderID, receiverID
	}

	if rec == nil {
		now := m.now().UTC()
		rec = &Record{
			ID:             uuid.New(),
			IdempotencyKey: key,
			ArtifactID:     a.ID,
			InvoiceNumber:  a.InvoiceNumber,
			IssuerTaxID:    a.IssuerTaxID,
			ContentHash:    a.ContentHash,
			Provider:       providerName,
			SenderID:       senderID,
			ReceiverID:     receiverID,
			Status:         StatusNotSent,
			Attempt:        attempt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := m.repo.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("create transmission: %w", err)
		}
	}

	receipt, sendErr := m.send(ctx, p, a, senderID, receiverID)
	if sendErr != nil {
		perr := m.classify(a.InvoiceNumber, providerName, "send", sendErr)
		rec.LastError = sendErr.Error()
		rec.transition(perr.Status, m.now().UTC())
		if err := m.repo.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("record failed transmission: %w", err)
		}

		log.Warn().Err(sendErr).
			Int("attempt", rec.Attempt).
			Str("status", string(rec.Status)).
			Bool("retryable", perr.Retryable).
			Msg("transmission failed")
		if rec.Status == StatusRejected {
			return rec, fmt.Errorf("%w: %w", ErrRejected, perr)
		}
		return rec, perr
	}

	return m.recordSent(ctx, log, key, rec, receipt)
}

// recordSent stores the SENT outcome of an accepted submission. The write is
// retried outside the caller's deadline; when it still fails the receipt is
// kept so the next Transmit for key records it instead of resending.
func (m *Machine) recordSent(ctx context.Context, log zerolog.Logger, key string, rec *Record, receipt *provider.Receipt) (*Record, error) {
	rec.MessageID = receipt.MessageID
	rec.Request = receipt.Request
	rec.Response = receipt.Response
	rec.LastError = ""
	rec.transition(StatusSent, m.now().UTC())

	var err error
	for i := 0; i < recordAttempts; i++ {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		err = m.repo.Update(writeCtx, rec)
		cancel()
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("write", i+1).Str("message_id", rec.MessageID).
			Msg("storing accepted transmission failed")
	}
	if err != nil {
		m.mu.Lock()
		m.unrecorded[key] = receipt
		m.mu.Unlock()

		log.Error().Err(err).Str("message_id", rec.MessageID).
			Msg("accepted transmission not recorded")
		return rec, fmt.Errorf("%w: %s via %s: %w", ErrUnrecorded, rec.InvoiceNumber, rec.Provider, err)
	}

	log.Info().
		Str("message_id", rec.MessageID).
		Int("attempt", rec.Attempt).
		Msg("invoice transmitted")
	return rec, nil
}

func (m *Machine) takeUnrecorded(key string) *provider.Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt := m.unrecorded[key]
	delete(m.unrecorded, key)
	return receipt
}

// send performs the receiver lookup and the submission under one deadline
func (m *Machine) send(ctx context.Context, p provider.Provider, a *model.Artifact, senderID, receiverID string) (*provider.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	known, err := p.ValidateParticipantID(callCtx, receiverID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, &provider.ProviderError{
			Provider:   p.Name(),
			Op:         "lookup",
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("receiver %s is not registered on the network", receiverID),
		}
	}

	return p.Send(callCtx, &provider.Submission{
		InvoiceNumber: a.InvoiceNumber,
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Document:      a.Document,
	})
}

// classify decides between REJECTED and FAILED. Timeouts and transport
// errors are always FAILED.
func (m *Machine) classify(number, providerName, op string, err error) *PeppolError {
	perr := &PeppolError{
		Provider:      providerName,
		InvoiceNumber: number,
		Op:            op,
		Status:        StatusFailed,
		Retryable:     true,
		Err:           err,
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return perr
	}

	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		perr.Retryable = pe.Retryable()
		if pe.Rejected() {
			perr.Status = StatusRejected
		}
	}
	return perr
}

// CheckStatus asks the provider for the message's status and stores it when
// it is a legal transition. The artifact is not involved.
func (m *Machine) CheckStatus(ctx context.Context, messageID, providerName string) (*Record, error) {
	p, err := m.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	rec, err := m.repo.FindByMessage(ctx, providerName, messageID)
	if err != nil {
		return nil, err
	}

	unlock, err := m.locks.Lock(ctx, rec.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// reread under the lock
	rec, err = m.repo.FindByMessage(ctx, providerName, messageID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	report, err := p.GetStatus(callCtx, messageID)
	if err != nil {
		perr := m.classify(rec.InvoiceNumber, providerName, "status", err)
		perr.Status = rec.Status
		return rec, perr
	}

	log := m.log.With().
		Str("invoice", rec.InvoiceNumber).
		Str("provider", providerName).
		Str("message_id", messageID).
		Logger()

	next, ok := FromProvider(report.Status)
	if !ok {
		log.Warn().Str("reported", report.Status).Msg("unknown provider status")
		return rec, nil
	}
	if next == rec.Status {
		return rec, nil
	}
	if !rec.Status.CanTransition(next) {
		log.Warn().
			Str("status", string(rec.Status)).
			Str("reported", string(next)).
			Msg("ignoring illegal status transition")
		return rec, nil
	}

	previous := rec.Status
	rec.transition(next, m.now().UTC())
	if len(report.Details) > 0 {
		rec.Response = report.Details
	}
	if err := m.repo.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update transmission: %w", err)
	}

	log.Info().
		Str("from", string(previous)).
		Str("to", string(next)).
		Msg("transmission status changed")
	return rec, nil
}

// History returns every attempt for an invoice
func (m *Machine) History(ctx context.Context, issuerTaxID, number string) ([]*Record, error) {
	return m.repo.ListByInvoice(ctx, issuerTaxID, number)
}

func validateRequest(a *model.Artifact, senderID, receiverID string) model.ValidationErrors {
	var errs model.ValidationErrors
	if a == nil || len(a.Document) == 0 || a.ContentHash == "" {
		errs.Add("artifact", nil, model.RuleRequired, "a signed artifact is required")
	}
	if strings.TrimSpace(senderID) == "" {
		errs.Add("sender_id", nil, model.RuleRoutingID, "sender routing identifier is required")
	} else if strings.ContainsAny(senderID, " \t\n") {
		errs.Add("sender_id", senderID, model.RuleRoutingID, "routing identifier must not contain whitespace")
	}
	if strings.TrimSpace(receiverID) == "" {
		errs.Add("receiver_id", nil, model.RuleRoutingID, "receiver routing identifier is required")
	} else if strings.ContainsAny(receiverID, " \t\n") {
		errs.Add("receiver_id", receiverID, model.RuleRoutingID, "routing identifier must not contain whitespace")
	}
	return errs
}
