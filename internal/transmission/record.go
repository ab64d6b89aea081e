package transmission

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is one transmission attempt of an artifact to a provider. The
// artifact itself is never changed by transmission.
type Record struct {
	ID             uuid.UUID       `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	ArtifactID     uuid.UUID       `json:"artifact_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	IssuerTaxID    string          `json:"issuer_tax_id"`
	ContentHash    string          `json:"content_hash"`
	Provider       string          `json:"provider"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id"`
	Status         Status          `json:"status"`
	MessageID      string          `json:"message_id,omitempty"`
	Attempt        int             `json:"attempt"`
	LastError      string          `json:"last_error,omitempty"`
	Request        []byte          `json:"provider_request,omitempty"`
	Response       json.RawMessage `json:"provider_response,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	RejectedAt     *time.Time      `json:"rejected_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IdempotencyKey identifies all attempts of one document to one provider
func IdempotencyKey(contentHash, providerName string) string {
	return contentHash + ":" + providerName
}

// Success reports whether the document reached the provider
func (r *Record) Success() bool {
	return r.Status == StatusSent || r.Status == StatusDelivered
}

// transition moves the record to next and stamps the matching timestamp
func (r *Record) transition(next Status, at time.Time) {
	r.Status = next
	r.UpdatedAt = at
	switch next {
	case StatusSent:
		r.SentAt = &at
	case StatusDelivered:
		r.DeliveredAt = &at
	case StatusRejected:
		r.RejectedAt = &at
	}
}
