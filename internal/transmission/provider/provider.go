package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Names of the supported access point providers
const (
	Tradeshift = "tradeshift"
	Basware    = "basware"
	Mock       = "mock"
)

// Status values reported by access points
const (
	StatusPending   = "PENDING"
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
	StatusRejected  = "REJECTED"
	StatusFailed    = "FAILED"
)

// Submission is one signed document handed to an access point
type Submission struct {
	InvoiceNumber string
	SenderID      string
	ReceiverID    string
	Document      []byte
}

// Receipt is the provider's acknowledgement of a submission. Request holds
// the body that was sent, which may wrap the document.
type Receipt struct {
	MessageID string
	Request   []byte
	Response  json.RawMessage
}

// StatusReport is the provider's view of a message
type StatusReport struct {
	Status  string
	Details json.RawMessage
}

// Provider sends signed documents over the Peppol network
type Provider interface {
	Name() string

	// Send submits the document and returns the provider's message id
	Send(ctx context.Context, s *Submission) (*Receipt, error)

	// GetStatus reads the delivery status of a sent message
	GetStatus(ctx context.Context, messageID string) (*StatusReport, error)

	// ValidateParticipantID reports whether the participant is reachable
	ValidateParticipantID(ctx context.Context, participantID string) (bool, error)
}

// ProviderError describes a failed provider call
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the access point refused the document itself
func (e *ProviderError) Rejected() bool {
	return e.StatusCode == http.StatusUnprocessableEntity
}

// NotFound reports whether the provider does not know the message
func (e *ProviderError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Retryable reports whether the same request may succeed later
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return e.StatusCode >= 500
	}
}
