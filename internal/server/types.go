package server

import (
	"encoding/json"

	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/transmission"
)

// HealthResponse is the response for the health endpoint
type HealthResponse struct {
	Status      string   `json:"status"`
	Time        string   `json:"time"`
	SigningMode string   `json:"signing_mode"`
	Warnings    []string `json:"warnings,omitempty"`
}

// IssueResponse is the response for a successfully issued invoice
type IssueResponse struct {
	Invoice  *model.Invoice  `json:"invoice"`
	Artifact *model.Artifact `json:"artifact"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ValidationResponse is the response for the validate endpoint
type ValidationResponse struct {
	Valid   bool                   `json:"valid"`
	Errors  model.ValidationErrors `json:"errors,omitempty"`
	Invoice *model.Invoice         `json:"invoice,omitempty"`
}

// CertificateResponse describes the signing configuration
type CertificateResponse struct {
	Mode           string                     `json:"mode"`
	Serial         string                     `json:"serial"`
	HashAlgorithm  string                     `json:"hash_algorithm"`
	Certificate    *signature.CertificateInfo `json:"certificate,omitempty"`
	CertificatePEM string                     `json:"certificate_pem"`
	Signatures     int64                      `json:"signatures"`
	Warnings       []string                   `json:"warnings,omitempty"`
}

// TransmitRequest selects an issued invoice and its route
type TransmitRequest struct {
	IssuerTaxID   string `json:"issuer_tax_id" binding:"required"`
	InvoiceNumber string `json:"invoice_number" binding:"required"`
	SenderID      string `json:"sender_id"`
	ReceiverID    string `json:"receiver_id"`
	Provider      string `json:"provider" binding:"required"`
}

// TransmitResponse is the transmission boundary output
type TransmitResponse struct {
	Success          bool                 `json:"success"`
	MessageID        string               `json:"message_id,omitempty"`
	Status           string               `json:"status"`
	Provider         string               `json:"provider"`
	ProviderResponse json.RawMessage      `json:"provider_response,omitempty"`
	Record           *transmission.Record `json:"record"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
