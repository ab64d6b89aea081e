package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SigningMode tags whether an artifact was signed with a real certificate
type SigningMode string

const (
	SigningModeCertified   SigningMode = "certified"
	SigningModeUncertified SigningMode = "uncertified"
)

// Artifact is the immutable output of serialization and signing
type Artifact struct {
	ID                uuid.UUID   `json:"id"`
	InvoiceNumber     string      `json:"invoice_number"`
	IssuerTaxID       string      `json:"issuer_tax_id"`
	Sequence          int64       `json:"sequence"` // position in the issuer chain, 1-based
	Document          []byte      `json:"-"`
	ContentHash       string      `json:"content_hash"`
	PreviousChainHash string      `json:"previous_chain_hash"`
	ChainHash         string      `json:"chain_hash"`
	Signature         string      `json:"signature"`
	HashAlgorithm     string      `json:"hash_algorithm"`
	CertificateSerial string      `json:"certificate_serial"`
	Mode              SigningMode `json:"mode"`
	SignedAt          time.Time   `json:"signed_at"`
}

// Certified reports whether the artifact carries a compliant signature
func (a *Artifact) Certified() bool {
	return a.Mode == SigningModeCertified
}

// IssuedInvoice pairs the calculated invoice with its artifact
type IssuedInvoice struct {
	Invoice  Invoice  `json:"invoice"`
	Artifact Artifact `json:"artifact"`
}

// ChainFields are the invoice identity fields bound into the chain hash
type ChainFields struct {
	InvoiceNumber     string
	IssueDate         Date
	IssuerTaxID       string
	CounterpartyTaxID string
	GrossTotal        decimal.Decimal
	TaxTotal          decimal.Decimal
}

// ChainFields extracts the chain hash inputs from the invoice header
func (inv *Invoice) ChainFields() ChainFields {
	return ChainFields{
		InvoiceNumber:     inv.Number,
		IssueDate:         inv.IssueDate,
		IssuerTaxID:       inv.Issuer.TaxID,
		CounterpartyTaxID: inv.Counterparty.TaxID,
		GrossTotal:        inv.GrossAmount,
		TaxTotal:          inv.TaxAmount,
	}
}
