// Package invoicelib is the public API of the invoice engine.
//
// It re-exports the invoice and artifact types and assembles every engine
// component from a single configuration.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := invoicelib.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	out, err := engine.Issuance.Issue(ctx, invoice)
package invoicelib

import (
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/transmission"
)

// Re-export core types for public API
type (
	Invoice       = model.Invoice
	LineItem      = model.LineItem
	Party         = model.Party
	TaxBreakdown  = model.TaxBreakdown
	Date          = model.Date
	InvoiceType   = model.InvoiceType
	Artifact      = model.Artifact
	IssuedInvoice = model.IssuedInvoice
	SigningMode   = model.SigningMode
)

// Re-export invoice types
const (
	InvoiceTypeStandard   = model.InvoiceTypeStandard
	InvoiceTypeCreditNote = model.InvoiceTypeCreditNote
	InvoiceTypeOutOfScope = model.InvoiceTypeOutOfScope
)

// Re-export signing modes
const (
	SigningModeCertified   = model.SigningModeCertified
	SigningModeUncertified = model.SigningModeUncertified
)

// Re-export transmission types
type (
	TransmissionRecord = transmission.Record
	TransmissionStatus = transmission.Status
	PeppolError        = transmission.PeppolError
)

// Re-export error types
type (
	ValidationError  = model.ValidationError
	ValidationErrors = model.ValidationErrors
)
