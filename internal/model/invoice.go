package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LocalCurrency is the reporting currency of the tax authority
const LocalCurrency = "AED"

// DateLayout is the only date format used in documents and chain strings
const DateLayout = "2006-01-02"

// InvoiceType represents the kind of tax document
type InvoiceType string

const (
	InvoiceTypeStandard   InvoiceType = "standard"
	InvoiceTypeCreditNote InvoiceType = "credit_note"
	InvoiceTypeOutOfScope InvoiceType = "out_of_scope"
)

// TypeCode returns the UNCL1001 document type code
func (t InvoiceType) TypeCode() string {
	if t == InvoiceTypeCreditNote {
		return "381"
	}
	return "380"
}

// TransactionName returns the value of the InvoiceTypeCode name attribute
func (t InvoiceType) TransactionName() string {
	switch t {
	case InvoiceTypeCreditNote:
		return "CREDIT_NOTE"
	case InvoiceTypeOutOfScope:
		return "OUT_OF_SCOPE"
	default:
		return "TAX_INVOICE"
	}
}

// IsCreditNote reports whether the document corrects a preceding invoice
func (t InvoiceType) IsCreditNote() bool {
	return t == InvoiceTypeCreditNote
}

// Valid reports whether t is a known invoice type
func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceTypeStandard, InvoiceTypeCreditNote, InvoiceTypeOutOfScope:
		return true
	}
	return false
}

// Date is a calendar date without time of day, encoded as YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate creates a date in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// String formats the date as YYYY-MM-DD, or empty for the zero date
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	*d = parsed
	return nil
}

// Party represents issuer or counterparty
type Party struct {
	Name       string `json:"name"`
	TaxID      string `json:"tax_id,omitempty"`      // TRN, 15 digits
	EndpointID string `json:"endpoint_id,omitempty"` // Peppol participant identifier
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Email      string `json:"email,omitempty"`
}

// LineItem represents a single invoice line
type LineItem struct {
	Sequence    int             `json:"sequence"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ItemCode    string          `json:"item_code,omitempty"`
	UnitCode    string          `json:"unit_code,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxCode     string          `json:"tax_code"`

	// Computed by the tax calculator
	Category string          `json:"category,omitempty"`
	Rate     decimal.Decimal `json:"rate"`
	Net      decimal.Decimal `json:"net"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// TaxBreakdown is one subtotal per distinct (tax code, rate) pair
type TaxBreakdown struct {
	Code          string          `json:"code"`
	Category      string          `json:"category"`
	Rate          decimal.Decimal `json:"rate"`
	Taxable       bool            `json:"taxable"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
}

// Invoice is the invoice aggregate: header plus ordered lines
type Invoice struct {
	Number    string      `json:"number"`
	Type      InvoiceType `json:"type"`
	IssueDate Date        `json:"issue_date"`
	DueDate   *Date       `json:"due_date,omitempty"`
	Currency  string      `json:"currency"`

	// Gross total expressed in the local currency, required for foreign currency
	ConvertedTotal *decimal.Decimal `json:"converted_total,omitempty"`

	Issuer       Party `json:"issuer"`
	Counterparty Party `json:"counterparty"`

	PricesIncludeTax bool `json:"prices_include_tax"`

	NetAmount     decimal.Decimal `json:"net_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	PrepaidAmount decimal.Decimal `json:"prepaid_amount"`
	AmountDue     decimal.Decimal `json:"amount_due"`

	CreditNoteReason string `json:"credit_note_reason,omitempty"`
	PrecedingInvoice string `json:"preceding_invoice,omitempty"`

	Note           string `json:"note,omitempty"`
	BuyerReference string `json:"buyer_reference,omitempty"`
	PaymentTerms   string `json:"payment_terms,omitempty"`
	PaymentDueDays int    `json:"payment_due_days,omitempty"`

	Breakdown []TaxBreakdown `json:"breakdown,omitempty"`
	Lines     []LineItem     `json:"lines"`
}

// IsForeignCurrency reports whether the invoice is not denominated in AED
func (inv *Invoice) IsForeignCurrency() bool {
	return inv.Currency != "" && inv.Currency != LocalCurrency
}

// PaymentTermsNote returns the payment terms text, derived from due days if unset
func (inv *Invoice) PaymentTermsNote() string {
	if inv.PaymentTerms != "" {
		return inv.PaymentTerms
	}
	if inv.PaymentDueDays > 0 {
		return fmt.Sprintf("Payment due within %d days", inv.PaymentDueDays)
	}
	return ""
}

// HasTotals reports whether the caller supplied header totals
func (inv *Invoice) HasTotals() bool {
	return !inv.GrossAmount.IsZero() || !inv.NetAmount.IsZero() || !inv.TaxAmount.IsZero()
}
