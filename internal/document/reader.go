package document

import (
	"bytes"
	"encoding/xml"

	"github.com/shopspring/decimal"

	"github.com/rezonia/invoice-engine/internal/model"
)

// Canonical document structures, matched by local element name
type ublInvoice struct {
	XMLName         xml.Name      `xml:"Invoice"`
	ID              string        `xml:"ID"`
	IssueDate       string        `xml:"IssueDate"`
	InvoiceTypeCode string        `xml:"InvoiceTypeCode"`
	Currency        string        `xml:"DocumentCurrencyCode"`
	Preceding       string        `xml:"BillingReference>InvoiceDocumentReference>ID"`
	Supplier        ublParty      `xml:"AccountingSupplierParty>Party"`
	Customer        ublParty      `xml:"AccountingCustomerParty>Party"`
	TaxTotal        ublTaxTotal   `xml:"TaxTotal"`
	MonetaryTotal   ublMonetary   `xml:"LegalMonetaryTotal"`
	Lines           []ublLineStub `xml:"InvoiceLine"`
}

type ublParty struct {
	EndpointID string `xml:"EndpointID"`
	CompanyID  string `xml:"PartyTaxScheme>CompanyID"`
	Name       string `xml:"PartyLegalEntity>RegistrationName"`
}

type ublTaxTotal struct {
	TaxAmount string `xml:"TaxAmount"`
}

type ublMonetary struct {
	LineExtension string `xml:"LineExtensionAmount"`
	TaxInclusive  string `xml:"TaxInclusiveAmount"`
	Payable       string `xml:"PayableAmount"`
}

type ublLineStub struct {
	ID string `xml:"ID"`
}

// Summary holds the identity fields of a canonical document
type Summary struct {
	InvoiceNumber          string          `json:"invoice_number"`
	TypeCode               string          `json:"type_code"`
	IssueDate              model.Date      `json:"issue_date"`
	Currency               string          `json:"currency"`
	IssuerName             string          `json:"issuer_name"`
	IssuerTaxID            string          `json:"issuer_tax_id"`
	IssuerEndpointID       string          `json:"issuer_endpoint_id,omitempty"`
	CounterpartyName       string          `json:"counterparty_name"`
	CounterpartyTaxID      string          `json:"counterparty_tax_id,omitempty"`
	CounterpartyEndpointID string          `json:"counterparty_endpoint_id,omitempty"`
	PrecedingInvoice       string          `json:"preceding_invoice,omitempty"`
	NetTotal               decimal.Decimal `json:"net_total"`
	TaxTotal               decimal.Decimal `json:"tax_total"`
	GrossTotal             decimal.Decimal `json:"gross_total"`
	PayableTotal           decimal.Decimal `json:"payable_total"`
	LineCount              int             `json:"line_count"`
}

// ChainFields returns the chain hash inputs carried by the document
func (s *Summary) ChainFields() model.ChainFields {
	return model.ChainFields{
		InvoiceNumber:     s.InvoiceNumber,
		IssueDate:         s.IssueDate,
		IssuerTaxID:       s.IssuerTaxID,
		CounterpartyTaxID: s.CounterpartyTaxID,
		GrossTotal:        s.GrossTotal,
		TaxTotal:          s.TaxTotal,
	}
}

// ReadSummary parses a canonical document back into its identity fields so
// hashes can be recomputed from the document alone
func ReadSummary(data []byte) (*Summary, error) {
	var doc ublInvoice
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, model.NewParseError("document", "Invoice", "failed to decode XML", err)
	}

	if doc.ID == "" {
		return nil, model.NewParseError("document", "ID", "missing invoice number", nil)
	}

	issueDate, err := model.ParseDate(doc.IssueDate)
	if err != nil {
		return nil, model.NewParseError("document", "IssueDate", "invalid date", err)
	}

	s := &Summary{
		InvoiceNumber:          doc.ID,
		TypeCode:               doc.InvoiceTypeCode,
		IssueDate:              issueDate,
		Currency:               doc.Currency,
		IssuerName:             doc.Supplier.Name,
		IssuerTaxID:            doc.Supplier.CompanyID,
		IssuerEndpointID:       doc.Supplier.EndpointID,
		CounterpartyName:       doc.Customer.Name,
		CounterpartyTaxID:      doc.Customer.CompanyID,
		CounterpartyEndpointID: doc.Customer.EndpointID,
		PrecedingInvoice:       doc.Preceding,
		LineCount:              len(doc.Lines),
	}

	amounts := []struct {
		field string
		raw   string
		dst   *decimal.Decimal
	}{
		{"LineExtensionAmount", doc.MonetaryTotal.LineExtension, &s.NetTotal},
		{"TaxAmount", doc.TaxTotal.TaxAmount, &s.TaxTotal},
		{"TaxInclusiveAmount", doc.MonetaryTotal.TaxInclusive, &s.GrossTotal},
		{"PayableAmount", doc.MonetaryTotal.Payable, &s.PayableTotal},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.raw)
		if err != nil {
			return nil, model.NewParseError("document", a.field, "invalid amount", err)
		}
		*a.dst = v
	}

	return s, nil
}
