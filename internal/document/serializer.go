package document

import (
	"sort"
	"strconv"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	money "github.com/rezonia/invoice-engine/internal/decimal"
	"github.com/rezonia/invoice-engine/internal/model"
)

// UBL namespaces and PINT-AE profile identifiers
const (
	NamespaceInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NamespaceCAC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NamespaceCBC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"

	UBLVersion      = "2.1"
	CustomizationID = "urn:cen.eu:en16931:2017#compliant#urn:fdc:peppol.eu:2017:poacc:billing:3.0"
	ProfileID       = "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0"

	// EndpointScheme is the Peppol EAS code for UAE tax registration numbers
	EndpointScheme = "0235"

	DefaultUnitCode = "C62"
	DefaultCountry  = "AE"
	taxSchemeVAT    = "VAT"
)

// Serializer renders invoices into canonical UBL documents.
// Output is byte-identical for identical input.
type Serializer struct {
	indent int
}

// NewSerializer creates a serializer with 2-space indentation
func NewSerializer() *Serializer {
	return &Serializer{indent: 2}
}

// Serialize validates inv and renders the canonical document.
// Validation failures are returned as a list with a nil document; err is
// reserved for internal rendering failures.
func (s *Serializer) Serialize(inv *model.Invoice) ([]byte, model.ValidationErrors, error) {
	if errs := s.Validate(inv); len(errs) > 0 {
		return nil, errs, nil
	}

	doc := s.build(inv)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, nil, model.NewXMLGenerationError("Invoice", "writing document", err)
	}
	return out, nil, nil
}

func (s *Serializer) build(inv *model.Invoice) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("Invoice")
	root.CreateAttr("xmlns", NamespaceInvoice)
	root.CreateAttr("xmlns:cac", NamespaceCAC)
	root.CreateAttr("xmlns:cbc", NamespaceCBC)

	cbc(root, "UBLVersionID", UBLVersion)
	cbc(root, "CustomizationID", CustomizationID)
	cbc(root, "ProfileID", ProfileID)

	cbc(root, "ID", inv.Number)
	cbc(root, "IssueDate", inv.IssueDate.String())
	if inv.DueDate != nil && !inv.DueDate.IsZero() {
		cbc(root, "DueDate", inv.DueDate.String())
	}
	typeCode := cbc(root, "InvoiceTypeCode", inv.Type.TypeCode())
	typeCode.CreateAttr("name", inv.Type.TransactionName())
	optional(root, "Note", inv.Note)
	cbc(root, "DocumentCurrencyCode", inv.Currency)
	cbc(root, "TaxCurrencyCode", model.LocalCurrency)
	optional(root, "BuyerReference", inv.BuyerReference)

	if inv.PrecedingInvoice != "" {
		ref := cac(root, "BillingReference")
		docRef := cac(ref, "InvoiceDocumentReference")
		cbc(docRef, "ID", inv.PrecedingInvoice)
	}
	optional(root, "CreditNoteReasonCode", inv.CreditNoteReason)

	s.party(cac(root, "AccountingSupplierParty"), inv.Issuer)
	s.party(cac(root, "AccountingCustomerParty"), inv.Counterparty)

	if note := inv.PaymentTermsNote(); note != "" {
		terms := cac(root, "PaymentTerms")
		cbc(terms, "Note", note)
	}

	s.taxTotal(root, inv)
	s.monetaryTotal(root, inv)

	for _, line := range sortedLines(inv.Lines) {
		s.line(root, inv.Currency, line)
	}

	doc.Indent(s.indent)
	return doc
}

func (s *Serializer) party(parent *etree.Element, p model.Party) {
	party := cac(parent, "Party")

	if p.EndpointID != "" {
		endpoint := cbc(party, "EndpointID", p.EndpointID)
		endpoint.CreateAttr("schemeID", EndpointScheme)
	}

	address := cac(party, "PostalAddress")
	optional(address, "StreetName", p.Street)
	optional(address, "CityName", p.City)
	country := cac(address, "Country")
	cbc(country, "IdentificationCode", countryOrDefault(p.Country))

	if p.TaxID != "" {
		scheme := cac(party, "PartyTaxScheme")
		cbc(scheme, "CompanyID", p.TaxID)
		taxScheme(scheme)
	}

	legal := cac(party, "PartyLegalEntity")
	cbc(legal, "RegistrationName", p.Name)

	if p.Email != "" {
		contact := cac(party, "Contact")
		cbc(contact, "ElectronicMail", p.Email)
	}
}

func (s *Serializer) taxTotal(root *etree.Element, inv *model.Invoice) {
	total := cac(root, "TaxTotal")
	amount(total, "TaxAmount", inv.Currency, inv.TaxAmount)

	for _, b := range inv.Breakdown {
		sub := cac(total, "TaxSubtotal")
		amount(sub, "TaxableAmount", inv.Currency, b.TaxableAmount)
		amount(sub, "TaxAmount", inv.Currency, b.TaxAmount)
		category := cac(sub, "TaxCategory")
		cbc(category, "ID", b.Category)
		cbc(category, "Percent", money.Format(money.Percent(b.Rate)))
		taxScheme(category)
	}
}

func (s *Serializer) monetaryTotal(root *etree.Element, inv *model.Invoice) {
	total := cac(root, "LegalMonetaryTotal")
	amount(total, "LineExtensionAmount", inv.Currency, inv.NetAmount)
	amount(total, "TaxExclusiveAmount", inv.Currency, inv.NetAmount)
	amount(total, "TaxInclusiveAmount", inv.Currency, inv.GrossAmount)
	if !inv.PrepaidAmount.IsZero() {
		amount(total, "PrepaidAmount", inv.Currency, inv.PrepaidAmount)
	}
	amount(total, "PayableAmount", inv.Currency, payable(inv))
	if inv.IsForeignCurrency() && inv.ConvertedTotal != nil {
		amount(total, "PayableAlternativeAmount", model.LocalCurrency, *inv.ConvertedTotal)
	}
}

func (s *Serializer) line(root *etree.Element, currency string, l model.LineItem) {
	el := cac(root, "InvoiceLine")
	cbc(el, "ID", strconv.Itoa(l.Sequence))

	qty := cbc(el, "InvoicedQuantity", formatQuantity(l.Quantity))
	unit := l.UnitCode
	if unit == "" {
		unit = DefaultUnitCode
	}
	qty.CreateAttr("unitCode", unit)

	amount(el, "LineExtensionAmount", currency, l.Net)

	item := cac(el, "Item")
	optional(item, "Description", l.Description)
	cbc(item, "Name", l.Name)
	if l.ItemCode != "" {
		sellers := cac(item, "SellersItemIdentification")
		cbc(sellers, "ID", l.ItemCode)
	}
	category := cac(item, "ClassifiedTaxCategory")
	cbc(category, "ID", l.Category)
	cbc(category, "Percent", money.Format(money.Percent(l.Rate)))
	taxScheme(category)

	price := cac(el, "Price")
	amount(price, "PriceAmount", currency, l.UnitPrice)
}

// payable falls back to the gross total when no amount due was computed
func payable(inv *model.Invoice) decimal.Decimal {
	if inv.AmountDue.IsZero() && inv.PrepaidAmount.IsZero() {
		return inv.GrossAmount
	}
	return inv.AmountDue
}

func sortedLines(lines []model.LineItem) []model.LineItem {
	out := make([]model.LineItem, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

func cbc(parent *etree.Element, tag, text string) *etree.Element {
	el := parent.CreateElement("cbc:" + tag)
	el.SetText(text)
	return el
}

func cac(parent *etree.Element, tag string) *etree.Element {
	return parent.CreateElement("cac:" + tag)
}

func optional(parent *etree.Element, tag, text string) {
	if text != "" {
		cbc(parent, tag, text)
	}
}

func amount(parent *etree.Element, tag, currency string, v decimal.Decimal) {
	el := cbc(parent, tag, money.Format(v))
	el.CreateAttr("currencyID", currency)
}

func taxScheme(parent *etree.Element) {
	scheme := cac(parent, "TaxScheme")
	cbc(scheme, "ID", taxSchemeVAT)
}

func countryOrDefault(c string) string {
	if c == "" {
		return DefaultCountry
	}
	return c
}

// formatQuantity keeps at least 2 fraction digits without truncating precision
func formatQuantity(q decimal.Decimal) string {
	if q.Exponent() < -money.Places {
		return q.String()
	}
	return q.StringFixed(money.Places)
}
