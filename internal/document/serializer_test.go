package document_test

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/invoice-engine/internal/document"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/tax"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// sampleInvoice returns a calculated two-line invoice
func sampleInvoice(t *testing.T) *model.Invoice {
	t.Helper()

	inv := &model.Invoice{
		Number:    "INV-2025-0001",
		Type:      model.InvoiceTypeStandard,
		IssueDate: model.NewDate(2025, 1, 15),
		Currency:  "AED",
		Issuer: model.Party{
			Name:       "Gulf Trading LLC",
			TaxID:      "100123456700003",
			EndpointID: "100123456700003",
			Street:     "Sheikh Zayed Road",
			City:       "Dubai",
		},
		Counterparty: model.Party{
			Name:  "Desert Supplies FZE",
			TaxID: "100987654300003",
			City:  "Abu Dhabi",
		},
		Lines: []model.LineItem{
			{Sequence: 2, Name: "Export freight", Quantity: d("1"), UnitPrice: d("500.00"), TaxCode: "ZR"},
			{Sequence: 1, Name: "Consulting", ItemCode: "SVC-01", Quantity: d("2"), UnitPrice: d("500.00"), TaxCode: "SR"},
		},
	}

	_, errs := tax.NewCalculator(nil).Apply(inv)
	require.Empty(t, errs)
	return inv
}

func serialize(t *testing.T, inv *model.Invoice) string {
	t.Helper()
	out, errs, err := document.NewSerializer().Serialize(inv)
	require.NoError(t, err)
	require.Empty(t, errs, "unexpected validation errors: %v", errs)
	return string(out)
}

func TestSerialize_Deterministic(t *testing.T) {
	s := document.NewSerializer()

	first, errs, err := s.Serialize(sampleInvoice(t))
	require.NoError(t, err)
	require.Empty(t, errs)

	second, errs, err := s.Serialize(sampleInvoice(t))
	require.NoError(t, err)
	require.Empty(t, errs)

	assert.True(t, bytes.Equal(first, second))
	assert.Equal(t, sha256.Sum256(first), sha256.Sum256(second))
}

func TestSerialize_ElementOrder(t *testing.T) {
	out := serialize(t, sampleInvoice(t))

	order := []string{
		"<?xml version=\"1.0\" encoding=\"UTF-8\"?>",
		"<cbc:UBLVersionID>2.1</cbc:UBLVersionID>",
		"<cbc:CustomizationID>",
		"<cbc:ProfileID>",
		"<cbc:ID>INV-2025-0001</cbc:ID>",
		"<cbc:IssueDate>2025-01-15</cbc:IssueDate>",
		`<cbc:InvoiceTypeCode name="TAX_INVOICE">380</cbc:InvoiceTypeCode>`,
		"<cbc:DocumentCurrencyCode>AED</cbc:DocumentCurrencyCode>",
		"<cac:AccountingSupplierParty>",
		"<cac:AccountingCustomerParty>",
		"<cac:TaxTotal>",
		`<cbc:TaxAmount currencyID="AED">50.00</cbc:TaxAmount>`,
		`<cbc:TaxableAmount currencyID="AED">1000.00</cbc:TaxableAmount>`,
		`<cbc:TaxableAmount currencyID="AED">500.00</cbc:TaxableAmount>`,
		"<cac:LegalMonetaryTotal>",
		`<cbc:LineExtensionAmount currencyID="AED">1500.00</cbc:LineExtensionAmount>`,
		`<cbc:TaxInclusiveAmount currencyID="AED">1550.00</cbc:TaxInclusiveAmount>`,
		`<cbc:PayableAmount currencyID="AED">1550.00</cbc:PayableAmount>`,
		"<cbc:Name>Consulting</cbc:Name>",
		"<cbc:Name>Export freight</cbc:Name>",
	}

	last := -1
	for _, fragment := range order {
		idx := strings.Index(out, fragment)
		require.GreaterOrEqual(t, idx, 0, "missing %q", fragment)
		assert.Greater(t, idx, last, "%q out of order", fragment)
		last = idx
	}
}

func TestSerialize_LineContent(t *testing.T) {
	out := serialize(t, sampleInvoice(t))

	assert.Contains(t, out, `<cbc:InvoicedQuantity unitCode="C62">2.00</cbc:InvoicedQuantity>`)
	assert.Contains(t, out, `<cbc:PriceAmount currencyID="AED">500.00</cbc:PriceAmount>`)
	assert.Contains(t, out, "<cbc:Percent>5.00</cbc:Percent>")
	assert.Contains(t, out, "<cbc:Percent>0.00</cbc:Percent>")
	assert.Contains(t, out, "<cac:SellersItemIdentification>")
	assert.Contains(t, out, `<cbc:EndpointID schemeID="0235">100123456700003</cbc:EndpointID>`)
	assert.Contains(t, out, "<cbc:IdentificationCode>AE</cbc:IdentificationCode>")
}

func TestSerialize_OmitsAbsentOptionalFields(t *testing.T) {
	out := serialize(t, sampleInvoice(t))

	for _, tag := range []string{
		"DueDate", "Note>", "BuyerReference", "BillingReference", "CreditNoteReasonCode",
		"PaymentTerms", "PrepaidAmount", "PayableAlternativeAmount", "ElectronicMail",
		"<cbc:Description>",
	} {
		assert.NotContains(t, out, tag)
	}
}

func TestSerialize_OptionalFieldsPresent(t *testing.T) {
	inv := sampleInvoice(t)
	due := model.NewDate(2025, 2, 14)
	inv.DueDate = &due
	inv.Note = "Thank you"
	inv.BuyerReference = "PO-778"
	inv.PaymentDueDays = 30
	inv.Counterparty.Email = "ap@desert.example"

	out := serialize(t, inv)

	assert.Contains(t, out, "<cbc:DueDate>2025-02-14</cbc:DueDate>")
	assert.Contains(t, out, "<cbc:Note>Thank you</cbc:Note>")
	assert.Contains(t, out, "<cbc:BuyerReference>PO-778</cbc:BuyerReference>")
	assert.Contains(t, out, "<cbc:Note>Payment due within 30 days</cbc:Note>")
	assert.Contains(t, out, "<cbc:ElectronicMail>ap@desert.example</cbc:ElectronicMail>")
	assert.Less(t, strings.Index(out, "DueDate"), strings.Index(out, "InvoiceTypeCode"))
}

func TestSerialize_EscapesReservedCharacters(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Counterparty.Name = `A & B <Trading> "Quoted" 'Single'`

	out := serialize(t, inv)

	assert.Contains(t, out, "A &amp; B &lt;Trading&gt; &quot;Quoted&quot; &apos;Single&apos;")
	assert.NotContains(t, out, "<Trading>")

	summary, err := document.ReadSummary([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, `A & B <Trading> "Quoted" 'Single'`, summary.CounterpartyName)
}

func TestSerialize_CreditNote(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Type = model.InvoiceTypeCreditNote
	inv.CreditNoteReason = "Returned goods"
	inv.PrecedingInvoice = "INV-2024-0099"

	out := serialize(t, inv)

	assert.Contains(t, out, `<cbc:InvoiceTypeCode name="CREDIT_NOTE">381</cbc:InvoiceTypeCode>`)
	assert.Contains(t, out, "<cbc:CreditNoteReasonCode>Returned goods</cbc:CreditNoteReasonCode>")
	assert.Less(t, strings.Index(out, "<cac:BillingReference>"), strings.Index(out, "<cac:AccountingSupplierParty>"))
	assert.Contains(t, out, "<cbc:ID>INV-2024-0099</cbc:ID>")
}

func TestSerialize_ForeignCurrency(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Currency = "USD"

	_, errs, err := document.NewSerializer().Serialize(inv)
	require.NoError(t, err)
	assert.True(t, errs.Has("converted_total", model.RuleConvertedTotal))

	converted := d("5692.38")
	inv.ConvertedTotal = &converted
	out := serialize(t, inv)
	assert.Contains(t, out, `<cbc:PayableAlternativeAmount currencyID="AED">5692.38</cbc:PayableAlternativeAmount>`)
	assert.Contains(t, out, `<cbc:TaxAmount currencyID="USD">50.00</cbc:TaxAmount>`)
	assert.Contains(t, out, "<cbc:TaxCurrencyCode>AED</cbc:TaxCurrencyCode>")
}

func TestSerialize_PrepaidAmount(t *testing.T) {
	inv := sampleInvoice(t)
	inv.PrepaidAmount = d("550.00")
	inv.AmountDue = inv.GrossAmount.Sub(inv.PrepaidAmount)

	out := serialize(t, inv)
	assert.Contains(t, out, `<cbc:PrepaidAmount currencyID="AED">550.00</cbc:PrepaidAmount>`)
	assert.Contains(t, out, `<cbc:PayableAmount currencyID="AED">1000.00</cbc:PayableAmount>`)
}

func TestValidate_PrepaidAmount(t *testing.T) {
	s := document.NewSerializer()
	inv := sampleInvoice(t)

	inv.PrepaidAmount = inv.GrossAmount
	inv.AmountDue = decimal.Zero
	assert.Empty(t, s.Validate(inv))

	inv.PrepaidAmount = d("99999.00")
	inv.AmountDue = inv.GrossAmount.Sub(inv.PrepaidAmount)
	errs := s.Validate(inv)
	assert.True(t, errs.Has("prepaid_amount", model.RulePrepaid))

	inv.PrepaidAmount = d("-1.00")
	errs = s.Validate(inv)
	assert.True(t, errs.Has("prepaid_amount", model.RuleNonNegative))
	assert.False(t, errs.Has("prepaid_amount", model.RulePrepaid))
}

func TestValidate_DueDateBeforeIssueDate(t *testing.T) {
	inv := sampleInvoice(t)
	due := model.NewDate(2025, 1, 10)
	inv.DueDate = &due

	errs := document.NewSerializer().Validate(inv)
	assert.True(t, errs.Has("due_date", model.RuleDueDate))
	assert.False(t, errs.Has("due_date", model.RuleRequired))

	due = model.NewDate(2025, 2, 15)
	assert.Empty(t, document.NewSerializer().Validate(inv))
}

func TestSerialize_FractionalQuantityKeepsPrecision(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Lines[1].Quantity = d("2.125")
	inv.NetAmount, inv.TaxAmount, inv.GrossAmount = decimal.Zero, decimal.Zero, decimal.Zero
	_, errs := tax.NewCalculator(nil).Apply(inv)
	require.Empty(t, errs)

	out := serialize(t, inv)
	assert.Contains(t, out, `<cbc:InvoicedQuantity unitCode="C62">2.125</cbc:InvoicedQuantity>`)
}

func TestValidate_TRNLength(t *testing.T) {
	s := document.NewSerializer()

	inv := sampleInvoice(t)
	inv.Issuer.TaxID = "10012345670000" // 14 digits
	errs := s.Validate(inv)
	assert.True(t, errs.Has("issuer.tax_id", model.RuleTRNFormat))

	inv.Issuer.TaxID = "100123456700003"
	assert.Empty(t, s.Validate(inv))

	inv.Counterparty.TaxID = "1009876543ABCDE"
	errs = s.Validate(inv)
	assert.True(t, errs.Has("counterparty.tax_id", model.RuleTRNFormat))
}

func TestValidate_CounterpartyTaxIDOptional(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Counterparty.TaxID = ""

	out := serialize(t, inv)
	// only the issuer carries a PartyTaxScheme
	assert.Equal(t, 1, strings.Count(out, "<cac:PartyTaxScheme>"))
}

func TestValidate_CreditNoteRequirements(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Type = model.InvoiceTypeCreditNote

	errs := document.NewSerializer().Validate(inv)
	require.Len(t, errs, 2)
	assert.True(t, errs.Has("credit_note_reason", model.RuleCreditNoteReason))
	assert.True(t, errs.Has("preceding_invoice", model.RulePrecedingInvoice))

	inv.CreditNoteReason = "Price correction"
	errs = document.NewSerializer().Validate(inv)
	require.Len(t, errs, 1)
	assert.True(t, errs.Has("preceding_invoice", model.RulePrecedingInvoice))
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	inv := &model.Invoice{Type: model.InvoiceTypeStandard}

	errs := document.NewSerializer().Validate(inv)

	assert.True(t, errs.Has("number", model.RuleRequired))
	assert.True(t, errs.Has("issue_date", model.RuleRequired))
	assert.True(t, errs.Has("currency", model.RuleRequired))
	assert.True(t, errs.Has("issuer.name", model.RuleRequired))
	assert.True(t, errs.Has("issuer.tax_id", model.RuleRequired))
	assert.True(t, errs.Has("counterparty.name", model.RuleRequired))
	assert.True(t, errs.Has("lines", model.RuleRequired))
}

func TestValidate_TotalsTolerance(t *testing.T) {
	s := document.NewSerializer()

	inv := sampleInvoice(t)
	inv.GrossAmount = inv.GrossAmount.Add(d("0.01"))
	inv.AmountDue = inv.GrossAmount
	assert.False(t, s.Validate(inv).Has("gross_amount", model.RuleTotals))

	inv.GrossAmount = inv.GrossAmount.Add(d("0.01"))
	assert.True(t, s.Validate(inv).Has("gross_amount", model.RuleTotals))
}

func TestValidate_LineSequence(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Lines[0].Sequence = 1

	errs := document.NewSerializer().Validate(inv)
	assert.True(t, errs.Has("lines[1].sequence", model.RuleSequence))

	inv.Lines[0].Sequence = 0
	errs = document.NewSerializer().Validate(inv)
	assert.True(t, errs.Has("lines[0].sequence", model.RuleSequence))
}

func TestValidate_Currency(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Currency = "dirham"

	errs := document.NewSerializer().Validate(inv)
	assert.True(t, errs.Has("currency", model.RuleCurrency))
}

func TestValidate_UncalculatedLines(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Lines[0].Category = ""

	errs := document.NewSerializer().Validate(inv)
	assert.True(t, errs.Has("lines[0].tax_code", model.RuleTaxCode))
}

func TestSerialize_InvalidReturnsNoDocument(t *testing.T) {
	inv := sampleInvoice(t)
	inv.Number = ""

	out, errs, err := document.NewSerializer().Serialize(inv)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.NotEmpty(t, errs)
}
