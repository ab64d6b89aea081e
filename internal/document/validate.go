package document

import (
	"fmt"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/invoice-engine/internal/decimal"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/tax"
)

// Validate checks mandatory fields and business rules. Every failure is
// collected; it never stops at the first one.
func (s *Serializer) Validate(inv *model.Invoice) model.ValidationErrors {
	var errs model.ValidationErrors

	if inv == nil {
		errs.Add("invoice", nil, model.RuleRequired, "invoice is required")
		return errs
	}

	if inv.Number == "" {
		errs.Add("number", nil, model.RuleRequired, "invoice number is required")
	}
	if !inv.Type.Valid() {
		errs.Add("type", string(inv.Type), model.RuleInvoiceType, "must be standard, credit_note or out_of_scope")
	}
	if inv.IssueDate.IsZero() {
		errs.Add("issue_date", nil, model.RuleRequired, "issue date is required")
	}
	if inv.DueDate != nil && !inv.DueDate.IsZero() && !inv.IssueDate.IsZero() && inv.DueDate.Before(inv.IssueDate.Time) {
		errs.Add("due_date", inv.DueDate.String(), model.RuleDueDate, "due date must not be before issue date")
	}

	validateCurrency(inv, &errs)
	validateParties(inv, &errs)

	if inv.Type.IsCreditNote() {
		if inv.CreditNoteReason == "" {
			errs.Add("credit_note_reason", nil, model.RuleCreditNoteReason, "credit note requires a reason")
		}
		if inv.PrecedingInvoice == "" {
			errs.Add("preceding_invoice", nil, model.RulePrecedingInvoice, "credit note requires the preceding invoice number")
		}
	}

	validateLines(inv, &errs)
	validateTotals(inv, &errs)

	return errs
}

func validateCurrency(inv *model.Invoice, errs *model.ValidationErrors) {
	if inv.Currency == "" {
		errs.Add("currency", nil, model.RuleRequired, "currency code is required")
		return
	}
	if !isCurrencyCode(inv.Currency) {
		errs.Add("currency", inv.Currency, model.RuleCurrency, "must be a 3-letter ISO 4217 code")
		return
	}
	if inv.IsForeignCurrency() && (inv.ConvertedTotal == nil || !money.IsPositive(*inv.ConvertedTotal)) {
		errs.Add("converted_total", nil, model.RuleConvertedTotal,
			fmt.Sprintf("%s total is required when currency is %s", model.LocalCurrency, inv.Currency))
	}
}

func validateParties(inv *model.Invoice, errs *model.ValidationErrors) {
	if inv.Issuer.Name == "" {
		errs.Add("issuer.name", nil, model.RuleRequired, "issuer name is required")
	}
	if inv.Issuer.TaxID == "" {
		errs.Add("issuer.tax_id", nil, model.RuleRequired, "issuer TRN is required")
	} else if !tax.ValidTRN(inv.Issuer.TaxID) {
		errs.Add("issuer.tax_id", inv.Issuer.TaxID, model.RuleTRNFormat, "TRN must be exactly 15 digits")
	}

	if inv.Counterparty.Name == "" {
		errs.Add("counterparty.name", nil, model.RuleRequired, "counterparty name is required")
	}
	if inv.Counterparty.TaxID != "" && !tax.ValidTRN(inv.Counterparty.TaxID) {
		errs.Add("counterparty.tax_id", inv.Counterparty.TaxID, model.RuleTRNFormat, "TRN must be exactly 15 digits")
	}
}

func validateLines(inv *model.Invoice, errs *model.ValidationErrors) {
	if len(inv.Lines) == 0 {
		errs.Add("lines", nil, model.RuleRequired, "at least one line item is required")
		return
	}

	seen := make(map[int]bool, len(inv.Lines))
	for i, l := range inv.Lines {
		field := func(name string) string {
			return fmt.Sprintf("lines[%d].%s", i, name)
		}

		if l.Sequence <= 0 {
			errs.Add(field("sequence"), l.Sequence, model.RuleSequence, "sequence number must be positive")
		} else if seen[l.Sequence] {
			errs.Add(field("sequence"), l.Sequence, model.RuleSequence, "sequence number must be unique")
		}
		seen[l.Sequence] = true

		if l.Name == "" {
			errs.Add(field("name"), nil, model.RuleRequired, "item name is required")
		}
		if !money.IsPositive(l.Quantity) {
			errs.Add(field("quantity"), l.Quantity.String(), model.RuleNonNegative, "quantity must be positive")
		}
		if !money.IsNonNegative(l.UnitPrice) {
			errs.Add(field("unit_price"), l.UnitPrice.String(), model.RuleNonNegative, "unit price must not be negative")
		}
		if l.Category == "" {
			errs.Add(field("tax_code"), l.TaxCode, model.RuleTaxCode, "line amounts have not been calculated for this tax code")
		}
		if !money.WithinTolerance(l.Total, l.Net.Add(l.Tax)) {
			errs.Add(field("total"), money.Format(l.Total), model.RuleTotals, "line total must equal net plus tax")
		}
	}
}

func validateTotals(inv *model.Invoice, errs *model.ValidationErrors) {
	if !money.WithinTolerance(inv.GrossAmount, inv.NetAmount.Add(inv.TaxAmount)) {
		errs.Add("gross_amount", money.Format(inv.GrossAmount), model.RuleTotals,
			fmt.Sprintf("gross must equal net + tax (%s + %s)", money.Format(inv.NetAmount), money.Format(inv.TaxAmount)))
	}
	if !money.IsNonNegative(inv.PrepaidAmount) {
		errs.Add("prepaid_amount", money.Format(inv.PrepaidAmount), model.RuleNonNegative, "prepaid amount must not be negative")
	} else if inv.PrepaidAmount.GreaterThan(inv.GrossAmount) {
		errs.Add("prepaid_amount", money.Format(inv.PrepaidAmount), model.RulePrepaid,
			fmt.Sprintf("prepaid amount must not exceed the gross amount %s", money.Format(inv.GrossAmount)))
	}
	if len(inv.Lines) == 0 {
		return
	}

	nets := make([]decimal.Decimal, 0, len(inv.Lines))
	taxes := make([]decimal.Decimal, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		nets = append(nets, l.Net)
		taxes = append(taxes, l.Tax)
	}
	if !money.WithinTolerance(money.Sum(nets), inv.NetAmount) {
		errs.Add("net_amount", money.Format(inv.NetAmount), model.RuleTotals, "net amount must equal the sum of line nets")
	}
	if !money.WithinTolerance(money.Sum(taxes), inv.TaxAmount) {
		errs.Add("tax_amount", money.Format(inv.TaxAmount), model.RuleTotals, "tax amount must equal the sum of line taxes")
	}

	if len(inv.Breakdown) > 0 {
		bases := make([]decimal.Decimal, 0, len(inv.Breakdown))
		for _, b := range inv.Breakdown {
			bases = append(bases, b.TaxableAmount)
		}
		if !money.WithinTolerance(money.Sum(bases), inv.NetAmount) {
			errs.Add("breakdown", money.Format(money.Sum(bases)), model.RuleTotals, "tax breakdown must cover the net amount")
		}
	}
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
