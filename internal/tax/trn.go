package tax

import (
	"github.com/shopspring/decimal"

	money "github.com/rezonia/invoice-engine/internal/decimal"
)

// TRNLength is the length of a UAE tax registration number
const TRNLength = 15

// FullInvoiceThreshold is the gross amount (AED) from which a full tax invoice is required
var FullInvoiceThreshold = decimal.NewFromInt(10000)

// Classification of an invoice under FTA rules
type Classification string

const (
	ClassificationFull       Classification = "full"
	ClassificationSimplified Classification = "simplified"
	ClassificationStandard   Classification = "standard"
)

// Label returns the printed document title
func (c Classification) Label() string {
	switch c {
	case ClassificationFull:
		return "TAX INVOICE"
	case ClassificationSimplified:
		return "SIMPLIFIED TAX INVOICE"
	default:
		return "INVOICE"
	}
}

// ValidTRN reports whether s is exactly 15 ASCII digits
func ValidTRN(s string) bool {
	if len(s) != TRNLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatTRN groups a valid TRN for display (123 4567 8901 2345).
// Invalid input is returned unchanged.
func FormatTRN(s string) string {
	if !ValidTRN(s) {
		return s
	}
	return s[:3] + " " + s[3:7] + " " + s[7:11] + " " + s[11:]
}

// ClassifyInvoice decides which invoice form applies to a gross amount
func ClassifyInvoice(gross decimal.Decimal, vatRegistered bool) Classification {
	if !vatRegistered {
		return ClassificationStandard
	}
	if gross.GreaterThanOrEqual(FullInvoiceThreshold) {
		return ClassificationFull
	}
	return ClassificationSimplified
}

// VATReturn is the net VAT position for a period
type VATReturn struct {
	OutputVAT        decimal.Decimal `json:"output_vat"`
	InputVATBills    decimal.Decimal `json:"input_vat_bills"`
	InputVATExpenses decimal.Decimal `json:"input_vat_expenses"`
	TotalInputVAT    decimal.Decimal `json:"total_input_vat"`
	NetVATPayable    decimal.Decimal `json:"net_vat_payable"` // negative means refundable
}

// CalculateVATReturn computes output VAT minus input VAT
func CalculateVATReturn(output, inputBills, inputExpenses decimal.Decimal) VATReturn {
	totalInput := inputBills.Add(inputExpenses)
	return VATReturn{
		OutputVAT:        money.Round(output),
		InputVATBills:    money.Round(inputBills),
		InputVATExpenses: money.Round(inputExpenses),
		TotalInputVAT:    money.Round(totalInput),
		NetVATPayable:    money.Round(output.Sub(totalInput)),
	}
}
