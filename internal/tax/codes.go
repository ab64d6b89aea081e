package tax

import (
	"github.com/shopspring/decimal"

	"github.com/rezonia/invoice-engine/internal/model"
)

// Code is a tax treatment applied to a line item
type Code string

const (
	StandardRated Code = "SR"
	ZeroRated     Code = "ZR"
	Exempt        Code = "ES"
	ReverseCharge Code = "RC"
	OutOfScope    Code = "OP"
)

// StandardRate is the UAE standard VAT rate
var StandardRate = decimal.RequireFromString("0.05")

// Definition describes the treatment of one tax code
type Definition struct {
	Code          Code             `json:"code"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Rate          *decimal.Decimal `json:"rate"` // nil when the code carries no rate
	Taxable       bool             `json:"taxable"`
	ReverseCharge bool             `json:"reverse_charge"`
	Category      string           `json:"category"` // UNCL5305 tax category
}

// HasRate reports whether the code applies a percentage
func (d Definition) HasRate() bool {
	return d.Rate != nil
}

// RateOrZero returns the rate, or zero for codes without one
func (d Definition) RateOrZero() decimal.Decimal {
	if d.Rate == nil {
		return decimal.Zero
	}
	return *d.Rate
}

// Table is an ordered, fixed set of tax code definitions
type Table struct {
	defs []Definition
}

func ratePtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// DefaultTable returns the UAE FTA tax code table
func DefaultTable() *Table {
	return &Table{
		defs: []Definition{
			{
				Code:        StandardRated,
				Name:        "Standard-rated",
				Description: "Most goods and services, commercial real estate",
				Rate:        ratePtr(StandardRate),
				Taxable:     true,
				Category:    "S",
			},
			{
				Code:        ZeroRated,
				Name:        "Zero-rated",
				Description: "Exports, international transport, first sale of residential property, healthcare, education",
				Rate:        ratePtr(decimal.Zero),
				Taxable:     true,
				Category:    "Z",
			},
			{
				Code:        Exempt,
				Name:        "Exempt",
				Description: "Subsequent residential property sales, bare land, financial services",
				Category:    "E",
			},
			{
				Code:          ReverseCharge,
				Name:          "Reverse charge",
				Description:   "Recipient accounts for VAT on imports",
				Rate:          ratePtr(StandardRate),
				Taxable:       true,
				ReverseCharge: true,
				Category:      "AE",
			},
			{
				Code:        OutOfScope,
				Name:        "Out of scope",
				Description: "Supplies outside the scope of UAE VAT",
				Category:    "O",
			},
		},
	}
}

// Lookup returns the definition for a code
func (t *Table) Lookup(code string) (Definition, error) {
	for _, d := range t.defs {
		if string(d.Code) == code {
			return d, nil
		}
	}
	return Definition{}, model.NewValidationError("tax_code", code, model.RuleTaxCode,
		"unrecognized tax code, expected one of SR, ZR, ES, RC, OP")
}

// Definitions returns all definitions in table order
func (t *Table) Definitions() []Definition {
	out := make([]Definition, len(t.defs))
	copy(out, t.defs)
	return out
}

// position returns the table index of a code, used for breakdown ordering
func (t *Table) position(code Code) int {
	for i, d := range t.defs {
		if d.Code == code {
			return i
		}
	}
	return len(t.defs)
}
