package tax

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/invoice-engine/internal/decimal"
	"github.com/rezonia/invoice-engine/internal/model"
)

// LineResult holds the rounded amounts for one line
type LineResult struct {
	Code     Code            `json:"code"`
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
	HasRate  bool            `json:"has_rate"`
	Taxable  bool            `json:"taxable"`
	Net      decimal.Decimal `json:"net"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Summary holds invoice level totals.
//
// Totals are sums of per-line rounded amounts. This keeps every line auditable
// on its own and may differ by a fraction of a cent from rounding the sum of
// unrounded amounts.
type Summary struct {
	Subtotal           decimal.Decimal      `json:"subtotal"`
	TotalTax           decimal.Decimal      `json:"total_tax"`
	GrandTotal         decimal.Decimal      `json:"grand_total"`
	TaxableTurnover    decimal.Decimal      `json:"taxable_turnover"`
	NonTaxableTurnover decimal.Decimal      `json:"non_taxable_turnover"`
	Breakdown          []model.TaxBreakdown `json:"breakdown"`
}

// Calculator computes VAT amounts against a fixed tax code table
type Calculator struct {
	table *Table
}

// NewCalculator creates a calculator; a nil table uses DefaultTable
func NewCalculator(table *Table) *Calculator {
	if table == nil {
		table = DefaultTable()
	}
	return &Calculator{table: table}
}

// Table returns the code table used by the calculator
func (c *Calculator) Table() *Table {
	return c.table
}

// Calculate computes net, tax and total for quantity x unitPrice.
// With inclusive pricing the unit price already contains VAT.
func (c *Calculator) Calculate(quantity, unitPrice decimal.Decimal, code string, inclusive bool) (LineResult, error) {
	def, err := c.table.Lookup(code)
	if err != nil {
		return LineResult{}, err
	}

	result := LineResult{
		Code:     def.Code,
		Category: def.Category,
		Rate:     def.RateOrZero(),
		HasRate:  def.HasRate(),
		Taxable:  def.Taxable,
	}

	amount := quantity.Mul(unitPrice)

	if !def.HasRate() {
		result.Net = money.Round(amount)
		result.Tax = money.Zero
		result.Total = result.Net
		return result, nil
	}

	rate := *def.Rate
	if inclusive {
		gross := amount
		net := gross.Div(decimal.NewFromInt(1).Add(rate))
		result.Total = money.Round(gross)
		result.Net = money.Round(net)
		result.Tax = money.Round(gross.Sub(net))
		// keep net + tax == total on the rounded values
		if !result.Net.Add(result.Tax).Equal(result.Total) {
			result.Tax = result.Total.Sub(result.Net)
		}
		return result, nil
	}

	result.Net = money.Round(amount)
	result.Tax = money.Round(result.Net.Mul(rate))
	result.Total = result.Net.Add(result.Tax)
	return result, nil
}

// Aggregate sums line results and partitions them by (code, rate)
func (c *Calculator) Aggregate(results []LineResult) Summary {
	s := Summary{
		Subtotal:           money.Zero,
		TotalTax:           money.Zero,
		GrandTotal:         money.Zero,
		TaxableTurnover:    money.Zero,
		NonTaxableTurnover: money.Zero,
		Breakdown:          make([]model.TaxBreakdown, 0),
	}

	index := make(map[string]int)
	for _, r := range results {
		s.Subtotal = s.Subtotal.Add(r.Net)
		s.TotalTax = s.TotalTax.Add(r.Tax)
		s.GrandTotal = s.GrandTotal.Add(r.Total)
		if r.Taxable {
			s.TaxableTurnover = s.TaxableTurnover.Add(r.Net)
		} else {
			s.NonTaxableTurnover = s.NonTaxableTurnover.Add(r.Net)
		}

		key := string(r.Code) + "|" + r.Rate.String()
		i, ok := index[key]
		if !ok {
			i = len(s.Breakdown)
			index[key] = i
			s.Breakdown = append(s.Breakdown, model.TaxBreakdown{
				Code:          string(r.Code),
				Category:      r.Category,
				Rate:          r.Rate,
				Taxable:       r.Taxable,
				TaxableAmount: money.Zero,
				TaxAmount:     money.Zero,
			})
		}
		s.Breakdown[i].TaxableAmount = s.Breakdown[i].TaxableAmount.Add(r.Net)
		s.Breakdown[i].TaxAmount = s.Breakdown[i].TaxAmount.Add(r.Tax)
	}

	sort.SliceStable(s.Breakdown, func(i, j int) bool {
		pi := c.table.position(Code(s.Breakdown[i].Code))
		pj := c.table.position(Code(s.Breakdown[j].Code))
		if pi != pj {
			return pi < pj
		}
		return s.Breakdown[i].Rate.LessThan(s.Breakdown[j].Rate)
	})

	return s
}

// Apply calculates every line of inv in place and sets header totals and
// breakdown. It returns the summary and collected validation failures.
func (c *Calculator) Apply(inv *model.Invoice) (Summary, model.ValidationErrors) {
	var errs model.ValidationErrors
	results := make([]LineResult, 0, len(inv.Lines))

	for i := range inv.Lines {
		line := &inv.Lines[i]
		r, err := c.Calculate(line.Quantity, line.UnitPrice, line.TaxCode, inv.PricesIncludeTax)
		if err != nil {
			if ve, ok := err.(*model.ValidationError); ok {
				ve.Field = lineField(i, "tax_code")
				errs = append(errs, ve)
				continue
			}
			errs.Add(lineField(i, "tax_code"), line.TaxCode, model.RuleTaxCode, err.Error())
			continue
		}
		line.Category = r.Category
		line.Rate = r.Rate
		line.Net = r.Net
		line.Tax = r.Tax
		line.Total = r.Total
		results = append(results, r)
	}

	summary := c.Aggregate(results)
	if len(errs) > 0 {
		return summary, errs
	}

	if inv.HasTotals() {
		checks := []struct {
			field    string
			supplied decimal.Decimal
			computed decimal.Decimal
		}{
			{"net_amount", inv.NetAmount, summary.Subtotal},
			{"tax_amount", inv.TaxAmount, summary.TotalTax},
			{"gross_amount", inv.GrossAmount, summary.GrandTotal},
		}
		for _, ck := range checks {
			if !money.WithinTolerance(ck.supplied, ck.computed) {
				errs.Add(ck.field, money.Format(ck.supplied), model.RuleTotals,
					fmt.Sprintf("does not match sum of lines %s", money.Format(ck.computed)))
			}
		}
		if len(errs) > 0 {
			return summary, errs
		}
	}

	inv.NetAmount = summary.Subtotal
	inv.TaxAmount = summary.TotalTax
	inv.GrossAmount = summary.GrandTotal
	inv.AmountDue = summary.GrandTotal.Sub(inv.PrepaidAmount)
	inv.Breakdown = summary.Breakdown
	return summary, nil
}

func lineField(i int, name string) string {
	return fmt.Sprintf("lines[%d].%s", i, name)
}
