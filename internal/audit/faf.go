package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/invoice-engine/internal/decimal"
	"github.com/rezonia/invoice-engine/internal/model"
)

// Format selects the FAF delimiter
type Format string

const (
	FormatCSV Format = "csv"
	FormatTXT Format = "txt"
)

// Headers are the FTA Audit File columns in order
var Headers = []string{
	"TRN",
	"Company Name",
	"Invoice Number",
	"Invoice Date",
	"Invoice Type",
	"Customer TRN",
	"Customer Name",
	"Customer Country",
	"Supplier TRN",
	"Supplier Name",
	"Supplier Country",
	"Transaction Type",
	"Invoice Value (Excl. VAT)",
	"VAT Amount",
	"Total Invoice Value",
	"Currency",
	"Tax Code",
	"VAT Rate %",
	"Payment Date",
	"Payment Method",
	"Status",
}

// Company identifies the taxable person the file is produced for
type Company struct {
	TRN  string
	Name string
}

// Period limits the file to invoices issued in [From, To]. Zero bounds are open.
type Period struct {
	From model.Date
	To   model.Date
}

func (p Period) contains(d model.Date) bool {
	if !p.From.IsZero() && d.Before(p.From.Time) {
		return false
	}
	if !p.To.IsZero() && d.After(p.To.Time) {
		return false
	}
	return true
}

// Stats summarizes a written file
type Stats struct {
	Invoices  int             `json:"invoices"`
	Rows      int             `json:"rows"`
	Customers int             `json:"customers"`
	Net       decimal.Decimal `json:"net"`
	VAT       decimal.Decimal `json:"vat"`
	Gross     decimal.Decimal `json:"gross"`
}

// Write renders issued invoices as an FTA Audit File, one row per tax
// breakdown entry. Credit notes are written with negative amounts.
func Write(w io.Writer, format Format, company Company, period Period, issued []*model.IssuedInvoice) (*Stats, error) {
	cw := csv.NewWriter(w)
	switch format {
	case FormatCSV, "":
	case FormatTXT:
		cw.Comma = '\t'
	default:
		return nil, fmt.Errorf("unsupported audit file format %q", format)
	}

	selected := make([]*model.IssuedInvoice, 0, len(issued))
	for _, ii := range issued {
		if period.contains(ii.Invoice.IssueDate) {
			selected = append(selected, ii)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Artifact.Sequence < selected[j].Artifact.Sequence
	})

	if err := cw.Write(Headers); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	stats := &Stats{Net: money.Zero, VAT: money.Zero, Gross: money.Zero}
	customers := make(map[string]bool)

	for _, ii := range selected {
		inv := &ii.Invoice
		for _, row := range rows(company, inv) {
			if err := cw.Write(row); err != nil {
				return nil, fmt.Errorf("writing %s: %w", inv.Number, err)
			}
			stats.Rows++
		}

		sign := decimal.NewFromInt(1)
		if inv.Type.IsCreditNote() {
			sign = sign.Neg()
		}
		stats.Invoices++
		stats.Net = stats.Net.Add(inv.NetAmount.Mul(sign))
		stats.VAT = stats.VAT.Add(inv.TaxAmount.Mul(sign))
		stats.Gross = stats.Gross.Add(inv.GrossAmount.Mul(sign))
		if inv.Counterparty.TaxID != "" {
			customers[inv.Counterparty.TaxID] = true
		}
	}
	stats.Customers = len(customers)

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flushing audit file: %w", err)
	}
	return stats, nil
}

func rows(company Company, inv *model.Invoice) [][]string {
	sign := decimal.NewFromInt(1)
	if inv.Type.IsCreditNote() {
		sign = sign.Neg()
	}

	customerTRN := inv.Counterparty.TaxID
	if customerTRN == "" {
		customerTRN = "N/A"
	}
	country := inv.Counterparty.Country
	if country == "" {
		country = "AE"
	}

	out := make([][]string, 0, len(inv.Breakdown))
	for _, b := range inv.Breakdown {
		net := b.TaxableAmount.Mul(sign)
		vat := b.TaxAmount.Mul(sign)
		out = append(out, []string{
			company.TRN,
			company.Name,
			inv.Number,
			inv.IssueDate.String(),
			invoiceTypeName(inv.Type),
			customerTRN,
			inv.Counterparty.Name,
			country,
			"",
			"",
			"",
			"Sale",
			money.Format(net),
			money.Format(vat),
			money.Format(net.Add(vat)),
			inv.Currency,
			b.Code,
			money.Format(money.Percent(b.Rate)),
			"",
			"",
			"Issued",
		})
	}
	return out
}

func invoiceTypeName(t model.InvoiceType) string {
	switch t {
	case model.InvoiceTypeCreditNote:
		return "Credit Note"
	case model.InvoiceTypeOutOfScope:
		return "Commercial Invoice"
	default:
		return "Tax Invoice"
	}
}
