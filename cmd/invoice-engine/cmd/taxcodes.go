package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	money "github.com/rezonia/invoice-engine/internal/decimal"
	"github.com/rezonia/invoice-engine/internal/tax"
)

var taxCodesCmd = &cobra.Command{
	Use:   "tax-codes",
	Short: "List the supported tax codes",
	RunE:  runTaxCodes,
}

func init() {
	rootCmd.AddCommand(taxCodesCmd)
}

func runTaxCodes(cmd *cobra.Command, args []string) error {
	defs := tax.DefaultTable().Definitions()
	if outputFormat == "json" {
		return writeJSON(os.Stdout, defs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tCATEGORY\tRATE\tTAXABLE\tNAME")
	for _, d := range defs {
		rate := "-"
		if d.HasRate() {
			rate = money.Format(money.Percent(*d.Rate)) + "%"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", d.Code, d.Category, rate, d.Taxable, d.Name)
	}
	return w.Flush()
}
