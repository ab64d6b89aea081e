package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/audit"
	"github.com/rezonia/invoice-engine/internal/model"
)

var (
	auditFormat string
	auditFrom   string
	auditTo     string
	auditOutput string
	auditName   string
)

var auditCmd = &cobra.Command{
	Use:   "audit <issuer-trn>",
	Short: "Export the FTA Audit File for an issuer",
	Long: `Write the FTA Audit File (FAF) of every invoice issued by the issuer,
one row per tax breakdown entry. Requires a database.

Examples:
  invoice-engine audit 100123456700003 -o FAF_2025Q1.csv --from 2025-01-01 --to 2025-03-31
  invoice-engine audit 100123456700003 --type txt`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditFormat, "type", string(audit.FormatCSV), "File type (csv, txt)")
	auditCmd.Flags().StringVar(&auditFrom, "from", "", "First issue date (YYYY-MM-DD)")
	auditCmd.Flags().StringVar(&auditTo, "to", "", "Last issue date (YYYY-MM-DD)")
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "", "Output file (default stdout)")
	auditCmd.Flags().StringVar(&auditName, "company", "", "Company name (default from the latest invoice)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	var period audit.Period
	bounds := []struct {
		value string
		dst   *model.Date
	}{{auditFrom, &period.From}, {auditTo, &period.To}}
	for _, b := range bounds {
		if b.value == "" {
			continue
		}
		d, err := model.ParseDate(b.value)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", b.value, err)
		}
		*b.dst = d
	}

	ctx := cmd.Context()
	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	issuer := args[0]
	history, err := engine.Issuance.History(ctx, issuer)
	if err != nil {
		return err
	}

	company := audit.Company{TRN: issuer, Name: auditName}
	if company.Name == "" && len(history) > 0 {
		company.Name = history[len(history)-1].Invoice.Issuer.Name
	}

	writer := os.Stdout
	if auditOutput != "" {
		f, err := os.Create(auditOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	stats, err := audit.Write(writer, audit.Format(auditFormat), company, period, history)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d invoices, %d rows, VAT %s, gross %s\n",
		stats.Invoices, stats.Rows, stats.VAT.StringFixed(2), stats.Gross.StringFixed(2))
	return nil
}
