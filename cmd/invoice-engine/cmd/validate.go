package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/document"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/tax"
)

var validateShowDocument bool

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate invoice files",
	Long: `Validate one or more invoice JSON files without issuing them.

Checks performed:
  - Required fields present (number, date, issuer, lines)
  - TRN format (15 digits)
  - Tax codes and computed totals
  - Credit note reason and preceding invoice
  - Foreign currency converted total

Examples:
  invoice-engine validate invoice.json
  invoice-engine validate invoices/*.json -f json
  invoice-engine validate invoice.json --show-document`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateShowDocument, "show-document", false, "Print the canonical document of valid invoices")
}

// ValidationResult holds the result of validating a single file
type ValidationResult struct {
	File     string                 `json:"file"`
	Valid    bool                   `json:"valid"`
	Invoice  *model.Invoice         `json:"invoice,omitempty"`
	Errors   model.ValidationErrors `json:"errors,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Document string                 `json:"document,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args, ".json")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	calculator := tax.NewCalculator(nil)
	serializer := document.NewSerializer()

	results := make([]*ValidationResult, 0, len(files))
	allValid := true
	for _, file := range files {
		result := validateFile(calculator, serializer, file)
		results = append(results, result)
		if !result.Valid {
			allValid = false
		}
	}

	if outputFormat == "json" {
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("✓ %s: VALID (gross %s %s)\n", r.File, r.Invoice.GrossAmount.StringFixed(2), r.Invoice.Currency)
				if r.Document != "" {
					fmt.Println(r.Document)
				}
				continue
			}
			fmt.Printf("✗ %s: INVALID\n", r.File)
			if r.Error != "" {
				fmt.Printf("  - %s\n", r.Error)
			}
			printValidationErrors(r.Errors)
		}
	}

	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}
	return nil
}

func validateFile(calculator *tax.Calculator, serializer *document.Serializer, file string) *ValidationResult {
	result := &ValidationResult{File: file}

	inv, err := readInvoice(file)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if _, errs := calculator.Apply(inv); len(errs) > 0 {
		result.Errors = errs
		return result
	}

	doc, errs, err := serializer.Serialize(inv)
	switch {
	case err != nil:
		result.Error = err.Error()
		return result
	case len(errs) > 0:
		result.Errors = errs
		return result
	}

	result.Valid = true
	result.Invoice = inv
	if validateShowDocument {
		result.Document = string(doc)
	}
	return result
}
