package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/pkg/invoicelib"
)

var (
	issueOutDir   string
	issueEnvelope bool
)

var issueCmd = &cobra.Command{
	Use:   "issue [files...]",
	Short: "Issue invoices from JSON files",
	Long: `Calculate, serialize, chain and sign one or more invoices.

Files are issued in the order given, so their chain order follows the
command line. With --out-dir the canonical document, the signed envelope
and the verification bundle are written for each issued invoice.

Examples:
  invoice-engine issue invoice.json
  invoice-engine issue invoices/ --out-dir ./issued -f json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIssue,
}

func init() {
	rootCmd.AddCommand(issueCmd)

	issueCmd.Flags().StringVarP(&issueOutDir, "out-dir", "o", "", "Directory for issued documents")
	issueCmd.Flags().BoolVar(&issueEnvelope, "envelope", true, "Also write the XMLDSig envelope")
}

// IssueResult holds the outcome for a single file
type IssueResult struct {
	File     string                 `json:"file"`
	Issued   bool                   `json:"issued"`
	Invoice  string                 `json:"invoice_number,omitempty"`
	Artifact *model.Artifact        `json:"artifact,omitempty"`
	Errors   model.ValidationErrors `json:"errors,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func runIssue(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args, ".json")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no invoice files found")
	}

	ctx := cmd.Context()
	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	if issueOutDir != "" {
		if err := os.MkdirAll(issueOutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	results := make([]*IssueResult, 0, len(files))
	failed := false
	for _, file := range files {
		printVerbose("Issuing: %s\n", file)

		result := issueFile(ctx, engine, file)
		results = append(results, result)
		if !result.Issued {
			failed = true
		}
	}

	if outputFormat == "json" {
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Issued {
				fmt.Printf("✓ %s: %s #%d\n", r.File, r.Invoice, r.Artifact.Sequence)
				fmt.Printf("  Chain:   %s\n", r.Artifact.ChainHash)
				fmt.Printf("  Content: %s\n", r.Artifact.ContentHash)
				fmt.Printf("  Mode:    %s\n", r.Artifact.Mode)
				continue
			}
			fmt.Printf("✗ %s: NOT ISSUED\n", r.File)
			if r.Error != "" {
				fmt.Printf("  - %s\n", r.Error)
			}
			printValidationErrors(r.Errors)
		}
		for _, w := range engine.Signer.Warnings() {
			fmt.Printf("⚠ %s\n", w)
		}
	}

	if failed {
		return fmt.Errorf("some invoices were not issued")
	}
	return nil
}

func issueFile(ctx context.Context, engine *invoicelib.Engine, file string) *IssueResult {
	result := &IssueResult{File: file}

	inv, err := readInvoice(file)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Invoice = inv.Number

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := engine.Issuance.Issue(ctx, inv)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !out.OK() {
		result.Errors = out.Errors
		return result
	}

	result.Issued = true
	result.Artifact = &out.Issued.Artifact

	if issueOutDir != "" {
		if err := writeIssued(engine, out.Issued); err != nil {
			result.Error = err.Error()
		}
	}
	return result
}

// writeIssued stores the document, envelope and bundle next to each other
func writeIssued(engine *invoicelib.Engine, issued *model.IssuedInvoice) error {
	a := &issued.Artifact
	base := filepath.Join(issueOutDir, a.InvoiceNumber)

	if err := os.WriteFile(base+".xml", a.Document, 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}

	if issueEnvelope {
		envelope, err := engine.Envelopes.Envelope(a.Document, a.InvoiceNumber)
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+".signed.xml", envelope, 0o644); err != nil {
			return fmt.Errorf("writing envelope: %w", err)
		}
	}

	bundle, err := signature.NewBundle(a, engine.Signer)
	if err != nil {
		return err
	}
	f, err := os.Create(base + ".bundle.json")
	if err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	defer f.Close()
	return writeJSON(f, bundle)
}
