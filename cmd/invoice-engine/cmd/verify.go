package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/pkg/invoicelib"
)

var (
	caFile   string
	skipOCSP bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Verify signed envelopes and bundles",
	Long: `Verify the signatures of XMLDSig envelopes (.xml) and JSON verification
bundles (.json) produced by the engine.

Verifies:
  - Signature validity (cryptographic verification)
  - Content and chain hashes (bundles)
  - Certificate chain, when a trust store is configured
  - Certificate revocation (OCSP, soft-fail with --skip-ocsp)

Without a trust store only envelopes signed by the configured signing
certificate are accepted.

Examples:
  invoice-engine verify issued/INV-0001.signed.xml
  invoice-engine verify issued/ --ca-file fta-root.pem
  invoice-engine verify -f json issued/INV-0001.bundle.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&caFile, "ca-file", "", "CA bundle to anchor certificate chains (env: TRUST_STORE_PATH)")
	verifyCmd.Flags().BoolVar(&skipOCSP, "skip-ocsp", false, "Treat OCSP failures as warnings")
}

// VerifyResult holds the result of verifying a single file
type VerifyResult struct {
	File string `json:"file"`
	*signature.VerificationResult
	Error string `json:"error,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args, ".xml", ".json")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to verify")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if caFile != "" {
		cfg.Signing.TrustStorePath = caFile
	}
	if skipOCSP {
		cfg.Signing.SoftFail = true
	}

	engine, err := invoicelib.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	results := make([]*VerifyResult, 0, len(files))
	allValid := true
	for _, file := range files {
		printVerbose("Verifying: %s\n", file)

		result := verifyFile(cmd.Context(), engine.Verifiers, file)
		results = append(results, result)
		if result.VerificationResult == nil || !result.Valid {
			allValid = false
		}
	}

	if outputFormat == "json" {
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printVerifyResult(r)
		}
	}

	if !allValid {
		return fmt.Errorf("verification failed for some files")
	}
	return nil
}

func verifyFile(ctx context.Context, registry *signature.VerifierRegistry, file string) *VerifyResult {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	result := &VerifyResult{File: file}

	data, err := os.ReadFile(file)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}

	verifier, err := registry.Detect(data)
	if err != nil {
		result.Error = "no verifier available for this file format"
		return result
	}

	vr, err := verifier.Verify(ctx, data)
	result.VerificationResult = vr
	if err != nil {
		result.Error = fmt.Sprintf("verification error: %v", err)
	}
	return result
}

func printVerifyResult(r *VerifyResult) {
	vr := r.VerificationResult
	if vr == nil {
		fmt.Printf("✗ %s: INVALID\n  ✗ %s\n", r.File, r.Error)
		return
	}

	statusIcon, statusText := "✓", "VALID"
	if !vr.Valid {
		statusIcon, statusText = "✗", "INVALID"
	}
	fmt.Printf("%s %s: %s\n", statusIcon, r.File, statusText)

	if vr.Format != "" {
		fmt.Printf("  Format:  %s\n", vr.Format)
	}
	if vr.InvoiceNumber != "" {
		fmt.Printf("  Invoice: %s\n", vr.InvoiceNumber)
	}
	if vr.Signer != nil {
		fmt.Printf("  Signer:  %s\n", vr.Signer.Name)
		if vr.Signer.Issuer != "" {
			fmt.Printf("  Issuer:  %s\n", vr.Signer.Issuer)
		}
	}
	if vr.SignedAt != nil {
		fmt.Printf("  Signed:  %s\n", vr.SignedAt.Format(time.RFC3339))
	}

	if vr.SignatureFound {
		fmt.Printf("  Signature:   %s\n", mark(vr.SignatureValid))
		fmt.Printf("  Cert Chain:  %s\n", mark(vr.CertChainValid))
		fmt.Printf("  Not Revoked: %s\n", mark(vr.NotRevoked))
	}

	if r.Error != "" {
		fmt.Printf("  ✗ %s\n", r.Error)
	}
	for _, e := range vr.Errors {
		fmt.Printf("  ✗ %s\n", e)
	}
	for _, w := range vr.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
