package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/transmission"
	"github.com/rezonia/invoice-engine/pkg/invoicelib"
)

var (
	txSender   string
	txReceiver string
	txProvider string
	txIssuer   string
	txNumber   string
)

var transmitCmd = &cobra.Command{
	Use:   "transmit [invoice.json]",
	Short: "Transmit an issued invoice over Peppol",
	Long: `Send a signed invoice through a Peppol access point provider.

Either name an issued invoice with --issuer and --number (requires a
database), or pass an invoice JSON file: it is issued first, or looked up
when it was issued before.

Repeating the command for the same document and provider does not send it
again while the earlier transmission is SENT or DELIVERED.

Examples:
  invoice-engine transmit invoice.json --receiver 0235:100987654300003
  invoice-engine transmit --issuer 100123456700003 --number INV-0001 \
      --receiver 0235:100987654300003 --provider tradeshift`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTransmit,
}

var statusCmd = &cobra.Command{
	Use:   "status <provider> <message-id>",
	Short: "Refresh the delivery status of a transmission",
	Long: `Ask the provider for the current status of a sent message and record
any legal transition. Requires a database.

Examples:
  invoice-engine status tradeshift 6f1c2a8e-0d4b-4c52-9b0e-9f3c1d2e4a5b`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(transmitCmd)
	rootCmd.AddCommand(statusCmd)

	transmitCmd.Flags().StringVar(&txSender, "sender", "", "Sender Peppol participant id (default 0235:<issuer TRN>)")
	transmitCmd.Flags().StringVar(&txReceiver, "receiver", "", "Receiver Peppol participant id")
	transmitCmd.Flags().StringVar(&txProvider, "provider", "mock", "Access point provider")
	transmitCmd.Flags().StringVar(&txIssuer, "issuer", "", "Issuer TRN of an issued invoice")
	transmitCmd.Flags().StringVar(&txNumber, "number", "", "Number of an issued invoice")
	_ = transmitCmd.MarkFlagRequired("receiver")
}

func runTransmit(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && (txIssuer == "" || txNumber == "") {
		return fmt.Errorf("pass an invoice file or both --issuer and --number")
	}

	ctx := cmd.Context()
	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	var issued *model.IssuedInvoice
	if len(args) == 1 {
		issued, err = issueOrFind(ctx, engine, args[0])
	} else {
		issued, err = engine.Issuance.Find(ctx, txIssuer, txNumber)
	}
	if err != nil {
		return err
	}

	sender := txSender
	if sender == "" {
		sender = issued.Invoice.Issuer.EndpointID
	}
	if sender == "" {
		sender = "0235:" + issued.Invoice.Issuer.TaxID
	}

	rec, err := engine.Transmission.Transmit(ctx, &issued.Artifact, sender, txReceiver, txProvider)
	if rec != nil {
		if werr := printRecord(rec); werr != nil {
			return werr
		}
	}
	var validation model.ValidationErrors
	if errors.As(err, &validation) {
		printValidationErrors(validation)
	}
	return err
}

func issueOrFind(ctx context.Context, engine *invoicelib.Engine, file string) (*model.IssuedInvoice, error) {
	inv, err := readInvoice(file)
	if err != nil {
		return nil, err
	}

	out, err := engine.Issuance.Issue(ctx, inv)
	if err != nil {
		return nil, err
	}
	if out.OK() {
		printVerbose("Issued %s as #%d\n", inv.Number, out.Issued.Artifact.Sequence)
		return out.Issued, nil
	}
	if out.Errors.Has("number", model.RuleDuplicate) {
		return engine.Issuance.Find(ctx, inv.Issuer.TaxID, inv.Number)
	}

	printValidationErrors(out.Errors)
	return nil, fmt.Errorf("invoice %s is not valid", inv.Number)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	rec, err := engine.Transmission.CheckStatus(ctx, args[1], args[0])
	if errors.Is(err, transmission.ErrNotFound) && engine.Config.Database.URL == "" {
		return fmt.Errorf("%w: status checks need DATABASE_URL", err)
	}
	if rec != nil {
		if werr := printRecord(rec); werr != nil {
			return werr
		}
	}
	return err
}

func printRecord(rec *transmission.Record) error {
	if outputFormat == "json" {
		return writeJSON(os.Stdout, rec)
	}

	fmt.Printf("%s %s via %s: %s\n", mark(rec.Success()), rec.InvoiceNumber, rec.Provider, rec.Status)
	if rec.MessageID != "" {
		fmt.Printf("  Message: %s\n", rec.MessageID)
	}
	fmt.Printf("  Route:   %s -> %s\n", rec.SenderID, rec.ReceiverID)
	fmt.Printf("  Attempt: %d\n", rec.Attempt)
	if rec.LastError != "" {
		fmt.Printf("  ✗ %s\n", rec.LastError)
	}
	return nil
}
