package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/config"
	"github.com/rezonia/invoice-engine/internal/logger"
	"github.com/rezonia/invoice-engine/pkg/invoicelib"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string
	databaseURL  string
	providers    []string
	appEnv       string
)

var rootCmd = &cobra.Command{
	Use:   "invoice-engine",
	Short: "Issue, sign and transmit UAE tax invoices",
	Long: `Invoice Engine computes VAT, renders canonical UBL documents, links them
into a per-issuer hash chain, signs them and transmits them over Peppol.

Configuration is read from the environment and an optional .env file.
Without DATABASE_URL all state lives in memory for the duration of the command.

Examples:
  # Issue an invoice and write its signed document
  invoice-engine issue invoice.json --out-dir ./issued

  # Validate invoices without issuing them
  invoice-engine validate invoices/*.json

  # Verify a signed envelope or bundle
  invoice-engine verify issued/INV-0001.signed.xml

  # Issue and transmit through the mock provider
  invoice-engine transmit invoice.json --receiver 0235:100987654300003 --provider mock

  # Start the HTTP API
  invoice-engine serve`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string (env: DATABASE_URL)")
	rootCmd.PersistentFlags().StringSliceVar(&providers, "providers", nil, "Enabled Peppol providers (env: PEPPOL_PROVIDERS)")
	rootCmd.PersistentFlags().StringVar(&appEnv, "env", "", "Deployment environment (env: APP_ENV)")
}

// loadConfig reads the environment and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	if len(providers) > 0 {
		cfg.Peppol.Providers = providers
	}
	if appEnv != "" {
		cfg.App.Env = appEnv
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	if err := logger.Setup(logCfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine loads configuration and assembles the engine
func openEngine(ctx context.Context) (*invoicelib.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return invoicelib.Open(ctx, cfg)
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
