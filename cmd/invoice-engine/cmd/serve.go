package cmd

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/logger"
	"github.com/rezonia/invoice-engine/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for issuing, verifying and transmitting invoices.

The API provides endpoints for:
  - POST /api/v1/invoices                              - Issue invoice
  - POST /api/v1/invoices/validate                     - Validate invoice
  - GET  /api/v1/invoices/:issuer/:number              - Issued invoice and artifact
  - GET  /api/v1/invoices/:issuer/:number/document     - Canonical or enveloped document
  - GET  /api/v1/invoices/:issuer/:number/bundle       - Verification bundle
  - POST /api/v1/signatures/verify                     - Verify envelope or bundle
  - GET  /api/v1/issuers/:issuer/chain                 - Verify issuer chain
  - GET  /api/v1/issuers/:issuer/audit                 - FTA Audit File
  - POST /api/v1/transmissions                         - Transmit over Peppol
  - GET  /api/v1/transmissions/:provider/:id/status    - Refresh delivery status
  - GET  /health                                       - Health check

Examples:
  # Start server on the configured port
  invoice-engine serve

  # Start on a custom address in debug mode
  invoice-engine serve --address :9090 --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default :PORT)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 0, "HTTP read timeout (default SERVER_TIMEOUT)")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 0, "HTTP write timeout (default SERVER_TIMEOUT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	config := engine.ServerConfig()
	if serverAddr != "" {
		config.Address = serverAddr
	}
	if serverDebug {
		config.Debug = true
	}
	if readTimeout > 0 {
		config.ReadTimeout = readTimeout
	}
	if writeTimeout > 0 {
		config.WriteTimeout = writeTimeout
	}

	log := logger.WithComponent("server")
	srv := server.NewServer(config, engine.Services(), log)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
