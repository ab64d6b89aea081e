package invoicelib

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rezonia/invoice-engine/internal/config"
	"github.com/rezonia/invoice-engine/internal/database"
	"github.com/rezonia/invoice-engine/internal/issuance"
	istore "github.com/rezonia/invoice-engine/internal/issuance/store"
	"github.com/rezonia/invoice-engine/internal/logger"
	"github.com/rezonia/invoice-engine/internal/server"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/signature/trust"
	"github.com/rezonia/invoice-engine/internal/signature/xml"
	"github.com/rezonia/invoice-engine/internal/tax"
	"github.com/rezonia/invoice-engine/internal/transmission"
	"github.com/rezonia/invoice-engine/internal/transmission/provider"
	tstore "github.com/rezonia/invoice-engine/internal/transmission/store"
)

// Engine holds every component built from one configuration
type Engine struct {
	Config       *config.Config
	Signer       *signature.Engine
	Issuance     *issuance.Service
	Transmission *transmission.Machine
	Envelopes    *xml.Signer
	Verifiers    *signature.VerifierRegistry
	TrustStore   *trust.TrustStore
	TaxTable     *tax.Table

	db  *sql.DB
	log zerolog.Logger
}

// Option adjusts Open
type Option func(*openOptions)

type openOptions struct {
	logger    *zerolog.Logger
	providers []provider.Provider
}

// WithLogger replaces the global logger for all components
func WithLogger(log zerolog.Logger) Option {
	return func(o *openOptions) {
		o.logger = &log
	}
}

// WithProviders registers extra providers after the configured ones
func WithProviders(providers ...provider.Provider) Option {
	return func(o *openOptions) {
		o.providers = append(o.providers, providers...)
	}
}

// Open builds the engine. With an empty DATABASE_URL all state is kept in
// memory and is lost when the process exits.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.Get()
	if o.logger != nil {
		log = *o.logger
	}

	e := &Engine{Config: cfg, TaxTable: tax.DefaultTable(), log: log}

	if cfg.Signing.TrustStorePath != "" {
		var trustOpts []trust.TrustStoreOption
		if cfg.Signing.SoftFail {
			trustOpts = append(trustOpts, trust.WithSoftFail())
		}
		ts, err := trust.LoadTrustStore(cfg.Signing.TrustStorePath, trustOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading trust store: %w", err)
		}
		e.TrustStore = ts
	}

	keyPEM, err := cfg.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	certPEM, err := cfg.Certificate()
	if err != nil {
		return nil, fmt.Errorf("signing certificate: %w", err)
	}

	e.Signer, err = signature.NewEngine(ctx, signature.Options{
		PrivateKeyPEM:   keyPEM,
		CertificatePEM:  certPEM,
		Production:      cfg.Production(),
		HashAlgorithm:   cfg.Signing.HashAlgorithm,
		TrustStore:      e.TrustStore,
		CheckRevocation: cfg.Signing.CheckRevocation,
		Logger:          log.With().Str("component", "signature").Logger(),
	})
	if err != nil {
		return nil, err
	}

	if e.Envelopes, err = xml.NewSigner(e.Signer.TLSCertificate()); err != nil {
		return nil, fmt.Errorf("envelope signer: %w", err)
	}

	var (
		xmlOpts    []xml.VerifierOption
		bundleOpts []signature.BundleVerifierOption
	)
	if e.TrustStore.Empty() {
		// without anchors only our own key is accepted
		certs, err := signature.ParseCertificatesPEM(e.Signer.CertificatePEM())
		if err != nil {
			return nil, fmt.Errorf("signing certificate: %w", err)
		}
		xmlOpts = append(xmlOpts, xml.WithPinnedCertificates(certs...))
		bundleOpts = append(bundleOpts, signature.WithPinnedKeys(e.Signer.PublicKey()))
	}
	e.Verifiers = signature.NewVerifierRegistry(
		xml.NewXMLVerifier(e.TrustStore, xmlOpts...),
		signature.NewBundleVerifier(e.TrustStore, bundleOpts...),
	)

	registry, err := provider.Build(cfg.ProviderNames(), map[string]provider.Credentials{
		provider.Tradeshift: {BaseURL: cfg.Peppol.TradeshiftURL, APIKey: cfg.Peppol.TradeshiftKey},
		provider.Basware:    {BaseURL: cfg.Peppol.BaswareURL, APIKey: cfg.Peppol.BaswareKey},
	}, provider.WithTimeout(cfg.Peppol.Timeout))
	if err != nil {
		return nil, err
	}
	for _, p := range o.providers {
		registry.Register(p)
	}

	var (
		invoices      issuance.Repository
		transmissions transmission.Repository
	)
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		e.db = db
		invoices = istore.NewPostgres(db)
		transmissions = tstore.NewPostgres(db)
	} else {
		log.Warn().Msg("DATABASE_URL not set: issued invoices are kept in memory only")
		invoices = istore.NewMemory()
		transmissions = tstore.NewMemory()
	}

	e.Issuance = issuance.NewService(invoices, e.Signer, log.With().Str("component", "issuance").Logger())
	e.Transmission = transmission.NewMachine(transmissions, registry,
		transmission.WithCallTimeout(cfg.Peppol.Timeout),
		transmission.WithLogger(log.With().Str("component", "transmission").Logger()),
	)

	log.Info().
		Str("mode", string(e.Signer.Mode())).
		Str("certificate_serial", e.Signer.CertificateSerial()).
		Strs("providers", registry.Names()).
		Bool("persistent", e.db != nil).
		Msg("invoice engine ready")

	return e, nil
}

// Services exposes the components the HTTP API needs
func (e *Engine) Services() server.Services {
	return server.Services{
		Issuance:     e.Issuance,
		Transmission: e.Transmission,
		Signer:       e.Signer,
		Envelopes:    e.Envelopes,
		Verifiers:    e.Verifiers,
		TaxTable:     e.TaxTable,
	}
}

// ServerConfig derives the HTTP server settings from the configuration
func (e *Engine) ServerConfig() *server.Config {
	return &server.Config{
		Address:        net.JoinHostPort("", strconv.Itoa(e.Config.App.Port)),
		ReadTimeout:    e.Config.App.Timeout,
		WriteTimeout:   e.Config.App.Timeout,
		RequestTimeout: e.Config.App.Timeout,
		Debug:          e.Config.Log.Level == "debug",
	}
}

// Close releases the database connection, if any
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}
