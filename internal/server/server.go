package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rezonia/invoice-engine/internal/audit"
	"github.com/rezonia/invoice-engine/internal/issuance"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/signature/xml"
	"github.com/rezonia/invoice-engine/internal/tax"
	"github.com/rezonia/invoice-engine/internal/transmission"
)

// Config holds server configuration
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	Debug          bool
}

// Services are the engine components the API exposes
type Services struct {
	Issuance     *issuance.Service
	Transmission *transmission.Machine
	Signer       *signature.Engine
	Envelopes    *xml.Signer
	Verifiers    *signature.VerifierRegistry
	TaxTable     *tax.Table
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	services Services
	log      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(config *Config, services Services, log zerolog.Logger) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if services.TaxTable == nil {
		services.TaxTable = tax.DefaultTable()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	s := &Server{
		config:   config,
		router:   router,
		services: services,
		log:      log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/invoices", s.handleIssue)
		v1.POST("/invoices/validate", s.handleValidate)
		v1.GET("/invoices/:issuer/:number", s.handleGetInvoice)
		v1.GET("/invoices/:issuer/:number/document", s.handleDocument)
		v1.GET("/invoices/:issuer/:number/bundle", s.handleBundle)
		v1.GET("/invoices/:issuer/:number/transmissions", s.handleTransmissionHistory)

		v1.POST("/signatures/verify", s.handleVerify)
		v1.GET("/signing/certificate", s.handleCertificate)

		v1.GET("/issuers/:issuer/chain", s.handleChain)
		v1.GET("/issuers/:issuer/audit", s.handleAudit)

		v1.POST("/transmissions", s.handleTransmit)
		v1.GET("/transmissions/:provider/:messageID/status", s.handleStatus)

		v1.GET("/tax-codes", s.handleTaxCodes)
	}
}

// Run starts the HTTP server and stops it when ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", s.config.Address).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Time:        time.Now().UTC().Format(time.RFC3339),
		SigningMode: string(s.services.Signer.Mode()),
		Warnings:    s.services.Signer.Warnings(),
	})
}

func (s *Server) handleIssue(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		badRequest(c, "invalid invoice JSON", err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	out, err := s.services.Issuance.Issue(ctx, &inv)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !out.OK() {
		s.fail(c, out.Errors)
		return
	}

	c.JSON(http.StatusCreated, IssueResponse{
		Invoice:  &out.Issued.Invoice,
		Artifact: &out.Issued.Artifact,
		Warnings: s.services.Signer.Warnings(),
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		badRequest(c, "invalid invoice JSON", err)
		return
	}

	_, errs, err := s.services.Issuance.Prepare(&inv)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := ValidationResponse{Valid: len(errs) == 0, Errors: errs}
	if resp.Valid {
		resp.Invoice = &inv
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) findIssued(c *gin.Context) (*model.IssuedInvoice, bool) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	issued, err := s.services.Issuance.Find(ctx, c.Param("issuer"), c.Param("number"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return issued, true
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	issued, ok := s.findIssued(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, issued)
}

// handleDocument returns the canonical document, or with ?envelope=true the
// XMLDSig enveloped exchange form
func (s *Server) handleDocument(c *gin.Context) {
	issued, ok := s.findIssued(c)
	if !ok {
		return
	}

	doc := issued.Artifact.Document
	if c.Query("envelope") == "true" {
		var err error
		if doc, err = s.services.Envelopes.Envelope(doc, issued.Artifact.InvoiceNumber); err != nil {
			s.fail(c, err)
			return
		}
	}

	c.Header("X-Content-Hash", issued.Artifact.ContentHash)
	c.Header("X-Chain-Hash", issued.Artifact.ChainHash)
	c.Data(http.StatusOK, "application/xml; charset=utf-8", doc)
}

func (s *Server) handleBundle(c *gin.Context) {
	issued, ok := s.findIssued(c)
	if !ok {
		return
	}

	bundle, err := signature.NewBundle(&issued.Artifact, s.services.Signer)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (s *Server) handleVerify(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read request body", err)
		return
	}
	if len(body) == 0 {
		badRequest(c, "empty request body", nil)
		return
	}

	verifier, err := s.services.Verifiers.Detect(body)
	if err != nil {
		badRequest(c, "unsupported format for signature verification", err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := verifier.Verify(ctx, body)
	if err != nil {
		var sigErr *signature.SignatureError
		if errors.As(err, &sigErr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:   KindSignature,
				Message: sigErr.Message,
				Details: sigErr.Code,
			})
			return
		}
		s.fail(c, err)
		return
	}

	if result.Valid {
		c.JSON(http.StatusOK, result)
	} else {
		c.JSON(http.StatusUnprocessableEntity, result)
	}
}

func (s *Server) handleCertificate(c *gin.Context) {
	e := s.services.Signer
	c.JSON(http.StatusOK, CertificateResponse{
		Mode:           string(e.Mode()),
		Serial:         e.CertificateSerial(),
		HashAlgorithm:  string(e.HashAlgorithm()),
		Certificate:    e.Certificate(),
		CertificatePEM: string(e.CertificatePEM()),
		Signatures:     e.SignatureCount(),
		Warnings:       e.Warnings(),
	})
}

func (s *Server) handleChain(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	report, err := s.services.Issuance.VerifyIssuerChain(ctx, c.Param("issuer"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleAudit(c *gin.Context) {
	format := audit.Format(c.DefaultQuery("format", string(audit.FormatCSV)))

	var period audit.Period
	for param, dst := range map[string]*model.Date{"from": &period.From, "to": &period.To} {
		if v := c.Query(param); v != "" {
			d, err := model.ParseDate(v)
			if err != nil {
				badRequest(c, fmt.Sprintf("%s must be YYYY-MM-DD", param), err)
				return
			}
			*dst = d
		}
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	issuer := c.Param("issuer")
	history, err := s.services.Issuance.History(ctx, issuer)
	if err != nil {
		s.fail(c, err)
		return
	}

	company := audit.Company{TRN: issuer}
	if len(history) > 0 {
		company.Name = history[len(history)-1].Invoice.Issuer.Name
	}

	var buf bytes.Buffer
	stats, err := audit.Write(&buf, format, company, period, history)
	if err != nil {
		badRequest(c, err.Error(), nil)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == audit.FormatTXT {
		contentType = "text/plain; charset=utf-8"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="FAF_%s.%s"`, issuer, format))
	c.Header("X-Audit-Invoices", fmt.Sprint(stats.Invoices))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) handleTransmit(c *gin.Context) {
	var req TransmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid transmission request", err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	issued, err := s.services.Issuance.Find(ctx, req.IssuerTaxID, req.InvoiceNumber)
	if err != nil {
		s.fail(c, err)
		return
	}

	rec, err := s.services.Transmission.Transmit(ctx, &issued.Artifact, req.SenderID, req.ReceiverID, req.Provider)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, transmitResponse(rec))
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	rec, err := s.services.Transmission.CheckStatus(ctx, c.Param("messageID"), c.Param("provider"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, transmitResponse(rec))
}

func (s *Server) handleTransmissionHistory(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	records, err := s.services.Transmission.History(ctx, c.Param("issuer"), c.Param("number"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if records == nil {
		records = []*transmission.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"transmissions": records})
}

func (s *Server) handleTaxCodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tax_codes": s.services.TaxTable.Definitions()})
}

func transmitResponse(rec *transmission.Record) TransmitResponse {
	return TransmitResponse{
		Success:          rec.Success(),
		MessageID:        rec.MessageID,
		Status:           string(rec.Status),
		Provider:         rec.Provider,
		ProviderResponse: rec.Response,
		Record:           rec,
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}
