package issuance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rezonia/invoice-engine/internal/document"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/tax"
)

// Outcome is either an issued invoice or the reasons it was refused
type Outcome struct {
	Issued *model.IssuedInvoice   `json:"issued,omitempty"`
	Errors model.ValidationErrors `json:"errors,omitempty"`
}

// OK reports whether the invoice was issued
func (o *Outcome) OK() bool {
	return o.Issued != nil && len(o.Errors) == 0
}

// ChainReport summarizes a verified issuer chain
type ChainReport struct {
	IssuerTaxID        string `json:"issuer_tax_id"`
	Length             int    `json:"length"`
	HeadChainHash      string `json:"head_chain_hash"`
	SignaturesVerified int    `json:"signatures_verified"`
}

type Service struct {
	repo       Repository
	engine     *signature.Engine
	calculator *tax.Calculator
	serializer *document.Serializer
	log        zerolog.Logger
}

func NewService(repo Repository, engine *signature.Engine, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		engine:     engine,
		calculator: tax.NewCalculator(nil),
		serializer: document.NewSerializer(),
		log:        log,
	}
}

// Prepare calculates inv in place and renders its canonical document.
// Business rule failures are returned as validation errors.
func (s *Service) Prepare(inv *model.Invoice) ([]byte, model.ValidationErrors, error) {
	if _, errs := s.calculator.Apply(inv); len(errs) > 0 {
		return nil, errs, nil
	}
	return s.serializer.Serialize(inv)
}

// Issue calculates, serializes, links and signs inv. Only signing and
// storage failures are returned as errors.
func (s *Service) Issue(ctx context.Context, inv *model.Invoice) (*Outcome, error) {
	doc, errs, err := s.Prepare(inv)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return &Outcome{Errors: errs}, nil
	}

	issuer := inv.Issuer.TaxID
	tx, err := s.repo.BeginIssue(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("begin issue: %w", err)
	}
	defer tx.Rollback()

	exists, err := tx.Exists(ctx, inv.Number)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return duplicate(inv.Number), nil
	}

	head, err := tx.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	seal, err := s.engine.Seal(doc, inv.ChainFields(), head.ChainHash)
	if err != nil {
		return nil, err
	}

	issued := &model.IssuedInvoice{
		Invoice: *inv,
		Artifact: model.Artifact{
			ID:                uuid.New(),
			InvoiceNumber:     inv.Number,
			IssuerTaxID:       issuer,
			Sequence:          head.Sequence + 1,
			Document:          doc,
			ContentHash:       seal.ContentHash,
			PreviousChainHash: seal.PreviousChainHash,
			ChainHash:         seal.ChainHash,
			Signature:         seal.Signature,
			HashAlgorithm:     string(seal.HashAlgorithm),
			CertificateSerial: seal.CertificateSerial,
			Mode:              seal.Mode,
			SignedAt:          seal.SignedAt,
		},
	}

	if err := tx.Save(ctx, issued); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return duplicate(inv.Number), nil
		}
		return nil, fmt.Errorf("save invoice: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issue: %w", err)
	}

	s.log.Info().
		Str("invoice", inv.Number).
		Str("issuer", issuer).
		Int64("sequence", issued.Artifact.Sequence).
		Str("chain_hash", seal.ChainHash).
		Str("mode", string(seal.Mode)).
		Msg("invoice issued")

	return &Outcome{Issued: issued}, nil
}

func duplicate(number string) *Outcome {
	var errs model.ValidationErrors
	errs.Add("number", number, model.RuleDuplicate, "invoice number already issued for this issuer")
	return &Outcome{Errors: errs}
}

// Find returns a previously issued invoice
func (s *Service) Find(ctx context.Context, issuerTaxID, number string) (*model.IssuedInvoice, error) {
	return s.repo.Find(ctx, issuerTaxID, number)
}

// History returns the issuer's invoices in chain order
func (s *Service) History(ctx context.Context, issuerTaxID string) ([]*model.IssuedInvoice, error) {
	return s.repo.History(ctx, issuerTaxID)
}

// VerifyIssuerChain recomputes the issuer's chain and content hashes from
// stored history. Signatures are checked for artifacts signed by the current
// certified key. A broken chain is reported as *signature.ChainError.
func (s *Service) VerifyIssuerChain(ctx context.Context, issuerTaxID string) (*ChainReport, error) {
	history, err := s.repo.History(ctx, issuerTaxID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	report := &ChainReport{IssuerTaxID: issuerTaxID, Length: len(history)}
	if len(history) == 0 {
		return report, nil
	}

	algorithm, err := signature.ParseHashAlgorithm(history[0].Artifact.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	links := make([]signature.ChainLink, len(history))
	for i, issued := range history {
		links[i] = signature.LinkFromArtifact(&issued.Invoice, &issued.Artifact)
	}
	if err := signature.VerifyChain(algorithm, links, nil); err != nil {
		s.log.Error().Err(err).Str("issuer", issuerTaxID).Msg("issuer chain broken")
		return report, err
	}

	certified := s.engine.Mode() == model.SigningModeCertified
	for i, issued := range history {
		a := issued.Artifact
		if !certified || a.CertificateSerial != s.engine.CertificateSerial() {
			continue
		}
		if !signature.VerifyWith(algorithm, a.Document, a.ChainHash, a.Signature, s.engine.PublicKey()) {
			return report, &signature.ChainError{Index: i, InvoiceNumber: a.InvoiceNumber, Reason: "signature invalid"}
		}
		report.SignaturesVerified++
	}

	report.HeadChainHash = history[len(history)-1].Artifact.ChainHash
	return report, nil
}
