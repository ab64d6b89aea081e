package signature

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/rezonia/invoice-engine/internal/signature/trust"
)

// VerificationResult contains the complete signature verification outcome
type VerificationResult struct {
	// Overall validity - true only if all checks pass
	Valid bool `json:"valid"`

	// Individual check results
	SignatureFound   bool `json:"signature_found"`
	SignatureValid   bool `json:"signature_valid"`
	ContentHashMatch bool `json:"content_hash_match"`
	ChainHashMatch   bool `json:"chain_hash_match"`
	CertChainValid   bool `json:"cert_chain_valid"`
	NotRevoked       bool `json:"not_revoked"`

	// Invoice identity recovered from the document
	InvoiceNumber string `json:"invoice_number,omitempty"`
	ContentHash   string `json:"content_hash,omitempty"`
	ChainHash     string `json:"chain_hash,omitempty"`
	Mode          string `json:"mode,omitempty"`

	Signer   *SignerInfo `json:"signer,omitempty"`
	SignedAt *time.Time  `json:"signed_at,omitempty"`

	CertChain []*x509.Certificate `json:"-"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	Format string `json:"format,omitempty"`
}

// SignerInfo contains certificate subject information
type SignerInfo struct {
	Name         string    `json:"name"`
	Organization string    `json:"organization,omitempty"`
	SerialNumber string    `json:"serial_number"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

// NewVerificationResult creates a new empty result
func NewVerificationResult(format string) *VerificationResult {
	return &VerificationResult{
		Format:   format,
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// AddWarning adds a warning message to the result
func (r *VerificationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError adds an error message and sets Valid to false
func (r *VerificationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// SetSigner populates SignerInfo from an x509 certificate
func (r *VerificationResult) SetSigner(cert *x509.Certificate) {
	if cert == nil {
		return
	}

	signer := &SignerInfo{
		Name:         cert.Subject.CommonName,
		SerialNumber: cert.SerialNumber.String(),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}
	if len(cert.Subject.Organization) > 0 {
		signer.Organization = cert.Subject.Organization[0]
	}
	if cert.Issuer.CommonName != "" {
		signer.Issuer = cert.Issuer.CommonName
	} else if len(cert.Issuer.Organization) > 0 {
		signer.Issuer = cert.Issuer.Organization[0]
	}

	r.Signer = signer
}

// ComputeValidity sets Valid from the signature check and the recorded errors.
// Chain and revocation failures are recorded as errors by the verifier.
func (r *VerificationResult) ComputeValidity() {
	r.Valid = r.SignatureFound &&
		r.SignatureValid &&
		len(r.Errors) == 0
}

// CheckSigner records the chain and revocation status of cert against ts
func CheckSigner(ctx context.Context, ts *trust.TrustStore, result *VerificationResult, cert *x509.Certificate) {
	if ts == nil || ts.Empty() {
		result.AddWarning("no trust store configured: certificate chain not checked")
		return
	}

	chain, err := ts.VerifyChain(cert, nil)
	if err != nil {
		result.AddError(fmt.Sprintf("certificate chain: %v", err))
		return
	}
	result.CertChain = chain
	result.CertChainValid = true

	if len(chain) < 2 {
		result.NotRevoked = true
		result.AddWarning("revocation check skipped: no issuer certificate in chain")
		return
	}

	notRevoked, err := ts.CheckRevocation(ctx, cert, chain[1])
	switch {
	case err != nil && ts.IsSoftFail():
		result.AddWarning(fmt.Sprintf("OCSP check: %v", err))
		result.NotRevoked = true
	case err != nil:
		result.AddError(fmt.Sprintf("OCSP check failed: %v", err))
	case !notRevoked:
		result.AddError("certificate has been revoked")
	default:
		result.NotRevoked = true
	}
}
