package xml

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	dsig "github.com/russellhaering/goxmldsig"

	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/signature/trust"
)

// XMLVerifier verifies enveloped XMLDSig signatures on exchanged documents
type XMLVerifier struct {
	trustStore *trust.TrustStore
	pinned     []*x509.Certificate
	extractor  *SignatureExtractor
	now        func() time.Time
}

// VerifierOption configures an XMLVerifier
type VerifierOption func(*XMLVerifier)

// WithPinnedCertificates restricts accepted signers to the given certificates
func WithPinnedCertificates(certs ...*x509.Certificate) VerifierOption {
	return func(v *XMLVerifier) {
		v.pinned = append(v.pinned, certs...)
	}
}

// WithClock overrides the time certificates are checked against
func WithClock(now func() time.Time) VerifierOption {
	return func(v *XMLVerifier) {
		v.now = now
	}
}

// NewXMLVerifier creates a new XML signature verifier; ts may be nil
func NewXMLVerifier(ts *trust.TrustStore, opts ...VerifierOption) *XMLVerifier {
	v := &XMLVerifier{
		trustStore: ts,
		extractor:  NewSignatureExtractor(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify verifies the XMLDSig signature in the given XML data
func (v *XMLVerifier) Verify(ctx context.Context, data []byte) (*signature.VerificationResult, error) {
	result := signature.NewVerificationResult(signature.FormatXMLDSig)

	extraction, err := v.extractor.Extract(data)
	if err != nil {
		result.AddError(err.Error())
		return result, signature.ErrNoSignature()
	}
	result.SignatureFound = true

	if id := extraction.SignedElement.FindElement("ID"); id != nil {
		result.InvoiceNumber = id.Text()
	}

	der, err := ExtractCertificateData(extraction.SignatureElement)
	if err != nil {
		result.AddError(err.Error())
		return result, nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to parse certificate: %v", err))
		return result, nil
	}
	result.SetSigner(cert)

	if len(v.pinned) > 0 && !v.isPinned(cert) {
		result.AddError("signing certificate is not an accepted signer")
	}

	validationCtx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	validationCtx.IdAttribute = IDAttribute
	validationCtx.Clock = dsig.NewFakeClockAt(v.now())

	if _, err := validationCtx.Validate(extraction.SignedElement); err != nil {
		result.AddError(fmt.Sprintf("signature validation failed: %v", err))
	} else {
		result.SignatureValid = true
	}

	signature.CheckSigner(ctx, v.trustStore, result, cert)

	result.ComputeValidity()
	return result, nil
}

func (v *XMLVerifier) isPinned(cert *x509.Certificate) bool {
	for _, p := range v.pinned {
		if p.Equal(cert) {
			return true
		}
	}
	return false
}

// CanVerify returns true if the data appears to be signed XML
func (v *XMLVerifier) CanVerify(data []byte) bool {
	return v.extractor.CanExtract(data)
}

// Format returns the format this verifier handles
func (v *XMLVerifier) Format() string {
	return signature.FormatXMLDSig
}
