package signature

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/rezonia/invoice-engine/internal/document"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature/trust"
)

// Bundle is the portable form of an issued artifact: metadata, canonical
// document and the key that verifies it
type Bundle struct {
	Artifact  model.Artifact `json:"artifact"`
	Document  []byte         `json:"document"`
	PublicKey string         `json:"public_key"` // PEM public key or certificate
}

// NewBundle packages an artifact with the engine's verification key
func NewBundle(a *model.Artifact, e *Engine) (*Bundle, error) {
	keyPEM := e.CertificatePEM()
	if e.Mode() == model.SigningModeUncertified {
		var err error
		if keyPEM, err = EncodePublicKeyPEM(e.PublicKey()); err != nil {
			return nil, fmt.Errorf("encoding public key: %w", err)
		}
	}
	return &Bundle{Artifact: *a, Document: a.Document, PublicKey: string(keyPEM)}, nil
}

// BundleVerifier verifies JSON artifact bundles by recomputing both hashes
// from the embedded document. The key carried by a bundle is only trusted when
// its certificate chains to the trust store or it matches a pinned key.
type BundleVerifier struct {
	trustStore *trust.TrustStore
	pinned     []*rsa.PublicKey
}

// BundleVerifierOption configures a BundleVerifier
type BundleVerifierOption func(*BundleVerifier)

// WithPinnedKeys restricts accepted signers to the given keys
func WithPinnedKeys(keys ...*rsa.PublicKey) BundleVerifierOption {
	return func(v *BundleVerifier) {
		v.pinned = append(v.pinned, keys...)
	}
}

// NewBundleVerifier creates a bundle verifier; ts may be nil
func NewBundleVerifier(ts *trust.TrustStore, opts ...BundleVerifierOption) *BundleVerifier {
	v := &BundleVerifier{trustStore: ts}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks hashes, signature and, with a trust store, the certificate chain
func (v *BundleVerifier) Verify(ctx context.Context, data []byte) (*VerificationResult, error) {
	result := NewVerificationResult(FormatBundle)

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		result.AddError(fmt.Sprintf("malformed bundle: %v", err))
		return result, ErrUnsupportedFormat(FormatBundle)
	}
	a := b.Artifact
	if len(b.Document) == 0 || a.Signature == "" {
		result.AddError("bundle carries no signed document")
		return result, ErrNoSignature()
	}
	result.SignatureFound = true
	result.InvoiceNumber = a.InvoiceNumber
	result.ChainHash = a.ChainHash
	result.Mode = string(a.Mode)
	if !a.SignedAt.IsZero() {
		signedAt := a.SignedAt
		result.SignedAt = &signedAt
	}

	algorithm, err := ParseHashAlgorithm(a.HashAlgorithm)
	if err != nil {
		result.AddError(err.Error())
		return result, nil
	}

	result.ContentHash = algorithm.ContentHash(b.Document)
	result.ContentHashMatch = result.ContentHash == a.ContentHash
	if !result.ContentHashMatch {
		result.AddError("content hash does not match document")
	}

	summary, err := document.ReadSummary(b.Document)
	if err != nil {
		result.AddError(err.Error())
	} else {
		result.ChainHashMatch = algorithm.ChainHash(summary.ChainFields(), a.PreviousChainHash) == a.ChainHash
		if !result.ChainHashMatch {
			result.AddError("chain hash does not match document fields")
		}
	}

	pub, cert, err := ParsePublicKeyPEM([]byte(b.PublicKey))
	if err != nil {
		result.AddError(fmt.Sprintf("public key: %v", err))
		result.ComputeValidity()
		return result, nil
	}

	result.SignatureValid = verifyHashes(a.ChainHash, result.ContentHash, a.Signature, pub)
	if !result.SignatureValid {
		result.AddError("signature does not verify")
	}

	if len(v.pinned) > 0 && !v.isPinned(pub) {
		result.AddError("signing key is not an accepted signer")
	}
	v.checkSigner(ctx, result, &a, cert)

	result.ComputeValidity()
	return result, nil
}

// checkSigner derives the signer's standing from the key material rather than
// from the mode and serial the artifact declares about itself
func (v *BundleVerifier) checkSigner(ctx context.Context, result *VerificationResult, a *model.Artifact, cert *x509.Certificate) {
	certified := a.Mode == model.SigningModeCertified

	if cert == nil {
		if certified {
			result.AddError("certified artifact carries a bare public key instead of a certificate")
		}
		if !v.trustStore.Empty() {
			result.AddError("bare public key cannot be checked against the trust store")
		}
		if len(v.pinned) == 0 {
			result.AddWarning("signing key is not pinned: signer identity not checked")
		}
		if !certified {
			result.AddWarning("artifact was signed in uncertified mode")
		}
		return
	}

	result.SetSigner(cert)
	if certified {
		if a.CertificateSerial == MockCertificateSerial {
			result.AddError("certified artifact carries the uncertified placeholder serial")
		} else if a.CertificateSerial != cert.SerialNumber.String() {
			result.AddError("certificate serial does not match the signing certificate")
		}
	} else {
		result.AddWarning("artifact was signed in uncertified mode")
	}
	CheckSigner(ctx, v.trustStore, result, cert)
}

func (v *BundleVerifier) isPinned(pub *rsa.PublicKey) bool {
	for _, p := range v.pinned {
		if p.Equal(pub) {
			return true
		}
	}
	return false
}

// CanVerify returns true for JSON input
func (v *BundleVerifier) CanVerify(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}

// Format returns the format this verifier handles
func (v *BundleVerifier) Format() string {
	return FormatBundle
}
