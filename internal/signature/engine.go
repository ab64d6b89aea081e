package signature

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature/trust"
)

const (
	// MockCertificateSerial marks artifacts signed without a real certificate
	MockCertificateSerial = "MOCK-CERT-001"

	// ExpiryWarningDays is how close to expiry a certificate starts warning
	ExpiryWarningDays = 30

	signatureLogInterval = 100
)

// Options configures NewEngine
type Options struct {
	PrivateKeyPEM  []byte
	CertificatePEM []byte // leaf first, optional intermediates after it
	Production     bool
	HashAlgorithm  string

	// TrustStore, when non-empty, must anchor the certificate chain
	TrustStore      *trust.TrustStore
	CheckRevocation bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// Engine hashes and signs canonical documents. It is immutable once built
// and safe for concurrent use.
type Engine struct {
	mode      model.SigningMode
	key       *rsa.PrivateKey
	cert      *x509.Certificate
	selfCert  *x509.Certificate // ephemeral certificate for envelopes in uncertified mode
	serial    string
	algorithm HashAlgorithm
	warnings  []string
	log       zerolog.Logger
	now       func() time.Time
	signed    atomic.Int64
}

// Seal is the hashing and signing outcome for one document
type Seal struct {
	ContentHash       string
	PreviousChainHash string
	ChainHash         string
	Signature         string
	HashAlgorithm     HashAlgorithm
	CertificateSerial string
	Mode              model.SigningMode
	SignedAt          time.Time
}

// NewEngine loads the signing key and certificate and validates them.
// Without a key outside production the engine runs in uncertified mode with
// an ephemeral key.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	algorithm, err := ParseHashAlgorithm(opts.HashAlgorithm)
	if err != nil {
		return nil, &ConfigurationError{Setting: "hash_algorithm", Message: err.Error()}
	}

	e := &Engine{
		algorithm: algorithm,
		log:       opts.Logger,
		now:       now,
	}

	if opts.Production {
		if len(opts.PrivateKeyPEM) == 0 {
			return nil, &ConfigurationError{Setting: "signing_private_key", Message: "required in production"}
		}
		if len(opts.CertificatePEM) == 0 {
			return nil, &ConfigurationError{Setting: "signing_certificate", Message: "required in production"}
		}
	}

	if len(opts.PrivateKeyPEM) == 0 {
		return e.uncertified(nil, "no signing key configured")
	}

	key, err := ParsePrivateKeyPEM(opts.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if len(opts.CertificatePEM) == 0 {
		return e.uncertified(key, "no signing certificate configured")
	}

	certs, err := ParseCertificatesPEM(opts.CertificatePEM)
	if err != nil {
		return nil, err
	}
	cert := certs[0]

	certKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok || !certKey.Equal(&key.PublicKey) {
		return nil, NewSigningError("load key", "private key does not match certificate", nil)
	}

	info, err := e.validateCertificate(cert)
	if err != nil {
		return nil, err
	}

	if opts.TrustStore != nil && !opts.TrustStore.Empty() {
		if err := e.checkTrust(ctx, opts.TrustStore, cert, certs[1:], opts.CheckRevocation); err != nil {
			return nil, err
		}
	}

	e.mode = model.SigningModeCertified
	e.key = key
	e.cert = cert
	e.serial = info.SerialNumber

	e.log.Info().
		Str("mode", string(e.mode)).
		Str("subject", info.Subject).
		Str("serial", info.SerialNumber).
		Int("days_until_expiry", info.DaysUntilExpiry).
		Str("hash_algorithm", string(algorithm)).
		Msg("signing engine ready")

	return e, nil
}

func (e *Engine) uncertified(key *rsa.PrivateKey, reason string) (*Engine, error) {
	if key == nil {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, DefaultKeyBits)
		if err != nil {
			return nil, NewSigningError("load key", "generating ephemeral key", err)
		}
	}

	self, err := selfSigned(key, CertificateRequest{
		CommonName: "Uncertified Signing Key",
		NotBefore:  e.now().Add(-time.Minute),
	})
	if err != nil {
		return nil, err
	}

	e.mode = model.SigningModeUncertified
	e.key = key
	e.selfCert = self
	e.serial = MockCertificateSerial
	e.warnings = append(e.warnings, "uncertified signing mode: "+reason)

	e.log.Warn().
		Str("mode", string(e.mode)).
		Str("serial", e.serial).
		Str("reason", reason).
		Msg("UNCERTIFIED SIGNING MODE: artifacts are not legally compliant")

	return e, nil
}

// validateCertificate enforces the validity window and records expiry warnings
func (e *Engine) validateCertificate(cert *x509.Certificate) (CertificateInfo, error) {
	info, warning, err := ValidateCertificate(cert, e.now())
	if err != nil {
		return info, err
	}
	if warning != "" {
		e.warnings = append(e.warnings, warning)
		e.log.Warn().
			Str("serial", info.SerialNumber).
			Int("days_until_expiry", info.DaysUntilExpiry).
			Msg(warning)
	}
	return info, nil
}

func (e *Engine) checkTrust(ctx context.Context, store *trust.TrustStore, cert *x509.Certificate, intermediates []*x509.Certificate, revocation bool) error {
	subject := cert.Subject.CommonName

	chain, err := store.VerifyChain(cert, intermediates)
	if err != nil {
		return ErrChainInvalid(subject, err)
	}
	if !revocation || len(chain) < 2 {
		return nil
	}

	notRevoked, err := store.CheckRevocation(ctx, cert, chain[1])
	if err != nil {
		if !notRevoked {
			return ErrOCSPUnavailable(subject, err)
		}
		e.warnings = append(e.warnings, err.Error())
		e.log.Warn().Err(err).Str("subject", subject).Msg("revocation check skipped")
		return nil
	}
	if !notRevoked {
		return ErrCertRevoked(subject)
	}
	return nil
}

// ValidateCertificate checks the validity window of cert at now. The
// returned warning is non-empty when expiry is within ExpiryWarningDays.
func ValidateCertificate(cert *x509.Certificate, now time.Time) (CertificateInfo, string, error) {
	info := DescribeCertificate(cert, now)
	subject := cert.Subject.CommonName

	if now.Before(cert.NotBefore) {
		return info, "", ErrCertNotYetValid(subject, cert.NotBefore, info.DaysUntilExpiry)
	}
	if now.After(cert.NotAfter) {
		return info, "", ErrCertExpired(subject, cert.NotAfter, info.DaysUntilExpiry)
	}
	if info.DaysUntilExpiry < ExpiryWarningDays {
		return info, fmt.Sprintf("signing certificate expires in %d days", info.DaysUntilExpiry), nil
	}
	return info, "", nil
}

// Revalidate re-checks the certificate window at the given time without
// changing the engine
func (e *Engine) Revalidate(now time.Time) (*CertificateInfo, error) {
	if e.cert == nil {
		return nil, nil
	}
	info, warning, err := ValidateCertificate(e.cert, now)
	if err != nil {
		e.log.Error().Err(err).Str("serial", info.SerialNumber).Msg("signing certificate no longer valid")
		return &info, err
	}
	if warning != "" {
		e.log.Warn().Str("serial", info.SerialNumber).Int("days_until_expiry", info.DaysUntilExpiry).Msg(warning)
	}
	return &info, nil
}

// Mode reports whether the engine signs with a real certificate
func (e *Engine) Mode() model.SigningMode {
	return e.mode
}

// HashAlgorithm returns the configured digest
func (e *Engine) HashAlgorithm() HashAlgorithm {
	return e.algorithm
}

// CertificateSerial returns the signing certificate serial or the mock placeholder
func (e *Engine) CertificateSerial() string {
	return e.serial
}

// Warnings returns the non-fatal issues found at load time
func (e *Engine) Warnings() []string {
	out := make([]string, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// Certificate describes the signing certificate, nil in uncertified mode
func (e *Engine) Certificate() *CertificateInfo {
	if e.cert == nil {
		return nil
	}
	info := DescribeCertificate(e.cert, e.now())
	return &info
}

// CertificatePEM returns the certificate used in signature envelopes
func (e *Engine) CertificatePEM() []byte {
	return EncodeCertificatePEM(e.envelopeCertificate())
}

// PublicKey returns the verification key
func (e *Engine) PublicKey() *rsa.PublicKey {
	return &e.key.PublicKey
}

// TLSCertificate pairs the signing key with its certificate for envelope signing
func (e *Engine) TLSCertificate() tls.Certificate {
	cert := e.envelopeCertificate()
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  e.key,
		Leaf:        cert,
	}
}

func (e *Engine) envelopeCertificate() *x509.Certificate {
	if e.cert != nil {
		return e.cert
	}
	return e.selfCert
}

// SignatureCount returns the number of signatures produced
func (e *Engine) SignatureCount() int64 {
	return e.signed.Load()
}

// ContentHash hashes the canonical document bytes
func (e *Engine) ContentHash(document []byte) string {
	return e.algorithm.ContentHash(document)
}

// ChainHash links fields to the previous chain hash of the same issuer
func (e *Engine) ChainHash(fields model.ChainFields, previous string) string {
	return e.algorithm.ChainHash(fields, previous)
}

// Sign produces a base64 RSA-PSS signature over chainHash|contentHash
func (e *Engine) Sign(chainHash, contentHash string) (string, error) {
	digest := sha256.Sum256(signingInput(chainHash, contentHash))
	sig, err := rsa.SignPSS(rand.Reader, e.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", NewSigningError("sign", "rsa-pss signing failed", err)
	}

	if n := e.signed.Add(1); n%signatureLogInterval == 0 {
		e.log.Info().Int64("count", n).Str("mode", string(e.mode)).Msg("signatures produced")
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// Seal hashes the document, links it to previous and signs the result
func (e *Engine) Seal(document []byte, fields model.ChainFields, previous string) (*Seal, error) {
	contentHash := e.ContentHash(document)
	chainHash := e.ChainHash(fields, previous)

	sig, err := e.Sign(chainHash, contentHash)
	if err != nil {
		return nil, err
	}

	return &Seal{
		ContentHash:       contentHash,
		PreviousChainHash: previous,
		ChainHash:         chainHash,
		Signature:         sig,
		HashAlgorithm:     e.algorithm,
		CertificateSerial: e.serial,
		Mode:              e.mode,
		SignedAt:          e.now().UTC(),
	}, nil
}

// Verify checks a signature made by this engine
func (e *Engine) Verify(document []byte, chainHash, signature string) bool {
	return VerifyWith(e.algorithm, document, chainHash, signature, &e.key.PublicKey)
}

// VerifyChain recomputes links with the engine's algorithm and key
func (e *Engine) VerifyChain(links []ChainLink) error {
	return VerifyChain(e.algorithm, links, &e.key.PublicKey)
}
