package trust

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/ocsp"
)

// TrustStore holds the CA bundle the signing certificate must chain to and
// performs revocation checks against the issuing CA
type TrustStore struct {
	roots       *x509.CertPool
	rootCerts   []*x509.Certificate // kept for goxmldsig, which needs a slice
	ocspCache   *OCSPCache
	ocspTimeout time.Duration
	httpClient  *http.Client
	softFail    bool
	now         func() time.Time
}

// TrustStoreOption configures a TrustStore
type TrustStoreOption func(*TrustStore)

// NewTrustStore creates an empty trust store
func NewTrustStore(opts ...TrustStoreOption) *TrustStore {
	store := &TrustStore{
		roots:       x509.NewCertPool(),
		rootCerts:   make([]*x509.Certificate, 0),
		ocspCache:   NewOCSPCache(DefaultOCSPCacheTTL),
		ocspTimeout: DefaultOCSPTimeout,
		httpClient:  &http.Client{},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// LoadTrustStore creates a trust store from a PEM CA bundle on disk
func LoadTrustStore(path string, opts ...TrustStoreOption) (*TrustStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle %s: %w", path, err)
	}

	store := NewTrustStore(opts...)
	if err := store.AddCertificatesFromPEM(data); err != nil {
		return nil, fmt.Errorf("loading CA bundle %s: %w", path, err)
	}
	return store, nil
}

// WithSoftFail enables soft-fail mode for OCSP checks
// When enabled, OCSP failures don't cause verification to fail
func WithSoftFail() TrustStoreOption {
	return func(s *TrustStore) {
		s.softFail = true
	}
}

// WithOCSPTimeout sets the timeout for OCSP requests
func WithOCSPTimeout(d time.Duration) TrustStoreOption {
	return func(s *TrustStore) {
		s.ocspTimeout = d
	}
}

// WithOCSPCacheTTL sets the TTL for OCSP cache entries
func WithOCSPCacheTTL(d time.Duration) TrustStoreOption {
	return func(s *TrustStore) {
		s.ocspCache = NewOCSPCache(d)
	}
}

// WithHTTPClient sets the client used for OCSP requests
func WithHTTPClient(c *http.Client) TrustStoreOption {
	return func(s *TrustStore) {
		s.httpClient = c
	}
}

// WithClock overrides the verification time source
func WithClock(now func() time.Time) TrustStoreOption {
	return func(s *TrustStore) {
		s.now = now
	}
}

// AddCertificate adds a single certificate to the trust store
func (s *TrustStore) AddCertificate(cert *x509.Certificate) {
	if cert != nil {
		s.roots.AddCert(cert)
		s.rootCerts = append(s.rootCerts, cert)
	}
}

// AddCertificates adds multiple certificates to the trust store
func (s *TrustStore) AddCertificates(certs ...*x509.Certificate) {
	for _, cert := range certs {
		s.AddCertificate(cert)
	}
}

// AddCertificatesFromPEM parses and adds certificates from PEM data
func (s *TrustStore) AddCertificatesFromPEM(pemData []byte) error {
	var added int
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return fmt.Errorf("failed to parse certificate: %w", err)
			}
			s.AddCertificate(cert)
			added++
		}
		pemData = rest
	}
	if added == 0 {
		return fmt.Errorf("no certificates found in PEM data")
	}
	return nil
}

// VerifyChain verifies the certificate chain against trusted roots
func (s *TrustStore) VerifyChain(cert *x509.Certificate, intermediates []*x509.Certificate) ([]*x509.Certificate, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is nil")
	}

	var interPool *x509.CertPool
	if len(intermediates) > 0 {
		interPool = x509.NewCertPool()
		for _, inter := range intermediates {
			interPool.AddCert(inter)
		}
	}

	opts := x509.VerifyOptions{
		Roots:         s.roots,
		Intermediates: interPool,
		CurrentTime:   s.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	chains, err := cert.Verify(opts)
	if err != nil {
		return nil, fmt.Errorf("chain verification failed: %w", err)
	}

	if len(chains) == 0 {
		return nil, fmt.Errorf("no valid certificate chains found")
	}

	return chains[0], nil
}

// CheckRevocation reports whether cert is still good according to the
// issuer's OCSP responder. Certificates without a responder are treated as good.
func (s *TrustStore) CheckRevocation(ctx context.Context, cert *x509.Certificate, issuer *x509.Certificate) (bool, error) {
	if cert == nil || issuer == nil {
		return false, fmt.Errorf("certificate or issuer is nil")
	}

	if notRevoked, found := s.ocspCache.Get(cert); found {
		return notRevoked, nil
	}

	if len(cert.OCSPServer) == 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.ocspTimeout)
	defer cancel()

	resp, err := fetchOCSP(ctx, s.httpClient, cert, issuer)
	if err != nil {
		if s.softFail {
			return true, fmt.Errorf("OCSP check failed (soft-fail enabled): %w", err)
		}
		return false, fmt.Errorf("OCSP check failed: %w", err)
	}

	notRevoked := resp.Status != ocsp.Revoked
	s.ocspCache.SetUntil(cert, notRevoked, resp.NextUpdate)

	return notRevoked, nil
}

// Roots returns the certificate pool
func (s *TrustStore) Roots() *x509.CertPool {
	return s.roots
}

// RootCerts returns the root certificates as a slice
func (s *TrustStore) RootCerts() []*x509.Certificate {
	return s.rootCerts
}

// IsSoftFail returns whether soft-fail mode is enabled
func (s *TrustStore) IsSoftFail() bool {
	return s.softFail
}

// Empty reports whether no CA has been loaded; a nil store is empty
func (s *TrustStore) Empty() bool {
	return s == nil || len(s.rootCerts) == 0
}
