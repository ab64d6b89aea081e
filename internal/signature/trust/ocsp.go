package trust

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// Default OCSP configuration
const (
	DefaultOCSPTimeout  = 10 * time.Second
	DefaultOCSPCacheTTL = 1 * time.Hour

	maxOCSPResponseSize = 1 << 20
)

// OCSPCache caches revocation results per certificate
type OCSPCache struct {
	mu      sync.RWMutex
	entries map[string]ocspCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type ocspCacheEntry struct {
	notRevoked bool
	expiresAt  time.Time
}

// NewOCSPCache creates a cache whose entries live for at most ttl
func NewOCSPCache(ttl time.Duration) *OCSPCache {
	return &OCSPCache{
		entries: make(map[string]ocspCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached result for cert, if still fresh
func (c *OCSPCache) Get(cert *x509.Certificate) (notRevoked bool, found bool) {
	if cert == nil {
		return false, false
	}

	key := certCacheKey(cert)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return false, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, false
	}

	return entry.notRevoked, true
}

// Set caches a result for the cache TTL
func (c *OCSPCache) Set(cert *x509.Certificate, notRevoked bool) {
	c.SetUntil(cert, notRevoked, time.Time{})
}

// SetUntil caches a result until the responder's next update, capped at the TTL
func (c *OCSPCache) SetUntil(cert *x509.Certificate, notRevoked bool, nextUpdate time.Time) {
	if cert == nil {
		return
	}

	expires := c.now().Add(c.ttl)
	if !nextUpdate.IsZero() && nextUpdate.Before(expires) {
		expires = nextUpdate
	}

	c.mu.Lock()
	c.entries[certCacheKey(cert)] = ocspCacheEntry{notRevoked: notRevoked, expiresAt: expires}
	c.mu.Unlock()
}

// Clear removes all cached entries
func (c *OCSPCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]ocspCacheEntry)
	c.mu.Unlock()
}

// Size returns the number of cached entries
func (c *OCSPCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func certCacheKey(cert *x509.Certificate) string {
	return cert.Issuer.String() + ":" + cert.SerialNumber.String()
}

// CheckOCSP asks each responder listed in cert whether it has been revoked.
// The first responder that answers decides.
func CheckOCSP(ctx context.Context, client *http.Client, cert, issuer *x509.Certificate) (revoked bool, err error) {
	resp, err := fetchOCSP(ctx, client, cert, issuer)
	if err != nil {
		return false, err
	}
	return resp.Status == ocsp.Revoked, nil
}

func fetchOCSP(ctx context.Context, client *http.Client, cert, issuer *x509.Certificate) (*ocsp.Response, error) {
	if len(cert.OCSPServer) == 0 {
		return nil, fmt.Errorf("no OCSP server URL in certificate")
	}
	if client == nil {
		client = http.DefaultClient
	}

	request, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCSP request: %w", err)
	}

	var lastErr error
	for _, server := range cert.OCSPServer {
		resp, err := queryOCSPServer(ctx, client, server, request, issuer)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("all OCSP servers failed: %w", lastErr)
}

func queryOCSPServer(ctx context.Context, client *http.Client, serverURL string, request []byte, issuer *x509.Certificate) (*ocsp.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	httpResp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCSP request to %s failed: %w", serverURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCSP server %s returned status %d", serverURL, httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxOCSPResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read OCSP response: %w", err)
	}

	resp, err := ocsp.ParseResponseForCert(body, nil, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCSP response: %w", err)
	}

	switch resp.Status {
	case ocsp.Good, ocsp.Revoked:
		return resp, nil
	case ocsp.Unknown:
		return nil, fmt.Errorf("OCSP status unknown")
	default:
		return nil, fmt.Errorf("unexpected OCSP status: %d", resp.Status)
	}
}
