package xml

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/signature/trust"
)

const canonical = `<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2" xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cbc:UBLVersionID>2.1</cbc:UBLVersionID>
  <cbc:ID>INV-2025-0001</cbc:ID>
  <cbc:IssueDate>2025-01-15</cbc:IssueDate>
  <cbc:Note>Tom &amp; Jerry&apos;s</cbc:Note>
</Invoice>
`

var signNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func signingCertificate(t *testing.T) tls.Certificate {
	t.Helper()

	pair, err := signature.GenerateKeyPair(0)
	require.NoError(t, err)
	certPEM, err := signature.GenerateSelfSignedCertificate(pair.PrivateKeyPEM, signature.CertificateRequest{
		CommonName: "Gulf Trading LLC",
		NotBefore:  signNow.Add(-time.Hour),
		ValidFor:   30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	cert, err := tls.X509KeyPair(certPEM, pair.PrivateKeyPEM)
	require.NoError(t, err)
	cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return cert
}

func envelope(t *testing.T, cert tls.Certificate) []byte {
	t.Helper()
	signer, err := NewSigner(cert)
	require.NoError(t, err)
	signed, err := signer.Envelope([]byte(canonical), "inv-0001")
	require.NoError(t, err)
	return signed
}

func clock() time.Time { return signNow }

func TestSigner_Envelope(t *testing.T) {
	signed := envelope(t, signingCertificate(t))

	assert.Contains(t, string(signed), `ID="inv-0001"`)
	assert.Contains(t, string(signed), "SignatureValue")
	assert.Contains(t, string(signed), "X509Certificate")
	assert.True(t, NewSignatureExtractor().CanExtract(signed))
}

func TestSigner_RequiresKey(t *testing.T) {
	_, err := NewSigner(tls.Certificate{})
	assert.Error(t, err)
}

func TestXMLVerifier_RoundTrip(t *testing.T) {
	cert := signingCertificate(t)
	signed := envelope(t, cert)

	store := trust.NewTrustStore(trust.WithClock(clock))
	store.AddCertificate(cert.Leaf)

	v := NewXMLVerifier(store, WithClock(clock), WithPinnedCertificates(cert.Leaf))
	result, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)

	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.True(t, result.SignatureValid)
	assert.True(t, result.CertChainValid)
	assert.Equal(t, "INV-2025-0001", result.InvoiceNumber)
	assert.Equal(t, signature.FormatXMLDSig, result.Format)
	require.NotNil(t, result.Signer)
	assert.Equal(t, "Gulf Trading LLC", result.Signer.Name)
}

func TestXMLVerifier_Tampered(t *testing.T) {
	signed := envelope(t, signingCertificate(t))
	tampered := bytes.Replace(signed, []byte("INV-2025-0001"), []byte("INV-2025-0002"), 1)

	result, err := NewXMLVerifier(nil, WithClock(clock)).Verify(context.Background(), tampered)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.False(t, result.SignatureValid)
}

func TestXMLVerifier_UnpinnedSigner(t *testing.T) {
	signed := envelope(t, signingCertificate(t))
	other := signingCertificate(t)

	v := NewXMLVerifier(nil, WithClock(clock), WithPinnedCertificates(other.Leaf))
	result, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)

	assert.True(t, result.SignatureValid)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "signing certificate is not an accepted signer")
}

func TestXMLVerifier_NoSignature(t *testing.T) {
	_, err := NewXMLVerifier(nil).Verify(context.Background(), []byte(canonical))

	var sigErr *signature.SignatureError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, signature.ErrCodeNoSignature, sigErr.Code)
}

func TestXMLVerifier_InRegistry(t *testing.T) {
	signed := envelope(t, signingCertificate(t))

	registry := signature.NewVerifierRegistry(
		signature.NewBundleVerifier(nil),
		NewXMLVerifier(nil, WithClock(clock)),
	)

	v, err := registry.Detect(signed)
	require.NoError(t, err)
	assert.Equal(t, signature.FormatXMLDSig, v.Format())
}
