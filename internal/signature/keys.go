package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// DefaultKeyBits is the RSA modulus size used for generated keys
const DefaultKeyBits = 2048

// ParsePrivateKeyPEM decodes an RSA private key in PKCS#8 or PKCS#1 form
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, NewSigningError("load key", "no PEM block found", nil)
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, NewSigningError("load key", "invalid PKCS#8 key", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, NewSigningError("load key", fmt.Sprintf("unsupported key type %T", key), nil)
		}
		return rsaKey, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, NewSigningError("load key", "invalid PKCS#1 key", err)
		}
		return key, nil
	default:
		return nil, NewSigningError("load key", fmt.Sprintf("unexpected PEM block %q", block.Type), nil)
	}
}

// ParseCertificatesPEM decodes every certificate in a PEM bundle, leaf first
func ParseCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, ErrCertInvalid(err)
			}
			certs = append(certs, cert)
		}
		data = rest
	}
	if len(certs) == 0 {
		return nil, ErrCertInvalid(fmt.Errorf("no certificate found in PEM data"))
	}
	return certs, nil
}

// ParsePublicKeyPEM accepts a PUBLIC KEY block or a certificate and returns its RSA key
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, *x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, nil, fmt.Errorf("unsupported public key type %T", key)
		}
		return rsaKey, nil, nil
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid certificate: %w", err)
		}
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, nil, fmt.Errorf("unsupported certificate key type %T", cert.PublicKey)
		}
		return rsaKey, cert, nil
	default:
		return nil, nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

// EncodePublicKeyPEM renders an RSA public key as a SubjectPublicKeyInfo PEM block
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// EncodeCertificatePEM renders a certificate as a PEM block
func EncodeCertificatePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// KeyPair holds a generated key in PEM form
type KeyPair struct {
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

// GenerateKeyPair creates an RSA key, PKCS#8 private and SPKI public
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < DefaultKeyBits {
		return nil, fmt.Errorf("key size %d below minimum %d", bits, DefaultKeyBits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, NewSigningError("generate key", "rsa key generation failed", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, NewSigningError("generate key", "encoding private key", err)
	}
	pub, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, NewSigningError("generate key", "encoding public key", err)
	}

	return &KeyPair{
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		PublicKeyPEM:  pub,
	}, nil
}

// CertificateRequest describes a self-signed signing certificate
type CertificateRequest struct {
	CommonName   string
	Organization string
	Country      string
	SerialNumber string // subject serial, typically the issuer TRN
	ValidFor     time.Duration
	NotBefore    time.Time
}

// GenerateSelfSignedCertificate issues a certificate for the given key, for
// development and test deployments without a CA-issued certificate
func GenerateSelfSignedCertificate(privateKeyPEM []byte, req CertificateRequest) ([]byte, error) {
	key, err := ParsePrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	cert, err := selfSigned(key, req)
	if err != nil {
		return nil, err
	}
	return EncodeCertificatePEM(cert), nil
}

func selfSigned(key *rsa.PrivateKey, req CertificateRequest) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, NewSigningError("generate certificate", "serial number", err)
	}

	notBefore := req.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Minute)
	}
	validFor := req.ValidFor
	if validFor == 0 {
		validFor = 365 * 24 * time.Hour
	}

	subject := pkix.Name{
		CommonName:   req.CommonName,
		SerialNumber: req.SerialNumber,
	}
	if req.Organization != "" {
		subject.Organization = []string{req.Organization}
	}
	if req.Country != "" {
		subject.Country = []string{req.Country}
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, NewSigningError("generate certificate", "x509 creation failed", err)
	}
	return x509.ParseCertificate(der)
}

// CertificateInfo describes the signing certificate
type CertificateInfo struct {
	Subject         string    `json:"subject"`
	Issuer          string    `json:"issuer"`
	SerialNumber    string    `json:"serial_number"`
	NotBefore       time.Time `json:"not_before"`
	NotAfter        time.Time `json:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Fingerprint     string    `json:"fingerprint_sha256"`
	SelfSigned      bool      `json:"self_signed"`
}

// DescribeCertificate extracts the metadata of cert as of now
func DescribeCertificate(cert *x509.Certificate, now time.Time) CertificateInfo {
	sum := sha256.Sum256(cert.Raw)
	return CertificateInfo{
		Subject:         cert.Subject.String(),
		Issuer:          cert.Issuer.String(),
		SerialNumber:    cert.SerialNumber.String(),
		NotBefore:       cert.NotBefore,
		NotAfter:        cert.NotAfter,
		DaysUntilExpiry: daysUntil(cert.NotAfter, now),
		Fingerprint:     hex.EncodeToString(sum[:]),
		SelfSigned:      cert.Subject.String() == cert.Issuer.String(),
	}
}

// InspectCertificate parses the first certificate in a PEM bundle and describes it
func InspectCertificate(data []byte, now time.Time) (*CertificateInfo, error) {
	certs, err := ParseCertificatesPEM(data)
	if err != nil {
		return nil, err
	}
	info := DescribeCertificate(certs[0], now)
	return &info, nil
}

func daysUntil(t, now time.Time) int {
	return int(t.Sub(now).Hours() / 24)
}
