package signature

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/rezonia/invoice-engine/internal/decimal"
	"github.com/rezonia/invoice-engine/internal/model"
)

// HashAlgorithm names the digest used for content and chain hashes
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
	SHA512 HashAlgorithm = "sha512"

	DefaultHashAlgorithm = SHA256
)

// GenesisHash is the previous chain hash of an issuer's first invoice
const GenesisHash = ""

// ParseHashAlgorithm resolves a configured algorithm name; empty selects the default
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	switch HashAlgorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return DefaultHashAlgorithm, nil
	case SHA256:
		return SHA256, nil
	case SHA512:
		return SHA512, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %q", name)
	}
}

func (a HashAlgorithm) new() hash.Hash {
	if a == SHA512 {
		return sha512.New()
	}
	return sha256.New()
}

// Sum returns the lowercase hex digest of data
func (a HashAlgorithm) Sum(data []byte) string {
	h := a.new()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash hashes the canonical document bytes
func (a HashAlgorithm) ContentHash(document []byte) string {
	return a.Sum(document)
}

// ChainHash hashes the invoice identity fields together with the previous chain hash
func (a HashAlgorithm) ChainHash(fields model.ChainFields, previous string) string {
	return a.Sum([]byte(ChainString(fields, previous)))
}

// ChainString renders the pipe-joined input of a chain hash
func ChainString(fields model.ChainFields, previous string) string {
	return strings.Join([]string{
		fields.InvoiceNumber,
		fields.IssueDate.String(),
		fields.IssuerTaxID,
		fields.CounterpartyTaxID,
		decimal.Format(fields.GrossTotal),
		decimal.Format(fields.TaxTotal),
		previous,
	}, "|")
}

// signingInput is the message covered by an invoice signature
func signingInput(chainHash, contentHash string) []byte {
	return []byte(chainHash + "|" + contentHash)
}
