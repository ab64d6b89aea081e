package signature_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/invoice-engine/internal/document"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/tax"
)

var (
	testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	noLog   = zerolog.Nop()
)

func fixedClock() time.Time { return testNow }

type credentials struct {
	keyPEM  []byte
	certPEM []byte
}

// newCredentials generates a key and a self-signed certificate starting at notBefore
func newCredentials(t *testing.T, notBefore time.Time, validFor time.Duration) credentials {
	t.Helper()

	pair, err := signature.GenerateKeyPair(0)
	require.NoError(t, err)

	cert, err := signature.GenerateSelfSignedCertificate(pair.PrivateKeyPEM, signature.CertificateRequest{
		CommonName:   "Gulf Trading LLC",
		Organization: "Gulf Trading LLC",
		Country:      "AE",
		SerialNumber: "100123456700003",
		NotBefore:    notBefore,
		ValidFor:     validFor,
	})
	require.NoError(t, err)

	return credentials{keyPEM: pair.PrivateKeyPEM, certPEM: cert}
}

func validCredentials(t *testing.T) credentials {
	return newCredentials(t, testNow.AddDate(0, -1, 0), 365*24*time.Hour)
}

func newCertifiedEngine(t *testing.T, log zerolog.Logger) *signature.Engine {
	t.Helper()
	creds := validCredentials(t)
	e, err := signature.NewEngine(context.Background(), signature.Options{
		PrivateKeyPEM:  creds.keyPEM,
		CertificatePEM: creds.certPEM,
		Logger:         log,
		Now:            fixedClock,
	})
	require.NoError(t, err)
	return e
}

func capture() (*bytes.Buffer, zerolog.Logger) {
	var buf bytes.Buffer
	return &buf, zerolog.New(&buf)
}

// canonicalDocument renders a calculated invoice with the given number
func canonicalDocument(t *testing.T, number string) (*model.Invoice, []byte) {
	t.Helper()

	inv := &model.Invoice{
		Number:    number,
		Type:      model.InvoiceTypeStandard,
		IssueDate: model.NewDate(2025, 5, 20),
		Currency:  "AED",
		Issuer:    model.Party{Name: "Gulf Trading LLC", TaxID: "100123456700003", City: "Dubai"},
		Counterparty: model.Party{
			Name:  "Desert Supplies FZE",
			TaxID: "100987654300003",
		},
		Lines: []model.LineItem{
			{Sequence: 1, Name: "Consulting", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("500.00"), TaxCode: "SR"},
		},
	}
	_, errs := tax.NewCalculator(nil).Apply(inv)
	require.Empty(t, errs)

	doc, verrs, err := document.NewSerializer().Serialize(inv)
	require.NoError(t, err)
	require.Empty(t, verrs)
	return inv, doc
}

// sealedChain issues n documents for one issuer and returns their links
func sealedChain(t *testing.T, e *signature.Engine, n int) []signature.ChainLink {
	t.Helper()

	links := make([]signature.ChainLink, 0, n)
	previous := signature.GenesisHash
	for i := 1; i <= n; i++ {
		inv, doc := canonicalDocument(t, fmt.Sprintf("INV-%04d", i))
		seal, err := e.Seal(doc, inv.ChainFields(), previous)
		require.NoError(t, err)

		links = append(links, signature.ChainLink{
			Fields:            inv.ChainFields(),
			Document:          doc,
			ContentHash:       seal.ContentHash,
			PreviousChainHash: seal.PreviousChainHash,
			ChainHash:         seal.ChainHash,
			Signature:         seal.Signature,
		})
		previous = seal.ChainHash
	}
	return links
}
