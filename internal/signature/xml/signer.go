package xml

import (
	"crypto/tls"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// IDAttribute carries the reference the enveloped signature points at
const IDAttribute = "ID"

// Signer wraps canonical documents in an enveloped XMLDSig signature for exchange
type Signer struct {
	ctx *dsig.SigningContext
}

// NewSigner creates a signer for the given key and certificate
func NewSigner(cert tls.Certificate) (*Signer, error) {
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return nil, fmt.Errorf("signer needs a certificate and private key")
	}

	ks := dsig.TLSCertKeyStore(cert)
	ctx := dsig.NewDefaultSigningContext(&ks)
	ctx.IdAttribute = IDAttribute
	if err := ctx.SetSignatureMethod(dsig.RSASHA256SignatureMethod); err != nil {
		return nil, fmt.Errorf("setting signature method: %w", err)
	}

	return &Signer{ctx: ctx}, nil
}

// Envelope returns document with an enveloped signature appended to its
// root. The root receives id as its ID attribute.
func (s *Signer) Envelope(document []byte, id string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(document); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty XML document")
	}
	root.CreateAttr(IDAttribute, id)

	signed, err := s.ctx.SignEnveloped(root)
	if err != nil {
		return nil, fmt.Errorf("signing envelope: %w", err)
	}

	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	out.SetRoot(signed)
	return out.WriteToBytes()
}
