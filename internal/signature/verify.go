package signature

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"

	"github.com/rezonia/invoice-engine/internal/model"
)

// Verify reports whether signature covers chainHash and the SHA-256 content
// hash of document under publicKey. Any failure yields false.
func Verify(document []byte, chainHash, signature string, publicKey crypto.PublicKey) bool {
	return VerifyWith(DefaultHashAlgorithm, document, chainHash, signature, publicKey)
}

// VerifyWith is Verify for a specific content hash algorithm
func VerifyWith(algorithm HashAlgorithm, document []byte, chainHash, signature string, publicKey crypto.PublicKey) bool {
	return verifyHashes(chainHash, algorithm.ContentHash(document), signature, publicKey)
}

func verifyHashes(chainHash, contentHash, signature string, publicKey crypto.PublicKey) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	pub, isRSA := publicKey.(*rsa.PublicKey)
	if !isRSA || pub == nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) == 0 {
		return false
	}

	digest := sha256.Sum256(signingInput(chainHash, contentHash))
	err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	return err == nil
}

// ChainLink is one stored invoice as seen by chain verification
type ChainLink struct {
	Fields            model.ChainFields
	Document          []byte // optional; when set the content hash is recomputed
	ContentHash       string
	PreviousChainHash string
	ChainHash         string
	Signature         string
}

// LinkFromArtifact builds a chain link from a stored artifact and its invoice
func LinkFromArtifact(inv *model.Invoice, a *model.Artifact) ChainLink {
	return ChainLink{
		Fields:            inv.ChainFields(),
		Document:          a.Document,
		ContentHash:       a.ContentHash,
		PreviousChainHash: a.PreviousChainHash,
		ChainHash:         a.ChainHash,
		Signature:         a.Signature,
	}
}

// VerifyChain walks links in issue order from the genesis hash and returns a
// *ChainError for the first link that does not recompute. Signatures are
// checked when publicKey is non-nil.
func VerifyChain(algorithm HashAlgorithm, links []ChainLink, publicKey *rsa.PublicKey) error {
	previous := GenesisHash
	for i, link := range links {
		fail := func(reason string) error {
			return &ChainError{Index: i, InvoiceNumber: link.Fields.InvoiceNumber, Reason: reason}
		}

		if link.PreviousChainHash != previous {
			return fail("previous chain hash does not match preceding invoice")
		}
		if algorithm.ChainHash(link.Fields, previous) != link.ChainHash {
			return fail("chain hash mismatch")
		}
		if link.Document != nil && algorithm.ContentHash(link.Document) != link.ContentHash {
			return fail("content hash mismatch")
		}
		if publicKey != nil && !verifyHashes(link.ChainHash, link.ContentHash, link.Signature, publicKey) {
			return fail("signature invalid")
		}
		previous = link.ChainHash
	}
	return nil
}
