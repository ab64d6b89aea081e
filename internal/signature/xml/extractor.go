package xml

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
)

// XML namespaces
const (
	XMLDSigNamespace = "http://www.w3.org/2000/09/xmldsig#"
)

// SignatureExtractor locates the enveloped signature of a signed document
type SignatureExtractor struct{}

// NewSignatureExtractor creates a new signature extractor
func NewSignatureExtractor() *SignatureExtractor {
	return &SignatureExtractor{}
}

// ExtractionResult contains the extracted signature and related elements
type ExtractionResult struct {
	// SignatureElement is the <Signature> element
	SignatureElement *etree.Element
	// SignedElement is the element the signature is enveloped in
	SignedElement *etree.Element
	// Document is the parsed XML document
	Document *etree.Document
}

// Extract finds the XMLDSig signature in XML data
func (e *SignatureExtractor) Extract(data []byte) (*ExtractionResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty XML document")
	}

	sig := findSignatureElement(root)
	if sig == nil {
		return nil, fmt.Errorf("no Signature element found in document")
	}

	signedElement := sig.Parent()
	if signedElement == nil {
		signedElement = root
	}

	return &ExtractionResult{
		SignatureElement: sig,
		SignedElement:    signedElement,
		Document:         doc,
	}, nil
}

// findSignatureElement prefers a direct child of the root and falls back to a
// depth-first search
func findSignatureElement(root *etree.Element) *etree.Element {
	for _, path := range []string{"Signature", "ds:Signature"} {
		if elem := root.FindElement(path); elem != nil {
			return elem
		}
	}
	return findElementRecursive(root, "Signature")
}

// findElementRecursive searches for an element by local name recursively
func findElementRecursive(elem *etree.Element, localName string) *etree.Element {
	if elem.Tag == localName {
		return elem
	}
	for _, child := range elem.ChildElements() {
		if found := findElementRecursive(child, localName); found != nil {
			return found
		}
	}
	return nil
}

// ExtractCertificateData returns the DER certificate embedded in KeyInfo
func ExtractCertificateData(sig *etree.Element) ([]byte, error) {
	paths := []string{
		"KeyInfo/X509Data/X509Certificate",
		"ds:KeyInfo/ds:X509Data/ds:X509Certificate",
	}

	for _, path := range paths {
		if certElem := sig.FindElement(path); certElem != nil && certElem.Text() != "" {
			der, err := base64.StdEncoding.DecodeString(string(bytes.Join(bytes.Fields([]byte(certElem.Text())), nil)))
			if err != nil {
				return nil, fmt.Errorf("failed to decode certificate: %w", err)
			}
			return der, nil
		}
	}

	return nil, fmt.Errorf("no X509Certificate found in Signature")
}

// CanExtract returns true if the data appears to be XML with a signature
func (e *SignatureExtractor) CanExtract(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("<")) {
		return false
	}
	return bytes.Contains(trimmed, []byte("<Signature")) ||
		bytes.Contains(trimmed, []byte(":Signature"))
}
