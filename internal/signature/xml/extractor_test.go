package xml

import (
	"testing"
)

func TestSignatureExtractor_CanExtract(t *testing.T) {
	extractor := NewSignatureExtractor()

	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{
			name:     "XML with Signature",
			data:     []byte(`<?xml version="1.0"?><Invoice><ID>INV-1</ID><Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo/></Signature></Invoice>`),
			expected: true,
		},
		{
			name:     "XML with ds:Signature",
			data:     []byte(`<?xml version="1.0"?><Invoice><ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:SignedInfo/></ds:Signature></Invoice>`),
			expected: true,
		},
		{
			name:     "XML without Signature",
			data:     []byte(`<?xml version="1.0"?><Invoice><ID>INV-1</ID></Invoice>`),
			expected: false,
		},
		{
			name:     "JSON bundle",
			data:     []byte(`{"artifact": {"signature": "abc"}}`),
			expected: false,
		},
		{
			name:     "Empty",
			data:     []byte(``),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractor.CanExtract(tt.data)
			if result != tt.expected {
				t.Errorf("CanExtract: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSignatureExtractor_Extract(t *testing.T) {
	extractor := NewSignatureExtractor()

	tests := []struct {
		name       string
		data       []byte
		wantErr    bool
		wantParent string
	}{
		{
			name:       "direct child",
			data:       []byte(`<Invoice><ID>INV-1</ID><Signature><SignedInfo/></Signature></Invoice>`),
			wantParent: "Invoice",
		},
		{
			name:       "prefixed",
			data:       []byte(`<Invoice xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:Signature><ds:SignedInfo/></ds:Signature></Invoice>`),
			wantParent: "Invoice",
		},
		{
			name:       "nested",
			data:       []byte(`<Envelope><Body><Invoice><Signature/></Invoice></Body></Envelope>`),
			wantParent: "Invoice",
		},
		{
			name:    "no signature",
			data:    []byte(`<Invoice><ID>INV-1</ID></Invoice>`),
			wantErr: true,
		},
		{
			name:    "malformed",
			data:    []byte(`<Invoice><ID>`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := extractor.Extract(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if result.SignatureElement.Tag != "Signature" {
				t.Errorf("signature tag: got %s", result.SignatureElement.Tag)
			}
			if result.SignedElement.Tag != tt.wantParent {
				t.Errorf("signed element: got %s, want %s", result.SignedElement.Tag, tt.wantParent)
			}
		})
	}
}

func TestExtractCertificateData_Missing(t *testing.T) {
	result, err := NewSignatureExtractor().Extract([]byte(`<Invoice><Signature><KeyInfo/></Signature></Invoice>`))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if _, err := ExtractCertificateData(result.SignatureElement); err == nil {
		t.Error("expected error when KeyInfo has no certificate")
	}
}
