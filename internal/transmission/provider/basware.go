package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const ublInvoiceDocumentType = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"

// BaswareProvider submits documents wrapped in a JSON envelope
type BaswareProvider struct {
	http *httpClient
}

func NewBasware(creds Credentials, opts ...Option) (*BaswareProvider, error) {
	c, err := newHTTPClient(Basware, creds, opts...)
	if err != nil {
		return nil, err
	}
	return &BaswareProvider{http: c}, nil
}

func (p *BaswareProvider) Name() string {
	return Basware
}

type baswareDocument struct {
	SenderIdentifier   string `json:"senderIdentifier"`
	ReceiverIdentifier string `json:"receiverIdentifier"`
	DocumentType       string `json:"documentType"`
	DocumentID         string `json:"documentId"`
	DocumentContent    string `json:"documentContent"`
}

func (p *BaswareProvider) Send(ctx context.Context, s *Submission) (*Receipt, error) {
	body, err := json.Marshal(baswareDocument{
		SenderIdentifier:   s.SenderID,
		ReceiverIdentifier: s.ReceiverID,
		DocumentType:       ublInvoiceDocumentType,
		DocumentID:         s.InvoiceNumber,
		DocumentContent:    string(s.Document),
	})
	if err != nil {
		return nil, &ProviderError{Provider: Basware, Op: "send", Err: fmt.Errorf("encoding request: %w", err)}
	}

	data, err := p.http.do(ctx, "send", http.MethodPost, "/basware/api/v1/documents",
		body, map[string]string{"Content-Type": "application/json"}, http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return p.http.receipt("send", body, data)
}

func (p *BaswareProvider) GetStatus(ctx context.Context, messageID string) (*StatusReport, error) {
	data, err := p.http.do(ctx, "status", http.MethodGet,
		"/basware/api/v1/documents/"+url.PathEscape(messageID)+"/status", nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return p.http.statusReport("status", "status", data)
}

// ValidateParticipantID accepts every participant. Basware resolves the
// receiver on submission and rejects unknown ones there.
func (p *BaswareProvider) ValidateParticipantID(_ context.Context, _ string) (bool, error) {
	return true, nil
}
