package provider

import (
	"context"
	"net/http"
	"net/url"
)

// TradeshiftProvider submits raw UBL documents to the Tradeshift REST API
type TradeshiftProvider struct {
	http *httpClient
}

func NewTradeshift(creds Credentials, opts ...Option) (*TradeshiftProvider, error) {
	c, err := newHTTPClient(Tradeshift, creds, opts...)
	if err != nil {
		return nil, err
	}
	return &TradeshiftProvider{http: c}, nil
}

func (p *TradeshiftProvider) Name() string {
	return Tradeshift
}

func (p *TradeshiftProvider) Send(ctx context.Context, s *Submission) (*Receipt, error) {
	headers := map[string]string{
		"Content-Type":              "application/xml",
		"X-Tradeshift-SenderID":     s.SenderID,
		"X-Tradeshift-ReceiverID":   s.ReceiverID,
		"X-Tradeshift-DocumentType": "invoice",
		"X-Tradeshift-DocumentID":   s.InvoiceNumber,
	}

	data, err := p.http.do(ctx, "send", http.MethodPost, "/tradeshift/rest/external/documents",
		s.Document, headers, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return p.http.receipt("send", s.Document, data)
}

func (p *TradeshiftProvider) GetStatus(ctx context.Context, messageID string) (*StatusReport, error) {
	data, err := p.http.do(ctx, "status", http.MethodGet,
		"/tradeshift/rest/external/documents/"+url.PathEscape(messageID)+"/state", nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return p.http.statusReport("status", "state", data)
}

// ValidateParticipantID looks the participant up in the Tradeshift network
// directory. An unknown participant is not an error.
func (p *TradeshiftProvider) ValidateParticipantID(ctx context.Context, participantID string) (bool, error) {
	_, err := p.http.do(ctx, "lookup", http.MethodGet,
		"/tradeshift/rest/external/network/directory/"+url.PathEscape(participantID), nil, nil, http.StatusOK)
	if err != nil {
		if pe, ok := err.(*ProviderError); ok && pe.NotFound() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
