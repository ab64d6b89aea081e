package server_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/invoice-engine/internal/issuance"
	istore "github.com/rezonia/invoice-engine/internal/issuance/store"
	"github.com/rezonia/invoice-engine/internal/server"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/signature/xml"
	"github.com/rezonia/invoice-engine/internal/transmission"
	"github.com/rezonia/invoice-engine/internal/transmission/provider"
	tstore "github.com/rezonia/invoice-engine/internal/transmission/store"
)

const invoiceJSON = `{
	"number": "INV-0001",
	"type": "standard",
	"issue_date": "2025-03-10",
	"currency": "AED",
	"issuer": {"name": "Gulf Trading LLC", "tax_id": "100123456700003", "city": "Dubai"},
	"counterparty": {"name": "Desert Supplies FZE", "tax_id": "100987654300003"},
	"lines": [
		{"sequence": 1, "name": "Consulting", "quantity": "10", "unit_price": "500", "tax_code": "SR"},
		{"sequence": 2, "name": "Export freight", "quantity": "1", "unit_price": "200", "tax_code": "ZR"}
	]
}`

type testServer struct {
	handler http.Handler
	mock    *provider.MockProvider
	engine  *signature.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	engine, err := signature.NewEngine(context.Background(), signature.Options{})
	require.NoError(t, err)

	envelopes, err := xml.NewSigner(engine.TLSCertificate())
	require.NoError(t, err)

	certs, err := signature.ParseCertificatesPEM(engine.CertificatePEM())
	require.NoError(t, err)

	mock := provider.NewMock()
	services := server.Services{
		Issuance:     issuance.NewService(istore.NewMemory(), engine, zerolog.Nop()),
		Transmission: transmission.NewMachine(tstore.NewMemory(), provider.NewRegistry(mock)),
		Signer:       engine,
		Envelopes:    envelopes,
		Verifiers: signature.NewVerifierRegistry(
			xml.NewXMLVerifier(nil, xml.WithPinnedCertificates(certs...)),
			signature.NewBundleVerifier(nil, signature.WithPinnedKeys(engine.PublicKey())),
		),
	}

	srv := server.NewServer(&server.Config{Address: ":0"}, services, zerolog.Nop())
	return &testServer{handler: srv.Handler(), mock: mock, engine: engine}
}

func (ts *testServer) do(method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) issue(t *testing.T) server.IssueResponse {
	t.Helper()
	w := ts.do(http.MethodPost, "/api/v1/invoices", []byte(invoiceJSON))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp server.IssueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response server.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.NotEmpty(t, response.Time)
	assert.Equal(t, "uncertified", response.SigningMode)
	assert.NotEmpty(t, response.Warnings)
}

func TestIssueEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.issue(t)

	assert.Equal(t, "5450.00", resp.Invoice.GrossAmount.StringFixed(2))
	assert.Equal(t, "250.00", resp.Invoice.TaxAmount.StringFixed(2))
	assert.Len(t, resp.Invoice.Breakdown, 2)
	assert.Equal(t, int64(1), resp.Artifact.Sequence)
	assert.Equal(t, signature.GenesisHash, resp.Artifact.PreviousChainHash)
	assert.NotEmpty(t, resp.Artifact.Signature)

	w := ts.do(http.MethodPost, "/api/v1/invoices", []byte(invoiceJSON))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"rule":"duplicate"`)
}

func TestIssueEndpoint_Errors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{name: "MalformedJSON", body: `{"number":`, wantCode: http.StatusBadRequest, wantKind: server.KindBadRequest},
		{
			name:     "UnknownTaxCode",
			body:     `{"number":"X","issue_date":"2025-03-10","currency":"AED","issuer":{"name":"A","tax_id":"100123456700003"},"counterparty":{"name":"B"},"lines":[{"sequence":1,"name":"x","quantity":"1","unit_price":"1","tax_code":"XX"}]}`,
			wantCode: http.StatusUnprocessableEntity,
			wantKind: server.KindValidation,
		},
		{
			name:     "PrepaidAboveGross",
			body:     strings.Replace(invoiceJSON, `"currency": "AED",`, `"currency": "AED", "prepaid_amount": "99999",`, 1),
			wantCode: http.StatusUnprocessableEntity,
			wantKind: server.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/v1/invoices", []byte(tt.body))
			assert.Equal(t, tt.wantCode, w.Code)

			var resp server.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp.Error)
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/invoices/validate", []byte(invoiceJSON))
	require.Equal(t, http.StatusOK, w.Code)

	var resp server.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Invoice)
	assert.Equal(t, "5450.00", resp.Invoice.GrossAmount.StringFixed(2))

	// validation does not issue
	w = ts.do(http.MethodGet, "/api/v1/invoices/100123456700003/INV-0001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentEndpoints(t *testing.T) {
	ts := newTestServer(t)
	issued := ts.issue(t)

	w := ts.do(http.MethodGet, "/api/v1/invoices/100123456700003/INV-0001/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	assert.Equal(t, issued.Artifact.ContentHash, w.Header().Get("X-Content-Hash"))
	assert.Equal(t, issued.Artifact.ContentHash, ts.engine.ContentHash(w.Body.Bytes()))

	w = ts.do(http.MethodGet, "/api/v1/invoices/100123456700003/INV-0001/document?envelope=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	envelope := w.Body.Bytes()
	assert.Contains(t, string(envelope), "SignatureValue")

	w = ts.do(http.MethodPost, "/api/v1/signatures/verify", envelope)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result signature.VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, signature.FormatXMLDSig, result.Format)
	assert.Equal(t, "INV-0001", result.InvoiceNumber)

	w = ts.do(http.MethodGet, "/api/v1/invoices/100123456700003/INV-0001/bundle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	bundle := w.Body.Bytes()

	w = ts.do(http.MethodPost, "/api/v1/signatures/verify", bundle)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, signature.FormatBundle, result.Format)
	assert.True(t, result.Valid, "%v", result.Errors)
	assert.True(t, result.ContentHashMatch)
	assert.True(t, result.ChainHashMatch)

	// an uncertified bundle relabelled as certified is refused
	relabelled := bytes.Replace(bundle, []byte(`"mode":"uncertified"`), []byte(`"mode":"certified"`), 1)
	require.NotEqual(t, bundle, relabelled)
	w = ts.do(http.MethodPost, "/api/v1/signatures/verify", relabelled)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "bare public key")

	tampered := bytes.Replace(envelope, []byte("Consulting"), []byte("Consultinq"), 1)
	w = ts.do(http.MethodPost, "/api/v1/signatures/verify", tampered)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/signatures/verify", []byte("plain text"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChainAndAuditEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.issue(t)

	second := bytes.Replace([]byte(invoiceJSON), []byte("INV-0001"), []byte("INV-0002"), 1)
	w := ts.do(http.MethodPost, "/api/v1/invoices", second)
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/issuers/100123456700003/chain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report issuance.ChainReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Length)
	assert.NotEmpty(t, report.HeadChainHash)

	w = ts.do(http.MethodGet, "/api/v1/issuers/100123456700003/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "FAF_100123456700003.csv")
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, "Gulf Trading LLC", records[1][1])

	w = ts.do(http.MethodGet, "/api/v1/issuers/100123456700003/audit?from=2025-13-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/issuers/100123456700003/audit?format=xlsx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransmissionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.issue(t)

	req := []byte(`{"issuer_tax_id":"100123456700003","invoice_number":"INV-0001",
		"sender_id":"0235:100123456700003","receiver_id":"0235:100987654300003","provider":"mock"}`)

	w := ts.do(http.MethodPost, "/api/v1/transmissions", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sent server.TransmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.True(t, sent.Success)
	assert.Equal(t, "SENT", sent.Status)
	assert.Equal(t, "MOCK-INV-0001-0001", sent.MessageID)
	assert.NotEmpty(t, sent.ProviderResponse)

	w = ts.do(http.MethodPost, "/api/v1/transmissions", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, ts.mock.Sent(), 1)

	w = ts.do(http.MethodGet, "/api/v1/transmissions/mock/"+sent.MessageID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status server.TransmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "DELIVERED", status.Status)

	w = ts.do(http.MethodGet, "/api/v1/invoices/100123456700003/INV-0001/transmissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"DELIVERED"`)

	w = ts.do(http.MethodGet, "/api/v1/transmissions/mock/unknown/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	unknownProvider := bytes.Replace(req, []byte(`"provider":"mock"`), []byte(`"provider":"fedex"`), 1)
	w = ts.do(http.MethodPost, "/api/v1/transmissions", unknownProvider)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), server.KindUnknownProvider)

	w = ts.do(http.MethodGet, "/api/v1/transmissions/fedex/"+sent.MessageID+"/status", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	missingRoute := []byte(`{"issuer_tax_id":"100123456700003","invoice_number":"INV-0001","provider":"mock"}`)
	w = ts.do(http.MethodPost, "/api/v1/transmissions", missingRoute)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "routing_id")
}

func TestCertificateAndTaxCodes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/signing/certificate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cert server.CertificateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cert))
	assert.Equal(t, signature.MockCertificateSerial, cert.Serial)
	assert.Equal(t, "sha256", cert.HashAlgorithm)
	assert.Contains(t, cert.CertificatePEM, "BEGIN CERTIFICATE")

	w = ts.do(http.MethodGet, "/api/v1/tax-codes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"SR"`)
}
