package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submission() *Submission {
	return &Submission{
		InvoiceNumber: "INV-0001",
		SenderID:      "0235:100123456700003",
		ReceiverID:    "0235:100987654300003",
		Document:      []byte("<Invoice/>"),
	}
}

func TestTradeshift_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tradeshift/rest/external/documents", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
		assert.Equal(t, "0235:100123456700003", r.Header.Get("X-Tradeshift-SenderID"))
		assert.Equal(t, "0235:100987654300003", r.Header.Get("X-Tradeshift-ReceiverID"))
		assert.Equal(t, "INV-0001", r.Header.Get("X-Tradeshift-DocumentID"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<Invoice/>", string(body))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"documentId":"ts-42"}`))
	}))
	defer srv.Close()

	p, err := NewTradeshift(Credentials{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)

	receipt, err := p.Send(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, "ts-42", receipt.MessageID)
	assert.Equal(t, "<Invoice/>", string(receipt.Request))
	assert.JSONEq(t, `{"documentId":"ts-42"}`, string(receipt.Response))
}

func TestTradeshift_SendErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRejected  bool
		wantRetryable bool
	}{
		{name: "Unprocessable", status: http.StatusUnprocessableEntity, wantRejected: true},
		{name: "Unauthorized", status: http.StatusUnauthorized},
		{name: "ServerError", status: http.StatusBadGateway, wantRetryable: true},
		{name: "Throttled", status: http.StatusTooManyRequests, wantRetryable: true},
		// the API answers 201 on success; 200 is unexpected
		{name: "WrongSuccessCode", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("nope"))
			}))
			defer srv.Close()

			p, err := NewTradeshift(Credentials{BaseURL: srv.URL, APIKey: "secret"})
			require.NoError(t, err)

			_, err = p.Send(context.Background(), submission())
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, "nope", pe.Body)
			assert.Equal(t, tt.wantRejected, pe.Rejected())
			assert.Equal(t, tt.wantRetryable, pe.Retryable())
		})
	}
}

func TestTradeshift_GetStatusAndLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tradeshift/rest/external/documents/ts-42/state":
			w.Write([]byte(`{"state":"delivered"}`))
		case "/tradeshift/rest/external/documents/ts-43/state":
			w.Write([]byte(`{}`))
		case "/tradeshift/rest/external/network/directory/0235:100987654300003":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := NewTradeshift(Credentials{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)
	ctx := context.Background()

	report, err := p.GetStatus(ctx, "ts-42")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, report.Status)

	report, err = p.GetStatus(ctx, "ts-43")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, report.Status)

	ok, err := p.ValidateParticipantID(ctx, "0235:100987654300003")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ValidateParticipantID(ctx, "0235:999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTradeshift_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p, err := NewTradeshift(Credentials{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Send(ctx, submission())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBasware_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/basware/api/v1/documents", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var doc baswareDocument
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "0235:100123456700003", doc.SenderIdentifier)
		assert.Equal(t, "0235:100987654300003", doc.ReceiverIdentifier)
		assert.Equal(t, ublInvoiceDocumentType, doc.DocumentType)
		assert.Equal(t, "<Invoice/>", doc.DocumentContent)

		w.Write([]byte(`{"documentId":"bw-7"}`))
	}))
	defer srv.Close()

	p, err := NewBasware(Credentials{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	receipt, err := p.Send(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, "bw-7", receipt.MessageID)

	var sent baswareDocument
	require.NoError(t, json.Unmarshal(receipt.Request, &sent))
	assert.Equal(t, "INV-0001", sent.DocumentID)
	assert.Equal(t, "<Invoice/>", sent.DocumentContent)
}

func TestBasware_SendWithoutDocumentID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p, err := NewBasware(Credentials{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	_, err = p.Send(context.Background(), submission())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "no document id")
}

func TestBasware_GetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/basware/api/v1/documents/bw-7/status", r.URL.Path)
		w.Write([]byte(`{"status":"REJECTED","reason":"unknown buyer"}`))
	}))
	defer srv.Close()

	p, err := NewBasware(Credentials{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	report, err := p.GetStatus(context.Background(), "bw-7")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, report.Status)
	assert.Contains(t, string(report.Details), "unknown buyer")
}

func TestMock(t *testing.T) {
	p := NewMock()
	ctx := context.Background()

	first, err := p.Send(ctx, submission())
	require.NoError(t, err)
	assert.Equal(t, "MOCK-INV-0001-0001", first.MessageID)

	second, err := p.Send(ctx, submission())
	require.NoError(t, err)
	assert.Equal(t, "MOCK-INV-0001-0002", second.MessageID)

	sent := p.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "<Invoice/>", string(sent[0].Document))

	report, err := p.GetStatus(ctx, first.MessageID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, report.Status)

	p.SetStatus(second.MessageID, StatusRejected)
	report, err = p.GetStatus(ctx, second.MessageID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, report.Status)

	_, err = p.GetStatus(ctx, "MOCK-unknown")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.NotFound())
}

func TestBuild(t *testing.T) {
	creds := map[string]Credentials{
		Tradeshift: {BaseURL: "https://api.example.test", APIKey: "k"},
	}

	r, err := Build([]string{"Mock", " tradeshift"}, creds)
	require.NoError(t, err)
	assert.Equal(t, []string{Mock, Tradeshift}, r.Names())

	p, err := r.Get(Tradeshift)
	require.NoError(t, err)
	assert.Equal(t, Tradeshift, p.Name())

	_, err = r.Get(Basware)
	assert.Error(t, err)

	_, err = Build([]string{"basware"}, creds)
	assert.ErrorContains(t, err, "requires a base URL")

	_, err = Build([]string{"fax"}, creds)
	assert.ErrorContains(t, err, "unknown provider")
}
