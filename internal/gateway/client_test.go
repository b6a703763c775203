package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kinesis-pay/internal/models"
)

type recordedAudit struct {
	invoiceID string
	title     string
	parts     []string
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (a *auditRecorder) LogExchange(_ context.Context, invoiceID, title string, parts ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, recordedAudit{invoiceID: invoiceID, title: title, parts: parts})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *auditRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	audit := &auditRecorder{}
	client := NewClient(Config{
		BaseURL:     srv.URL,
		MerchantID:  "merchant-1",
		AccessToken: "access-token",
		SecretToken: "secret-token",
	}, srv.Client(), audit, nil, zap.NewNop())
	return client, audit
}

func TestCreatePayment(t *testing.T) {
	var gotBody string
	client, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathCreatePayment, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		want := expectedSignature("secret-token", r.Header.Get(HeaderNonce), r.Method, r.URL.RequestURI(), gotBody)
		assert.Equal(t, want, r.Header.Get(HeaderSignature))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"globalPaymentId":"pay-123"}`))
	})

	id, err := client.CreatePayment(context.Background(), PaymentOrder{
		Amount:   decimal.RequireFromString("45"),
		Currency: "USD",
	}, AuditRef{InvoiceID: "inv-1", Title: "CREATE PAYMENT"})

	require.NoError(t, err)
	assert.Equal(t, "pay-123", id)
	assert.JSONEq(t, `{"globalMerchantId":"merchant-1","amount":"45.00"}`, gotBody)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "inv-1", audit.entries[0].invoiceID)
	assert.Equal(t, "CREATE PAYMENT", audit.entries[0].title)
	assert.Contains(t, audit.entries[0].parts[1], "HTTP 201")
}

func TestCreatePaymentDualCommodityFields(t *testing.T) {
	var gotBody string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"globalPaymentId":"pay-9"}`))
	})

	kau := decimal.RequireFromString("0.02")
	kag := decimal.RequireFromString("1.85185")
	_, err := client.CreatePayment(context.Background(), PaymentOrder{
		Amount:   decimal.RequireFromString("50"),
		Currency: "EUR",
		Kau:      &kau,
		Kag:      &kag,
	}, AuditRef{})

	require.NoError(t, err)
	assert.JSONEq(t, `{
		"globalMerchantId":"merchant-1",
		"amount":"50.00",
		"paymentKauAmount":"0.02000",
		"paymentKagAmount":"1.85185",
		"amountCurrency":"EUR"
	}`, gotBody)
}

func TestCreatePaymentErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "402 with JSON message",
			status:  http.StatusPaymentRequired,
			body:    `{"message":"Merchant account is suspended"}`,
			wantMsg: "Merchant account is suspended",
		},
		{
			name:    "402 with plain text",
			status:  http.StatusPaymentRequired,
			body:    "Amount below minimum\n",
			wantMsg: "Amount below minimum",
		},
		{
			name:    "400 with empty body",
			status:  http.StatusBadRequest,
			body:    "",
			wantMsg: "Bad Request",
		},
		{
			name:    "500 is generic",
			status:  http.StatusInternalServerError,
			body:    "stack trace with internals",
			wantMsg: MsgGatewayDown,
		},
		{
			name:    "200 without payment id",
			status:  http.StatusOK,
			body:    `{"status":"ok"}`,
			wantMsg: MsgMissingPaymentID,
		},
		{
			name:    "200 with garbage",
			status:  http.StatusOK,
			body:    `<html>`,
			wantMsg: MsgMissingPaymentID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.CreatePayment(context.Background(), PaymentOrder{Amount: decimal.NewFromInt(10), Currency: "USD"}, AuditRef{})
			require.Error(t, err)

			inputErr, ok := models.AsInputError(err)
			require.True(t, ok, "expected an input error, got %T", err)
			assert.Equal(t, tt.wantMsg, inputErr.Message)
		})
	}
}

func TestCreatePaymentTransportFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	client.baseURL = "http://127.0.0.1:1"

	_, err := client.CreatePayment(context.Background(), PaymentOrder{Amount: decimal.NewFromInt(1), Currency: "USD"}, AuditRef{})
	inputErr, ok := models.AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, MsgGatewayDown, inputErr.Message)
}

func TestGetStatus(t *testing.T) {
	const payload = `{"status":"created","expiryAt":"2026-01-02T15:04:05.000Z","paymentCurrency":null}`

	client, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, pathPaymentStatus+"pay-1", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		want := expectedSignature("secret-token", r.Header.Get(HeaderNonce), "GET", r.URL.Path, "{}")
		assert.Equal(t, want, r.Header.Get(HeaderSignature))
		w.Write([]byte(payload))
	})

	status, err := client.GetStatus(context.Background(), "pay-1", AuditRef{InvoiceID: "inv-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, status.Status)
	assert.JSONEq(t, payload, string(status.Raw))
	require.NotNil(t, status.Expiry())
	assert.Equal(t, 2026, status.Expiry().Year())
	assert.Empty(t, audit.entries, "an empty title must not write an audit entry")
}

func TestGetStatusNon2xxIsInternal(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"not found"}`))
	})

	_, err := client.GetStatus(context.Background(), "pay-1", AuditRef{})
	require.Error(t, err)

	var internal *models.InternalError
	assert.True(t, errors.As(err, &internal))
	_, isInput := models.AsInputError(err)
	assert.False(t, isInput)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantAmount string
		wantCur    string
	}{
		{
			name:       "KAU confirmation",
			status:     http.StatusOK,
			body:       `{"status":"processed","paymentCurrency":"KAU","paymentKauAmount":"0.02345","paymentKagAmount":"1.5"}`,
			wantAmount: "0.02345",
			wantCur:    "KAU",
		},
		{
			name:       "KAG confirmation",
			status:     http.StatusOK,
			body:       `{"status":"processed","paymentCurrency":"KAG","paymentKauAmount":"0.02","paymentKagAmount":1.85185}`,
			wantAmount: "1.85185",
			wantCur:    "KAG",
		},
		{
			name:    "not processed",
			status:  http.StatusOK,
			body:    `{"status":"rejected"}`,
			wantErr: true,
		},
		{
			name:    "null amount for reported commodity",
			status:  http.StatusOK,
			body:    `{"status":"processed","paymentCurrency":"KAU","paymentKauAmount":null,"paymentKagAmount":"1.5"}`,
			wantErr: true,
		},
		{
			name:    "unknown commodity",
			status:  http.StatusOK,
			body:    `{"status":"processed","paymentCurrency":"XAU","paymentKauAmount":"0.1"}`,
			wantErr: true,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `oops`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"globalPaymentId":"pay-1","orderId":"inv-1"}`, string(body))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			resp, err := client.ConfirmPayment(context.Background(), "pay-1", "inv-1", AuditRef{})
			if tt.wantErr {
				require.Error(t, err)
				var internal *models.InternalError
				assert.True(t, errors.As(err, &internal))
				return
			}
			require.NoError(t, err)
			confirmed := resp.Confirmed()
			assert.Equal(t, tt.wantAmount, confirmed.Value.String())
			assert.Equal(t, tt.wantCur, confirmed.Currency)
		})
	}
}

func TestGetExchangeRate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		want    string
		wantErr bool
	}{
		{name: "bare bids", body: `{"bids":[2500.5, 2400]}`, status: http.StatusOK, want: "2500.5"},
		{name: "price size pairs", body: `{"bids":[["27.12","100"],["27.00","5"]]}`, status: http.StatusOK, want: "27.12"},
		{name: "no bids", body: `{"bids":[]}`, status: http.StatusOK, wantErr: true},
		{name: "zero bid", body: `{"bids":[0]}`, status: http.StatusOK, wantErr: true},
		{name: "non-2xx", body: `nope`, status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, pathOrderbook+"KAU_USD", r.URL.Path)
				assert.Equal(t, "level=1", r.URL.RawQuery)
				want := expectedSignature("secret-token", r.Header.Get(HeaderNonce), "GET", r.URL.RequestURI(), "{}")
				assert.Equal(t, want, r.Header.Get(HeaderSignature))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			rate, err := client.GetExchangeRate(context.Background(), "kau", "usd", AuditRef{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rate.String())
		})
	}
}

func TestAuditDumpIncludesRequestAndResponse(t *testing.T) {
	client, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("Insufficient funds"))
	})

	_, err := client.CreatePayment(context.Background(), PaymentOrder{Amount: decimal.NewFromInt(5), Currency: "USD"},
		AuditRef{InvoiceID: "inv-7", Title: "CREATE PAYMENT"})
	require.Error(t, err)

	require.Len(t, audit.entries, 1)
	parts := audit.entries[0].parts
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "POST "))
	assert.Contains(t, parts[0], HeaderSignature+": ")
	assert.Contains(t, parts[0], `"amount":"5.00"`)
	assert.Equal(t, "HTTP 402\n\nInsufficient funds", parts[1])
}
