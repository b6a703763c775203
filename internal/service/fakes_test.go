package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/models"
	"kinesis-pay/internal/repository/inmemory"
)

const (
	testSecret     = "s3cr3t-token"
	testLinkSecret = "link-secret"
)

// fakeKinesis is an httptest stand-in for the merchant API.
type fakeKinesis struct {
	srv *httptest.Server

	mu         sync.Mutex
	statuses   []string // returned in order, the last one repeats
	createBody map[string]interface{}
	createCode int
	createResp string
	bids       map[string]string

	creates  atomic.Int32
	polls    atomic.Int32
	confirms atomic.Int32

	confirmFail  atomic.Bool
	confirmOrder atomic.Value
}

func newFakeKinesis(t *testing.T) *fakeKinesis {
	t.Helper()
	f := &fakeKinesis{
		statuses:   []string{gateway.StatusCreated},
		createCode: http.StatusCreated,
		createResp: `{"globalPaymentId":"pay-1"}`,
		bids:       map[string]string{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeKinesis) setStatuses(statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
}

func (f *fakeKinesis) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/merchants/payment":
		f.creates.Add(1)
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.createBody = body
		code, resp := f.createCode, f.createResp
		f.mu.Unlock()
		w.WriteHeader(code)
		w.Write([]byte(resp))

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/merchants/payment/id/sdk/"):
		n := int(f.polls.Add(1))
		f.mu.Lock()
		status := f.statuses[len(f.statuses)-1]
		if n <= len(f.statuses) {
			status = f.statuses[n-1]
		}
		f.mu.Unlock()
		fmt.Fprintf(w, `{"status":%q,"expiryAt":"2026-10-17T12:10:00Z","paymentCurrency":"KAU","paymentKauAmount":"0.01650"}`, status)

	case r.Method == http.MethodPost && r.URL.Path == "/api/merchants/payment/confirm":
		f.confirms.Add(1)
		var body struct {
			OrderID string `json:"orderId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.confirmOrder.Store(body.OrderID)
		if f.confirmFail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream unavailable"))
			return
		}
		w.Write([]byte(`{"status":"processed","paymentCurrency":"KAU","paymentKauAmount":"0.01650","paymentKagAmount":"1.20000"}`))

	case strings.HasPrefix(r.URL.Path, "/api/v1/exchange/coin-market-cap/orderbook/"):
		pair := strings.TrimPrefix(r.URL.Path, "/api/v1/exchange/coin-market-cap/orderbook/")
		f.mu.Lock()
		bid, ok := f.bids[pair]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"bids":[[%q,"10"]]}`, bid)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// harness wires the services over in-memory stores and a fake gateway.
type harness struct {
	kinesis    *fakeKinesis
	client     *gateway.Client
	sessions   *inmemory.SessionStore
	ledger     *inmemory.Ledger
	auditLog   *inmemory.AuditLog
	links      *SecureLinks
	initiator  *Initiator
	reconciler *Reconciler
	recorder   *Recorder
}

func newHarness(t *testing.T, mode models.PricingMode, pct string) *harness {
	t.Helper()

	h := &harness{
		kinesis:  newFakeKinesis(t),
		sessions: inmemory.NewSessionStore(),
		ledger:   inmemory.NewLedger(),
		auditLog: inmemory.NewAuditLog(),
		links:    NewSecureLinks(testLinkSecret),
	}

	log := zap.NewNop()
	audit := NewAuditLogger(h.auditLog, testSecret, log)
	h.client = gateway.NewClient(gateway.Config{
		BaseURL:     h.kinesis.srv.URL,
		MerchantID:  "merchant-1",
		AccessToken: "access-1",
		SecretToken: testSecret,
	}, h.kinesis.srv.Client(), audit, nil, log)

	rates := NewRateCache(h.client, nil, time.Minute, log)
	pricer := NewPricer(mode, "USD", decimal.RequireFromString(pct), rates)
	h.recorder = NewRecorder(h.ledger, h.links, log)
	h.initiator = NewInitiator(InitiatorConfig{
		Configured: true,
		KMSBaseURL: "https://kms.example",
		StatusURL:  "https://shop.example/api/v1/kinesis-pay/status",
	}, pricer, h.client, h.sessions, h.links, nil, log)
	h.reconciler = NewReconciler(h.client, h.sessions, h.recorder, audit, nil, log)

	return h
}

func (h *harness) invoice(t *testing.T, id, total, currency string) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		ID:        id,
		PublicID:  "pub-" + id,
		Total:     decimal.RequireFromString(total),
		Currency:  currency,
		Status:    models.InvoiceStatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, h.ledger.CreateInvoice(context.Background(), inv))
	return inv
}
