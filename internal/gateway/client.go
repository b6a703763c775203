package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kinesis-pay/internal/metrics"
	"kinesis-pay/internal/models"
)

const (
	DefaultAPIBaseURL = "https://apip.kinesis.money"
	DefaultKMSBaseURL = "https://kms.kinesis.money"

	pathCreatePayment  = "/api/merchants/payment"
	pathPaymentStatus  = "/api/merchants/payment/id/sdk/"
	pathConfirmPayment = "/api/merchants/payment/confirm"
	pathOrderbook      = "/api/v1/exchange/coin-market-cap/orderbook/"

	maxResponseBytes = 1 << 20
)

// Payer-facing messages for creation failures.
const (
	MsgMissingPaymentID = "Failed to create Kinesis payment id"
	MsgGatewayDown      = "Failed to connect to Kinesis. Please try later."
)

// AuditSink stores request/response dumps against an invoice.
type AuditSink interface {
	LogExchange(ctx context.Context, invoiceID, title string, parts ...string)
}

type Config struct {
	BaseURL     string
	MerchantID  string
	AccessToken string
	SecretToken string
}

// Client issues signed calls to the Kinesis merchant API.
type Client struct {
	baseURL    string
	merchantID string
	signer     *Signer
	httpClient *http.Client
	audit      AuditSink
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, audit AuditSink, m *metrics.Metrics, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		merchantID: cfg.MerchantID,
		signer:     NewSigner(cfg.AccessToken, cfg.SecretToken),
		httpClient: httpClient,
		audit:      audit,
		metrics:    m,
		logger:     logger,
	}
}

type response struct {
	StatusCode int
	Body       []byte
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// CreatePayment asks the gateway for a payment id.
func (c *Client) CreatePayment(ctx context.Context, order PaymentOrder, ref AuditRef) (string, error) {
	payload := createPaymentRequest{
		GlobalMerchantID: c.merchantID,
		Amount:           order.Amount.StringFixed(2),
	}
	if order.Kau != nil && order.Kag != nil {
		payload.PaymentKauAmount = order.Kau.StringFixed(5)
		payload.PaymentKagAmount = order.Kag.StringFixed(5)
		payload.AmountCurrency = order.Currency
	}

	resp, err := c.do(ctx, "create_payment", http.MethodPost, pathCreatePayment, payload, ref)
	if err != nil {
		c.logger.Error("create payment request failed", zap.Error(err))
		return "", &models.InputError{Message: MsgGatewayDown, Err: err}
	}

	if !resp.ok() {
		statusErr := &StatusError{Op: "create payment", StatusCode: resp.StatusCode, Body: string(resp.Body)}
		if resp.StatusCode/100 == 4 {
			return "", &models.InputError{Message: clientErrorMessage(resp.Body, resp.StatusCode), Err: statusErr}
		}
		c.logger.Error("create payment rejected by gateway",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", truncate(resp.Body)))
		return "", &models.InputError{Message: MsgGatewayDown, Err: statusErr}
	}

	var body createPaymentResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.GlobalPaymentID == "" {
		return "", &models.InputError{Message: MsgMissingPaymentID, Err: err}
	}

	return body.GlobalPaymentID, nil
}

// GetStatus fetches the current gateway status of a payment.
func (c *Client) GetStatus(ctx context.Context, paymentID string, ref AuditRef) (*StatusResponse, error) {
	resp, err := c.do(ctx, "get_status", http.MethodGet, pathPaymentStatus+url.PathEscape(paymentID), nil, ref)
	if err != nil {
		return nil, models.NewInternalError("get payment status", err)
	}
	if !resp.ok() {
		return nil, models.NewInternalError("get payment status",
			&StatusError{Op: "unable to get payment status", StatusCode: resp.StatusCode, Body: string(resp.Body)})
	}

	status := &StatusResponse{}
	if err := json.Unmarshal(resp.Body, status); err != nil {
		return nil, models.NewInternalError("get payment status", fmt.Errorf("failed to decode status: %w", err))
	}
	status.Raw = json.RawMessage(resp.Body)

	return status, nil
}

// ConfirmPayment tells the gateway the merchant accepts a processed payment.
func (c *Client) ConfirmPayment(ctx context.Context, paymentID, orderID string, ref AuditRef) (*ConfirmResponse, error) {
	payload := confirmPaymentRequest{
		GlobalPaymentID: paymentID,
		OrderID:         orderID,
	}

	resp, err := c.do(ctx, "confirm_payment", http.MethodPost, pathConfirmPayment, payload, ref)
	if err != nil {
		return nil, models.NewInternalError("confirm payment", err)
	}
	if !resp.ok() {
		return nil, models.NewInternalError("confirm payment",
			&StatusError{Op: "unable to confirm payment", StatusCode: resp.StatusCode, Body: string(resp.Body)})
	}

	confirm := &ConfirmResponse{}
	if err := json.Unmarshal(resp.Body, confirm); err != nil {
		return nil, models.NewInternalError("confirm payment", fmt.Errorf("failed to decode confirmation: %w", err))
	}
	if confirm.Status != StatusProcessed {
		return nil, models.NewInternalError("confirm payment",
			fmt.Errorf("payment not approved: %s", truncate(resp.Body)))
	}
	if !confirm.reportedAmount().Valid {
		return nil, models.NewInternalError("confirm payment",
			fmt.Errorf("confirmation has no amount for currency %q: %s", confirm.PaymentCurrency, truncate(resp.Body)))
	}
	confirm.Raw = json.RawMessage(resp.Body)

	return confirm, nil
}

// GetExchangeRate returns the best bid for base priced in quote, e.g. KAU in USD.
func (c *Client) GetExchangeRate(ctx context.Context, base, quote string, ref AuditRef) (decimal.Decimal, error) {
	pair := strings.ToUpper(base) + "_" + strings.ToUpper(quote)
	op := fmt.Sprintf("get %s exchange rate", pair)

	resp, err := c.do(ctx, "get_exchange_rate", http.MethodGet, pathOrderbook+pair+"?level=1", nil, ref)
	if err != nil {
		return decimal.Zero, models.NewInternalError(op, err)
	}
	if !resp.ok() {
		return decimal.Zero, models.NewInternalError(op,
			&StatusError{Op: "failed to get exchange rate", StatusCode: resp.StatusCode, Body: string(resp.Body)})
	}

	var book orderbook
	if err := json.Unmarshal(resp.Body, &book); err != nil {
		return decimal.Zero, models.NewInternalError(op, fmt.Errorf("failed to decode orderbook: %w", err))
	}
	if len(book.Bids) == 0 {
		return decimal.Zero, models.NewInternalError(op, errors.New("orderbook has no bids"))
	}

	rate, err := bidPrice(book.Bids[0])
	if err != nil {
		return decimal.Zero, models.NewInternalError(op, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, models.NewInternalError(op, fmt.Errorf("non-positive rate %s", rate))
	}

	return rate, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload interface{}, ref AuditRef) (*response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	signed := c.signer.Sign(method, path, body)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, signed.Method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header = signed.Header.Clone()

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveGateway(operation, 0, time.Since(start))
		c.logExchange(ctx, ref, req, body, nil, err)
		return nil, fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	c.metrics.ObserveGateway(operation, httpResp.StatusCode, time.Since(start))
	if err != nil {
		c.logExchange(ctx, ref, req, body, nil, err)
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	resp := &response{StatusCode: httpResp.StatusCode, Body: respBody}
	c.logExchange(ctx, ref, req, body, resp, nil)

	c.logger.Debug("gateway call",
		zap.String("operation", operation),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	return resp, nil
}

func (c *Client) logExchange(ctx context.Context, ref AuditRef, req *http.Request, reqBody []byte, resp *response, callErr error) {
	if !ref.Enabled() || c.audit == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Method, req.URL.String())
	for _, k := range []string{HeaderNonce, HeaderAPIKey, HeaderSignature, "Accept", "Content-Type"} {
		if v := req.Header.Get(k); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	if len(reqBody) > 0 {
		b.WriteString("\n")
		b.Write(reqBody)
	}
	parts := []string{b.String()}

	switch {
	case callErr != nil:
		parts = append(parts, "ERROR: "+callErr.Error())
	case resp != nil:
		parts = append(parts, fmt.Sprintf("HTTP %d\n\n%s", resp.StatusCode, resp.Body))
	}

	c.audit.LogExchange(ctx, ref.InvoiceID, ref.Title, parts...)
}

// bidPrice reads an orderbook level that is either a bare price or a [price, size] pair.
func bidPrice(raw json.RawMessage) (decimal.Decimal, error) {
	var level []json.RawMessage
	if err := json.Unmarshal(raw, &level); err == nil {
		if len(level) == 0 {
			return decimal.Zero, errors.New("empty orderbook level")
		}
		raw = level[0]
	}

	var price decimal.Decimal
	if err := price.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse bid %s: %w", raw, err)
	}
	return price, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
