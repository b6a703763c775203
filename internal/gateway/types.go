package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"kinesis-pay/internal/models"
)

// Gateway status strings.
const (
	StatusCreated   = "created"
	StatusProcessed = "processed"
	StatusRejected  = "rejected"
	StatusExpired   = "expired"
)

// AuditRef asks the client to log a call's request and response against an invoice.
// An empty Title disables logging for the call.
type AuditRef struct {
	InvoiceID string
	Title     string
}

func (r AuditRef) Enabled() bool {
	return r.Title != ""
}

// PaymentOrder is what the merchant asks the payer to pay.
type PaymentOrder struct {
	Amount   decimal.Decimal
	Currency string
	// Kau and Kag are only set by the dual-commodity pricing mode.
	Kau *decimal.Decimal
	Kag *decimal.Decimal
}

type createPaymentRequest struct {
	GlobalMerchantID string `json:"globalMerchantId"`
	Amount           string `json:"amount"`
	PaymentKauAmount string `json:"paymentKauAmount,omitempty"`
	PaymentKagAmount string `json:"paymentKagAmount,omitempty"`
	AmountCurrency   string `json:"amountCurrency,omitempty"`
}

type createPaymentResponse struct {
	GlobalPaymentID string `json:"globalPaymentId"`
}

type confirmPaymentRequest struct {
	GlobalPaymentID string `json:"globalPaymentId"`
	OrderID         string `json:"orderId"`
}

// StatusResponse is the gateway's view of a payment. Raw holds the payload verbatim.
type StatusResponse struct {
	Status           string              `json:"status"`
	ExpiryAt         json.RawMessage     `json:"expiryAt,omitempty"`
	PaymentCurrency  string              `json:"paymentCurrency,omitempty"`
	PaymentKauAmount decimal.NullDecimal `json:"paymentKauAmount"`
	PaymentKagAmount decimal.NullDecimal `json:"paymentKagAmount"`

	Raw json.RawMessage `json:"-"`
}

// Expiry parses expiryAt, which may be an RFC 3339 string or epoch milliseconds.
func (s *StatusResponse) Expiry() *time.Time {
	raw := bytes.TrimSpace(s.ExpiryAt)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, str); err == nil {
				t = t.UTC()
				return &t
			}
		}
		if ms, err := strconv.ParseInt(str, 10, 64); err == nil {
			t := time.UnixMilli(ms).UTC()
			return &t
		}
		return nil
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}

// ConfirmResponse is the gateway's answer to a confirmation.
type ConfirmResponse struct {
	Status           string              `json:"status"`
	PaymentCurrency  string              `json:"paymentCurrency"`
	PaymentKauAmount decimal.NullDecimal `json:"paymentKauAmount"`
	PaymentKagAmount decimal.NullDecimal `json:"paymentKagAmount"`

	Raw json.RawMessage `json:"-"`
}

// Confirmed is the amount actually paid, in the commodity the payer chose.
func (r *ConfirmResponse) Confirmed() models.Amount {
	return models.Amount{Value: r.reportedAmount().Decimal, Currency: r.PaymentCurrency}
}

func (r *ConfirmResponse) reportedAmount() decimal.NullDecimal {
	switch r.PaymentCurrency {
	case models.CommodityGold:
		return r.PaymentKauAmount
	case models.CommoditySilver:
		return r.PaymentKagAmount
	}
	return decimal.NullDecimal{}
}

type orderbook struct {
	Bids []json.RawMessage `json:"bids"`
}
