package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "created"
	SessionStatusProcessed SessionStatus = "processed"
	SessionStatusRejected  SessionStatus = "rejected"
	SessionStatusExpired   SessionStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusProcessed, SessionStatusRejected, SessionStatusExpired:
		return true
	}
	return false
}

// Settlement commodities.
const (
	CommodityGold   = "KAU"
	CommoditySilver = "KAG"
)

type PricingMode string

const (
	PricingFlat          PricingMode = "flat"
	PricingPercentage    PricingMode = "percentage"
	PricingDualCommodity PricingMode = "dual_commodity"
)

func ParsePricingMode(s string) (PricingMode, error) {
	switch m := PricingMode(s); m {
	case PricingFlat, PricingPercentage, PricingDualCommodity:
		return m, nil
	}
	return "", fmt.Errorf("unknown pricing mode %q", s)
}

type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// String renders the amount the way the merchant dashboard shows it, e.g. "1.23400 KAU".
func (a Amount) String() string {
	return a.Value.String() + " " + a.Currency
}

// PaymentSession links an invoice to a gateway payment id and its outcome.
type PaymentSession struct {
	GatewayPaymentID string           `json:"gateway_payment_id" db:"gateway_payment_id"`
	InvoiceID        string           `json:"invoice_id" db:"invoice_id"`
	Status           SessionStatus    `json:"status" db:"status"`
	PricingMode      PricingMode      `json:"pricing_mode" db:"pricing_mode"`
	AmountRequested  Amount           `json:"amount_requested"`
	KauRequested     *decimal.Decimal `json:"kau_requested,omitempty" db:"kau_requested"`
	KagRequested     *decimal.Decimal `json:"kag_requested,omitempty" db:"kag_requested"`
	AmountConfirmed  *Amount          `json:"amount_confirmed,omitempty"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at" db:"expires_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Invoice is the host billing record a session pays for.
type Invoice struct {
	ID        string          `json:"id" db:"id"`
	PublicID  string          `json:"public_id" db:"public_id"`
	Total     decimal.Decimal `json:"total" db:"total"`
	Currency  string          `json:"currency" db:"currency"`
	Status    InvoiceStatus   `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
}

// PayablePresentation is what a pay page needs to render.
type PayablePresentation struct {
	PaymentID    string        `json:"payment_id"`
	PayURL       string        `json:"pay_url"`
	StatusURL    string        `json:"status_url"`
	Amount       Amount        `json:"amount"`
	ExpiresAt    time.Time     `json:"expires_at"`
	PollInterval time.Duration `json:"poll_interval"`
	PollTimeout  time.Duration `json:"poll_timeout"`
}

// PollResult is returned to the status poller after reconciliation.
type PollResult struct {
	Status    SessionStatus   `json:"status"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Raw       json.RawMessage `json:"raw"`
}

// Stop reports whether the poller should stop.
func (r *PollResult) Stop() bool {
	return r.Status.IsTerminal()
}
