package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/models"
)

// Gateway is the subset of *gateway.Client the services call.
type Gateway interface {
	CreatePayment(ctx context.Context, order gateway.PaymentOrder, ref gateway.AuditRef) (string, error)
	GetStatus(ctx context.Context, paymentID string, ref gateway.AuditRef) (*gateway.StatusResponse, error)
	ConfirmPayment(ctx context.Context, paymentID, orderID string, ref gateway.AuditRef) (*gateway.ConfirmResponse, error)
	GetExchangeRate(ctx context.Context, base, quote string, ref gateway.AuditRef) (decimal.Decimal, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *models.PaymentSession) error
	GetLatestByInvoice(ctx context.Context, invoiceID string) (*models.PaymentSession, error)
	MarkTerminal(ctx context.Context, gatewayPaymentID string, status models.SessionStatus, at time.Time) (bool, error)
	MarkProcessed(ctx context.Context, gatewayPaymentID string, confirmed models.Amount, at time.Time) (bool, error)
}

type Ledger interface {
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	RecordPayment(ctx context.Context, txn *models.TransactionRecord) (bool, error)
	GetTransactionByPaymentID(ctx context.Context, gatewayPaymentID string) (*models.TransactionRecord, error)
}

type AuditStore interface {
	Create(ctx context.Context, e *models.AuditEntry) error
	Append(ctx context.Context, id, text string) error
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

// Poll cadence handed to the pay page.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollTimeout  = 630 * time.Second
	DefaultSessionTTL   = 10 * time.Minute
)

// Payer-facing messages.
const (
	MsgInvalidLink    = "Invalid link"
	MsgNotConfigured  = "Kinesis Pay is not configured"
	MsgInvoicePaid    = "Invoice is already paid"
	MsgInvoiceMissing = "Invoice not found"
)
