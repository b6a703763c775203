package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// Ledger accounts touched by a Kinesis payment.
const (
	AccountCustomerReceivables = "customer_receivables"
	AccountKinesisClearing     = "kinesis_pay_clearing"
)

// TransactionRecord is the paid transaction against an invoice, unique per gateway payment id.
type TransactionRecord struct {
	ID               string          `json:"id" db:"id"`
	GatewayPaymentID string          `json:"gateway_payment_id" db:"gateway_payment_id"`
	InvoiceID        string          `json:"invoice_id" db:"invoice_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Currency         string          `json:"currency" db:"currency"`
	Evidence         json.RawMessage `json:"evidence" db:"evidence"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	Entries          []*LedgerEntry  `json:"entries,omitempty"`
}

// LedgerEntry is one side of the double entry written for a transaction.
type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	AccountID     string          `json:"account_id" db:"account_id"`
	Type          EntryType       `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Description   string          `json:"description" db:"description"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

type AuditType string

const (
	AuditTypeRequest     AuditType = "request"
	AuditTypeTransaction AuditType = "transaction"
)

// AuditEntry is an invoice-scoped log of gateway traffic or transaction processing.
type AuditEntry struct {
	ID          string     `json:"id" db:"id"`
	InvoiceID   string     `json:"invoice_id" db:"invoice_id"`
	Type        AuditType  `json:"type" db:"type"`
	Title       string     `json:"title" db:"title"`
	Details     string     `json:"details" db:"details"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}
