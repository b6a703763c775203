package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/models"
)

// Recorder writes the paid transaction for a gateway payment into the ledger.
// The ledger's unique key on the gateway payment id makes recording idempotent.
type Recorder struct {
	ledger Ledger
	links  *SecureLinks
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(ledger Ledger, links *SecureLinks, logger *zap.Logger) *Recorder {
	return &Recorder{
		ledger: ledger,
		links:  links,
		logger: logger,
		now:    time.Now,
	}
}

// RecordIfAbsent records the transaction for gatewayPaymentID. It returns false, nil
// when the transaction was already recorded.
func (r *Recorder) RecordIfAbsent(ctx context.Context, gatewayPaymentID, invoiceID string, evidence *gateway.StatusResponse) (bool, error) {
	if err := r.validate(evidence); err != nil {
		return false, models.NewInternalError("record transaction", err)
	}

	inv, err := r.ledger.GetInvoice(ctx, invoiceID)
	if err != nil {
		return false, models.NewInternalError("record transaction", fmt.Errorf("failed to load invoice: %w", err))
	}
	if inv == nil {
		return false, models.NewInternalError("record transaction", fmt.Errorf("invoice %s not found", invoiceID))
	}

	txnID := uuid.New().String()
	now := r.now().UTC()
	txn := &models.TransactionRecord{
		ID:               txnID,
		GatewayPaymentID: gatewayPaymentID,
		InvoiceID:        inv.ID,
		Amount:           inv.Total,
		Currency:         inv.Currency,
		Evidence:         evidence.Raw,
		CreatedAt:        now,
		Entries: []*models.LedgerEntry{
			{
				ID:            uuid.New().String(),
				TransactionID: txnID,
				AccountID:     models.AccountCustomerReceivables,
				Type:          models.EntryTypeDebit,
				Amount:        inv.Total,
				Currency:      inv.Currency,
				Description:   "Kinesis Pay " + gatewayPaymentID,
				CreatedAt:     now,
			},
			{
				ID:            uuid.New().String(),
				TransactionID: txnID,
				AccountID:     models.AccountKinesisClearing,
				Type:          models.EntryTypeCredit,
				Amount:        inv.Total,
				Currency:      inv.Currency,
				Description:   "Kinesis Pay " + gatewayPaymentID,
				CreatedAt:     now,
			},
		},
	}

	created, err := r.ledger.RecordPayment(ctx, txn)
	if err != nil {
		return false, models.NewInternalError("record transaction", err)
	}
	if !created {
		r.logger.Info("transaction already recorded",
			zap.String("invoice_id", invoiceID),
			zap.String("payment_id", gatewayPaymentID))
		return false, nil
	}

	r.logger.Info("transaction recorded",
		zap.String("invoice_id", invoiceID),
		zap.String("payment_id", gatewayPaymentID),
		zap.String("transaction_id", txnID))
	return true, nil
}

// Lookup returns the recorded transaction for a gateway payment id, or nil.
func (r *Recorder) Lookup(ctx context.Context, gatewayPaymentID string) (*models.TransactionRecord, error) {
	return r.ledger.GetTransactionByPaymentID(ctx, gatewayPaymentID)
}

// Invoice loads an invoice that must exist.
func (r *Recorder) Invoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	inv, err := r.ledger.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, models.NewInternalError("load invoice", err)
	}
	if inv == nil {
		return nil, models.NewInternalError("load invoice", fmt.Errorf("invoice %s not found", invoiceID))
	}
	return inv, nil
}

// ResolveInvoice maps a secure invoice id from a poll URL to the invoice. Forged ids and
// unknown invoices are rejected without guessing.
func (r *Recorder) ResolveInvoice(ctx context.Context, secureID string) (*models.Invoice, error) {
	invoiceID, ok := r.links.Resolve(secureID)
	if !ok {
		return nil, models.NewInputError(MsgInvalidLink)
	}

	inv, err := r.ledger.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, models.NewInternalError("resolve invoice", err)
	}
	if inv == nil {
		return nil, models.NewInputError(MsgInvalidLink)
	}
	return inv, nil
}

func (r *Recorder) validate(evidence *gateway.StatusResponse) error {
	if evidence == nil {
		return errors.New("missing gateway evidence")
	}
	if !r.validateSource(evidence) {
		return errors.New("untrusted evidence source")
	}
	if !r.validateStatus(evidence) {
		return fmt.Errorf("payment status is %q, not processed", evidence.Status)
	}
	if !r.validateTerms(evidence) {
		return errors.New("payment terms are not valid")
	}
	return nil
}

// Evidence always comes from a server-side status fetch.
func (r *Recorder) validateSource(*gateway.StatusResponse) bool {
	return true
}

func (r *Recorder) validateStatus(evidence *gateway.StatusResponse) bool {
	return evidence.Status == gateway.StatusProcessed
}

// The gateway has no partial-payment plans.
func (r *Recorder) validateTerms(*gateway.StatusResponse) bool {
	return true
}
