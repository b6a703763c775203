package inmemory

import (
	"context"
	"maps"
	"sync"
	"time"

	"kinesis-pay/internal/models"
)

// Ledger is an in-memory invoice and transaction ledger.
type Ledger struct {
	mu           sync.RWMutex
	invoices     map[string]*models.Invoice
	transactions map[string]*models.TransactionRecord
}

func NewLedger() *Ledger {
	return &Ledger{
		invoices:     make(map[string]*models.Invoice),
		transactions: make(map[string]*models.TransactionRecord),
	}
}

func (l *Ledger) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *inv
	l.invoices[inv.ID] = &cp
	return nil
}

func (l *Ledger) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	inv, ok := l.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (l *Ledger) RecordPayment(_ context.Context, txn *models.TransactionRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.transactions[txn.GatewayPaymentID]; exists {
		return false, nil
	}

	cp := *txn
	l.transactions[txn.GatewayPaymentID] = &cp

	if inv, ok := l.invoices[txn.InvoiceID]; ok {
		paidAt := txn.CreatedAt
		inv.Status = models.InvoiceStatusPaid
		inv.PaidAt = &paidAt
	}
	return true, nil
}

func (l *Ledger) GetTransactionByPaymentID(_ context.Context, gatewayPaymentID string) (*models.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	txn, ok := l.transactions[gatewayPaymentID]
	if !ok {
		return nil, nil
	}
	cp := *txn
	return &cp, nil
}

func (l *Ledger) CountTransactionsSince(_ context.Context, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, txn := range l.transactions {
		if !txn.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Transactions returns a snapshot keyed by gateway payment id.
func (l *Ledger) Transactions() map[string]*models.TransactionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return maps.Clone(l.transactions)
}
