package repository

import (
	"context"
	"database/sql"
	"time"

	"kinesis-pay/internal/models"
)

// LedgerRepository stores invoices, paid transactions and their double entries.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	query := `
		INSERT INTO invoices (id, public_id, total, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.PublicID,
		inv.Total,
		inv.Currency,
		inv.Status,
		inv.CreatedAt.UTC(),
	)
	return err
}

func (r *LedgerRepository) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	query := `
		SELECT id, public_id, total, currency, status, created_at, paid_at
		FROM invoices WHERE id = $1
	`

	inv := &models.Invoice{}
	var paidAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID,
		&inv.PublicID,
		&inv.Total,
		&inv.Currency,
		&inv.Status,
		&inv.CreatedAt,
		&paidAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}

	return inv, nil
}

// RecordPayment writes the transaction, its entries and the paid invoice status in
// one database transaction. It reports false without writing anything when a
// transaction for the same gateway payment id already exists.
func (r *LedgerRepository) RecordPayment(ctx context.Context, txn *models.TransactionRecord) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	txnQuery := `
		INSERT INTO payment_transactions (id, gateway_payment_id, invoice_id, amount, currency, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (gateway_payment_id) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, txnQuery,
		txn.ID,
		txn.GatewayPaymentID,
		txn.InvoiceID,
		txn.Amount,
		txn.Currency,
		string(txn.Evidence),
		txn.CreatedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}

	entryQuery := `
		INSERT INTO ledger_entries (id, transaction_id, account_id, type, amount, currency, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, entry := range txn.Entries {
		_, err = tx.ExecContext(ctx, entryQuery,
			entry.ID,
			entry.TransactionID,
			entry.AccountID,
			entry.Type,
			entry.Amount,
			entry.Currency,
			entry.Description,
			entry.CreatedAt.UTC(),
		)
		if err != nil {
			return false, err
		}
	}

	invoiceQuery := `
		UPDATE invoices
		SET status = $1, paid_at = $2
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, invoiceQuery, models.InvoiceStatusPaid, txn.CreatedAt.UTC(), txn.InvoiceID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *LedgerRepository) GetTransactionByPaymentID(ctx context.Context, gatewayPaymentID string) (*models.TransactionRecord, error) {
	query := `
		SELECT id, gateway_payment_id, invoice_id, amount, currency, evidence, created_at
		FROM payment_transactions
		WHERE gateway_payment_id = $1
	`

	txn := &models.TransactionRecord{}
	var evidence string
	err := r.db.QueryRowContext(ctx, query, gatewayPaymentID).Scan(
		&txn.ID,
		&txn.GatewayPaymentID,
		&txn.InvoiceID,
		&txn.Amount,
		&txn.Currency,
		&evidence,
		&txn.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	txn.Evidence = []byte(evidence)

	entries, err := r.GetEntriesByTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	txn.Entries = entries

	return txn, nil
}

func (r *LedgerRepository) GetEntriesByTransaction(ctx context.Context, txnID string) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, transaction_id, account_id, type, amount, currency, description, created_at
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY type DESC
	`

	rows, err := r.db.QueryContext(ctx, query, txnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry := &models.LedgerEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.TransactionID,
			&entry.AccountID,
			&entry.Type,
			&entry.Amount,
			&entry.Currency,
			&entry.Description,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// CountTransactionsSince is used by the operator CLI to report recent activity.
func (r *LedgerRepository) CountTransactionsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_transactions WHERE created_at >= $1`, since.UTC()).Scan(&count)
	return count, err
}
