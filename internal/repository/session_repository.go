package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"kinesis-pay/internal/models"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	gateway_payment_id, invoice_id, status, pricing_mode,
	amount_requested, currency_requested, kau_requested, kag_requested,
	amount_confirmed, currency_confirmed, created_at, expires_at, updated_at`

func (r *SessionRepository) Create(ctx context.Context, s *models.PaymentSession) error {
	query := `
		INSERT INTO payment_sessions (` + sessionColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.GatewayPaymentID,
		s.InvoiceID,
		s.Status,
		s.PricingMode,
		s.AmountRequested.Value,
		s.AmountRequested.Currency,
		nullDecimal(s.KauRequested),
		nullDecimal(s.KagRequested),
		decimal.NullDecimal{},
		sql.NullString{},
		s.CreatedAt.UTC(),
		s.ExpiresAt.UTC(),
		s.UpdatedAt.UTC(),
	)

	return err
}

// GetLatestByInvoice returns the active (most recent) session for an invoice, or nil.
func (r *SessionRepository) GetLatestByInvoice(ctx context.Context, invoiceID string) (*models.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM payment_sessions
		WHERE invoice_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, invoiceID))
}

func (r *SessionRepository) GetByPaymentID(ctx context.Context, gatewayPaymentID string) (*models.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM payment_sessions
		WHERE gateway_payment_id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, gatewayPaymentID))
}

// MarkTerminal moves a created session to rejected or expired. It reports false
// when the session had already left the created state.
func (r *SessionRepository) MarkTerminal(ctx context.Context, gatewayPaymentID string, status models.SessionStatus, at time.Time) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET status = $1, updated_at = $2
		WHERE gateway_payment_id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, status, at.UTC(), gatewayPaymentID, models.SessionStatusCreated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkProcessed stores the confirmed amount and the processed status together.
func (r *SessionRepository) MarkProcessed(ctx context.Context, gatewayPaymentID string, confirmed models.Amount, at time.Time) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET status = $1, amount_confirmed = $2, currency_confirmed = $3, updated_at = $4
		WHERE gateway_payment_id = $5 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		models.SessionStatusProcessed,
		confirmed.Value,
		confirmed.Currency,
		at.UTC(),
		gatewayPaymentID,
		models.SessionStatusCreated,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *SessionRepository) scanOne(row *sql.Row) (*models.PaymentSession, error) {
	var (
		s                 models.PaymentSession
		kau, kag, paid    decimal.NullDecimal
		confirmedCurrency sql.NullString
	)

	err := row.Scan(
		&s.GatewayPaymentID,
		&s.InvoiceID,
		&s.Status,
		&s.PricingMode,
		&s.AmountRequested.Value,
		&s.AmountRequested.Currency,
		&kau,
		&kag,
		&paid,
		&confirmedCurrency,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if kau.Valid {
		s.KauRequested = &kau.Decimal
	}
	if kag.Valid {
		s.KagRequested = &kag.Decimal
	}
	if paid.Valid {
		s.AmountConfirmed = &models.Amount{Value: paid.Decimal, Currency: confirmedCurrency.String}
	}

	return &s, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
