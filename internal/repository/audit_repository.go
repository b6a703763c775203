package repository

import (
	"context"
	"database/sql"
	"time"

	"kinesis-pay/internal/models"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, e *models.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, invoice_id, type, title, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.InvoiceID,
		e.Type,
		e.Title,
		e.Details,
		e.CreatedAt.UTC(),
	)
	return err
}

func (r *AuditRepository) Append(ctx context.Context, id, text string) error {
	query := `
		UPDATE audit_logs
		SET details = details || $1
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, text, id)
	return err
}

func (r *AuditRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE audit_logs
		SET processed_at = $1
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	return err
}

func (r *AuditRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, invoice_id, type, title, details, created_at, processed_at
		FROM audit_logs
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		var processedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Type, &e.Title, &e.Details, &e.CreatedAt, &processedAt); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			e.ProcessedAt = &processedAt.Time
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
