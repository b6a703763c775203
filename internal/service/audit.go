package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kinesis-pay/internal/models"
)

const maskedSecret = "***secret_token***"

// AuditLogger writes invoice-scoped audit entries. Storage failures are logged and
// never returned, so auditing cannot break a payment flow.
type AuditLogger struct {
	store  AuditStore
	secret string
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditLogger(store AuditStore, secret string, logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		store:  store,
		secret: secret,
		logger: logger,
		now:    time.Now,
	}
}

// LogExchange stores one gateway request/response dump as a finished request entry.
func (a *AuditLogger) LogExchange(ctx context.Context, invoiceID, title string, parts ...string) {
	now := a.now().UTC()
	entry := &models.AuditEntry{
		ID:          uuid.New().String(),
		InvoiceID:   invoiceID,
		Type:        models.AuditTypeRequest,
		Title:       title,
		Details:     a.mask(strings.Join(parts, "\n\n")),
		CreatedAt:   now,
		ProcessedAt: &now,
	}
	if err := a.store.Create(ctx, entry); err != nil {
		a.logger.Error("failed to write audit entry",
			zap.String("invoice_id", invoiceID),
			zap.String("title", title),
			zap.Error(err))
	}
}

// Open starts a transaction entry and returns its id, or "" when it could not be stored.
func (a *AuditLogger) Open(ctx context.Context, invoiceID, title string) string {
	entry := &models.AuditEntry{
		ID:        uuid.New().String(),
		InvoiceID: invoiceID,
		Type:      models.AuditTypeTransaction,
		Title:     title,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.Create(ctx, entry); err != nil {
		a.logger.Error("failed to open audit entry",
			zap.String("invoice_id", invoiceID),
			zap.String("title", title),
			zap.Error(err))
		return ""
	}
	return entry.ID
}

func (a *AuditLogger) Append(ctx context.Context, id, text string) {
	if id == "" {
		return
	}
	if err := a.store.Append(ctx, id, a.mask(text)+"\n"); err != nil {
		a.logger.Error("failed to append audit entry", zap.String("audit_id", id), zap.Error(err))
	}
}

// Finalize marks a transaction entry as processed.
func (a *AuditLogger) Finalize(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := a.store.MarkProcessed(ctx, id, a.now().UTC()); err != nil {
		a.logger.Error("failed to finalize audit entry", zap.String("audit_id", id), zap.Error(err))
	}
}

func (a *AuditLogger) mask(s string) string {
	if a.secret == "" {
		return s
	}
	return strings.ReplaceAll(s, a.secret, maskedSecret)
}
