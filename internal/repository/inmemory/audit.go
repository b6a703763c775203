package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kinesis-pay/internal/models"
)

type AuditLog struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Create(_ context.Context, e *models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cp := *e
	a.entries = append(a.entries, &cp)
	return nil
}

func (a *AuditLog) Append(_ context.Context, id, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range a.entries {
		if e.ID == id {
			e.Details += text
			return nil
		}
	}
	return fmt.Errorf("audit entry %s not found", id)
}

func (a *AuditLog) MarkProcessed(_ context.Context, id string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range a.entries {
		if e.ID == id {
			e.ProcessedAt = &at
			return nil
		}
	}
	return fmt.Errorf("audit entry %s not found", id)
}

func (a *AuditLog) ListByInvoice(_ context.Context, invoiceID string) ([]*models.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*models.AuditEntry
	for _, e := range a.entries {
		if e.InvoiceID == invoiceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
