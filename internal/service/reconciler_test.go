package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/models"
)

func secureIDFrom(t *testing.T, statusURL string) string {
	t.Helper()
	u, err := url.Parse(statusURL)
	require.NoError(t, err)
	id := u.Query().Get("id")
	require.NotEmpty(t, id)
	return id
}

func TestEndToEndPercentagePayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingPercentage, "90")
	inv := h.invoice(t, "inv-1", "50.00", "USD")
	h.kinesis.setStatuses(gateway.StatusCreated, gateway.StatusCreated, gateway.StatusCreated, gateway.StatusProcessed)

	payable, err := h.initiator.Start(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, "45.00", h.kinesis.createBody["amount"])
	assert.Equal(t, "pay-1", payable.PaymentID)

	secureID := secureIDFrom(t, payable.StatusURL)

	for seq := 1; seq <= 3; seq++ {
		res, err := h.reconciler.PollLink(ctx, secureID, seq)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCreated, res.Status)
		assert.False(t, res.Stop())
		assert.Equal(t, int32(0), h.kinesis.confirms.Load(), "poll %d", seq)
	}
	assert.Empty(t, h.ledger.Transactions())

	fourth, err := h.reconciler.PollLink(ctx, secureID, 4)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProcessed, fourth.Status)
	assert.True(t, fourth.Stop())
	assert.Contains(t, string(fourth.Raw), `"status":"processed"`)
	assert.Equal(t, int32(1), h.kinesis.confirms.Load())
	assert.Equal(t, "pub-inv-1", h.kinesis.confirmOrder.Load(), "confirmation carries the public invoice id")

	session, err := h.sessions.GetLatestByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProcessed, session.Status)
	require.NotNil(t, session.AmountConfirmed)
	assert.Equal(t, "0.0165 KAU", session.AmountConfirmed.String())

	paid, err := h.ledger.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	txn, err := h.ledger.GetTransactionByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "50", txn.Amount.String())
	assert.Equal(t, "USD", txn.Currency)
	require.Len(t, txn.Entries, 2)
	assert.Equal(t, models.EntryTypeDebit, txn.Entries[0].Type)
	assert.Equal(t, models.EntryTypeCredit, txn.Entries[1].Type)

	// A replayed poll after completion changes nothing.
	replay, err := h.reconciler.PollLink(ctx, secureID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProcessed, replay.Status)
	assert.Equal(t, int32(1), h.kinesis.confirms.Load())
	assert.Len(t, h.ledger.Transactions(), 1)
}

func TestExpiryAfterTenCreatedPolls(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingFlat, "100")
	inv := h.invoice(t, "inv-2", "20.00", "USD")

	statuses := make([]string, 0, 12)
	for i := 0; i < 10; i++ {
		statuses = append(statuses, gateway.StatusCreated)
	}
	statuses = append(statuses, gateway.StatusExpired, gateway.StatusProcessed)
	h.kinesis.setStatuses(statuses...)

	_, err := h.initiator.Start(ctx, inv)
	require.NoError(t, err)

	for seq := 1; seq <= 10; seq++ {
		result, err := h.reconciler.Poll(ctx, inv.ID, seq)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCreated, result.Status, "poll %d", seq)
		assert.False(t, result.Stop())
		require.NotNil(t, result.ExpiresAt)
	}

	result, err := h.reconciler.Poll(ctx, inv.ID, 11)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, result.Status)
	assert.True(t, result.Stop())

	// Monotonic: a later processed report cannot revive an expired session.
	result, err = h.reconciler.Poll(ctx, inv.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, result.Status)
	assert.Empty(t, h.ledger.Transactions())
	assert.Equal(t, int32(0), h.kinesis.confirms.Load())

	session, err := h.sessions.GetLatestByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, session.Status)
	assert.Nil(t, session.AmountConfirmed)
}

func TestFirstTerminalObservationWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingFlat, "100")
	inv := h.invoice(t, "inv-3", "20.00", "USD")
	h.kinesis.setStatuses(gateway.StatusRejected, gateway.StatusExpired)

	_, err := h.initiator.Start(ctx, inv)
	require.NoError(t, err)

	result, err := h.reconciler.Poll(ctx, inv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusRejected, result.Status)

	result, err = h.reconciler.Poll(ctx, inv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusRejected, result.Status)
	assert.Contains(t, string(result.Raw), `"status":"expired"`)
}

func TestConcurrentProcessedPollsConfirmOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingFlat, "100")
	inv := h.invoice(t, "inv-4", "75.10", "USD")
	h.kinesis.setStatuses(gateway.StatusProcessed)

	_, err := h.initiator.Start(ctx, inv)
	require.NoError(t, err)

	const polls = 20
	var wg sync.WaitGroup
	errs := make(chan error, polls)
	for i := 0; i < polls; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			if _, err := h.reconciler.Poll(ctx, inv.ID, seq); err != nil {
				errs <- err
			}
		}(i + 1)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("poll failed: %v", err)
	}
	assert.Len(t, h.ledger.Transactions(), 1)
	assert.Equal(t, int32(1), h.kinesis.confirms.Load())

	session, err := h.sessions.GetLatestByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProcessed, session.Status)
}

func TestPollRejectsForgedOrStaleLinks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingFlat, "100")
	inv := h.invoice(t, "inv-5", "10.00", "USD")

	tests := []struct {
		name     string
		secureID string
	}{
		{name: "forged tag", secureID: "inv-5.AAAAAAAAAAAAAAAAAAAAAAAA"},
		{name: "bare invoice id", secureID: "inv-5"},
		{name: "signed with another key", secureID: NewSecureLinks("other").Sign("inv-5")},
		{name: "valid tag for unknown invoice", secureID: h.links.Sign("inv-missing")},
		{name: "valid link without session", secureID: h.links.Sign(inv.ID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.reconciler.PollLink(ctx, tt.secureID, 1)
			require.Error(t, err)

			inputErr, ok := models.AsInputError(err)
			require.True(t, ok)
			assert.Equal(t, MsgInvalidLink, inputErr.Message)
		})
	}

	assert.Equal(t, int32(0), h.kinesis.polls.Load(), "no gateway call for an invalid link")
	assert.Empty(t, h.ledger.Transactions())
}

func TestPollAuditSampling(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingFlat, "100")
	inv := h.invoice(t, "inv-6", "10.00", "USD")

	_, err := h.initiator.Start(ctx, inv)
	require.NoError(t, err)

	for seq := 0; seq < 21; seq++ {
		_, err := h.reconciler.Poll(ctx, inv.ID, seq)
		require.NoError(t, err)
	}

	entries, err := h.auditLog.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)

	var titles []string
	for _, e := range entries {
		if strings.HasPrefix(e.Title, "POLL STATUS") {
			titles = append(titles, e.Title)
		}
	}
	assert.Equal(t, []string{
		"POLL STATUS #0: pay-1",
		"POLL STATUS #10: pay-1",
		"POLL STATUS #20: pay-1",
	}, titles)
}

func TestConfirmFailureIsAuditedAndRetryable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingFlat, "100")
	inv := h.invoice(t, "inv-7", "10.00", "USD")
	h.kinesis.setStatuses(gateway.StatusProcessed)
	h.kinesis.confirmFail.Store(true)

	_, err := h.initiator.Start(ctx, inv)
	require.NoError(t, err)

	_, err = h.reconciler.Poll(ctx, inv.ID, 1)
	require.Error(t, err)
	var internal *models.InternalError
	assert.True(t, errors.As(err, &internal))

	// The transaction is recorded, the session is not yet processed.
	assert.Len(t, h.ledger.Transactions(), 1)
	session, err := h.sessions.GetLatestByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCreated, session.Status)

	entries, err := h.auditLog.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	var txnEntry *models.AuditEntry
	for _, e := range entries {
		if e.Type == models.AuditTypeTransaction {
			txnEntry = e
		}
	}
	require.NotNil(t, txnEntry)
	assert.Contains(t, txnEntry.Details, "KPAY RESPONSE: ")
	assert.Contains(t, txnEntry.Details, "ERROR: ")
	assert.Nil(t, txnEntry.ProcessedAt)

	// Later polls are duplicates and never confirm again.
	_, err = h.reconciler.Poll(ctx, inv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.kinesis.confirms.Load())

	h.kinesis.confirmFail.Store(false)
	session, err = h.reconciler.Reconfirm(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProcessed, session.Status)
	assert.Equal(t, int32(2), h.kinesis.confirms.Load())

	_, err = h.reconciler.Reconfirm(ctx, inv.ID)
	_, isInput := models.AsInputError(err)
	assert.True(t, isInput)
}

func TestLatestSessionIsActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.PricingFlat, "100")
	inv := h.invoice(t, "inv-8", "10.00", "USD")

	_, err := h.initiator.Start(ctx, inv)
	require.NoError(t, err)

	h.kinesis.mu.Lock()
	h.kinesis.createResp = `{"globalPaymentId":"pay-2"}`
	h.kinesis.mu.Unlock()

	_, err = h.initiator.Start(ctx, inv)
	require.NoError(t, err)

	session, err := h.reconciler.Session(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay-2", session.GatewayPaymentID)
}
