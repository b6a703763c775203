package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/metrics"
	"kinesis-pay/internal/models"
)

// auditEvery is the poll sampling rate for audit logging of status calls.
const auditEvery = 10

// Reconciler drives a payment session to its terminal state from polled gateway status.
// It is the only writer of a session's status and confirmed amount.
type Reconciler struct {
	gw       Gateway
	sessions SessionStore
	recorder *Recorder
	audit    *AuditLogger
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(gw Gateway, sessions SessionStore, recorder *Recorder, audit *AuditLogger, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		gw:       gw,
		sessions: sessions,
		recorder: recorder,
		audit:    audit,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// PollLink resolves a secure invoice id and polls it. Forged ids never reach the gateway.
func (r *Reconciler) PollLink(ctx context.Context, secureID string, seq int) (*models.PollResult, error) {
	inv, err := r.recorder.ResolveInvoice(ctx, secureID)
	if err != nil {
		return nil, err
	}
	return r.Poll(ctx, inv.ID, seq)
}

// Poll fetches the gateway status of the invoice's latest session and applies it.
func (r *Reconciler) Poll(ctx context.Context, invoiceID string, seq int) (*models.PollResult, error) {
	session, err := r.sessions.GetLatestByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, models.NewInternalError("load payment session", err)
	}
	if session == nil {
		return nil, models.NewInputError(MsgInvalidLink)
	}

	var ref gateway.AuditRef
	if seq%auditEvery == 0 {
		ref = gateway.AuditRef{
			InvoiceID: invoiceID,
			Title:     fmt.Sprintf("POLL STATUS #%d: %s", seq, session.GatewayPaymentID),
		}
	}

	status, err := r.gw.GetStatus(ctx, session.GatewayPaymentID, ref)
	if err != nil {
		return nil, err
	}
	r.metrics.IncPoll(status.Status)

	switch status.Status {
	case gateway.StatusProcessed:
		switch session.Status {
		case models.SessionStatusCreated:
			if err := r.process(ctx, session, status); err != nil {
				return nil, err
			}
		case models.SessionStatusProcessed:
		default:
			r.logger.Warn("gateway reports processed for a closed session",
				zap.String("invoice_id", invoiceID),
				zap.String("payment_id", session.GatewayPaymentID),
				zap.String("local_status", string(session.Status)))
		}

	case gateway.StatusRejected, gateway.StatusExpired:
		changed, err := r.sessions.MarkTerminal(ctx, session.GatewayPaymentID, models.SessionStatus(status.Status), r.now().UTC())
		if err != nil {
			return nil, models.NewInternalError("update payment session", err)
		}
		if changed {
			r.logger.Info("payment session closed",
				zap.String("invoice_id", invoiceID),
				zap.String("payment_id", session.GatewayPaymentID),
				zap.String("status", status.Status))
		}
	}

	return &models.PollResult{
		Status:    effectiveStatus(session.Status, status.Status),
		ExpiresAt: status.Expiry(),
		Raw:       status.Raw,
	}, nil
}

// process runs record, confirm and mark-processed for a processed observation.
// Only the poll that created the transaction confirms it.
func (r *Reconciler) process(ctx context.Context, session *models.PaymentSession, status *gateway.StatusResponse) error {
	invoiceID := session.InvoiceID
	paymentID := session.GatewayPaymentID

	auditID := r.audit.Open(ctx, invoiceID, "TRANSACTION: "+paymentID)
	r.audit.Append(ctx, auditID, "KPAY RESPONSE: "+string(status.Raw))

	created, err := r.recorder.RecordIfAbsent(ctx, paymentID, invoiceID, status)
	if err != nil {
		r.audit.Append(ctx, auditID, "ERROR: "+err.Error())
		r.metrics.IncConfirmation("record_failed")
		r.logger.Error("failed to record transaction",
			zap.String("invoice_id", invoiceID),
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return err
	}
	if !created {
		r.metrics.IncDuplicate()
		r.audit.Append(ctx, auditID, "Transaction already recorded")
		r.audit.Finalize(ctx, auditID)
		return nil
	}

	return r.confirm(ctx, session, auditID)
}

func (r *Reconciler) confirm(ctx context.Context, session *models.PaymentSession, auditID string) error {
	invoiceID := session.InvoiceID
	paymentID := session.GatewayPaymentID

	inv, err := r.recorder.Invoice(ctx, invoiceID)
	if err != nil {
		r.audit.Append(ctx, auditID, "ERROR: "+err.Error())
		r.metrics.IncConfirmation("confirm_failed")
		return err
	}
	orderID := inv.PublicID
	if orderID == "" {
		orderID = inv.ID
	}

	resp, err := r.gw.ConfirmPayment(ctx, paymentID, orderID,
		gateway.AuditRef{InvoiceID: invoiceID, Title: "CONFIRM PAYMENT: " + paymentID})
	if err != nil {
		r.audit.Append(ctx, auditID, "ERROR: "+err.Error())
		r.metrics.IncConfirmation("confirm_failed")
		r.logger.Error("failed to confirm payment",
			zap.String("invoice_id", invoiceID),
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return err
	}

	confirmed := resp.Confirmed()
	changed, err := r.sessions.MarkProcessed(ctx, paymentID, confirmed, r.now().UTC())
	if err != nil {
		r.audit.Append(ctx, auditID, "ERROR: "+err.Error())
		return models.NewInternalError("update payment session", err)
	}
	if !changed {
		r.logger.Warn("payment session was closed before confirmation was stored",
			zap.String("invoice_id", invoiceID),
			zap.String("payment_id", paymentID))
	}

	r.metrics.IncConfirmation("confirmed")
	r.audit.Append(ctx, auditID, "Confirmed "+confirmed.String())
	r.audit.Finalize(ctx, auditID)

	r.logger.Info("payment confirmed",
		zap.String("invoice_id", invoiceID),
		zap.String("payment_id", paymentID),
		zap.String("amount", confirmed.String()))
	return nil
}

// Reconfirm retries gateway confirmation for a session whose transaction was recorded
// but whose confirmation failed.
func (r *Reconciler) Reconfirm(ctx context.Context, invoiceID string) (*models.PaymentSession, error) {
	session, err := r.sessions.GetLatestByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, models.NewInternalError("load payment session", err)
	}
	if session == nil {
		return nil, models.NewInputError(MsgInvalidLink)
	}
	if session.Status != models.SessionStatusCreated {
		return nil, models.NewInputError(fmt.Sprintf("payment session is already %s", session.Status))
	}

	txn, err := r.recorder.Lookup(ctx, session.GatewayPaymentID)
	if err != nil {
		return nil, models.NewInternalError("load transaction", err)
	}
	if txn == nil {
		return nil, models.NewInputError("no transaction recorded for this payment")
	}

	auditID := r.audit.Open(ctx, invoiceID, "RECONFIRM: "+session.GatewayPaymentID)
	if err := r.confirm(ctx, session, auditID); err != nil {
		return nil, err
	}

	return r.Session(ctx, invoiceID)
}

// Session returns the invoice's latest payment session, or an input error when none exists.
func (r *Reconciler) Session(ctx context.Context, invoiceID string) (*models.PaymentSession, error) {
	session, err := r.sessions.GetLatestByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, models.NewInternalError("load payment session", err)
	}
	if session == nil {
		return nil, models.NewInputError("no Kinesis payment for this invoice")
	}
	return session, nil
}

// effectiveStatus lets a local terminal status win over whatever the gateway reports.
func effectiveStatus(local models.SessionStatus, remote string) models.SessionStatus {
	if local.IsTerminal() {
		return local
	}
	switch s := models.SessionStatus(remote); s {
	case models.SessionStatusProcessed, models.SessionStatusRejected, models.SessionStatusExpired:
		return s
	}
	return models.SessionStatusCreated
}

