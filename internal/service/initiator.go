package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/metrics"
	"kinesis-pay/internal/models"
)

type InitiatorConfig struct {
	// Configured is false until merchant id, access token and secret are all set.
	Configured bool
	KMSBaseURL string
	// StatusURL is the public poll endpoint; the secure invoice id is appended as ?id=.
	StatusURL string
}

// Initiator opens a gateway payment for an invoice and records the session.
type Initiator struct {
	cfg      InitiatorConfig
	pricer   *Pricer
	gw       Gateway
	sessions SessionStore
	links    *SecureLinks
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewInitiator(cfg InitiatorConfig, pricer *Pricer, gw Gateway, sessions SessionStore, links *SecureLinks, m *metrics.Metrics, logger *zap.Logger) *Initiator {
	if cfg.KMSBaseURL == "" {
		cfg.KMSBaseURL = gateway.DefaultKMSBaseURL
	}
	return &Initiator{
		cfg:      cfg,
		pricer:   pricer,
		gw:       gw,
		sessions: sessions,
		links:    links,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Start creates a gateway payment for inv and returns what a pay page needs.
// Nothing is persisted unless the gateway returned a payment id.
func (i *Initiator) Start(ctx context.Context, inv *models.Invoice) (*models.PayablePresentation, error) {
	if !i.cfg.Configured {
		return nil, models.NewInputError(MsgNotConfigured)
	}
	if inv == nil {
		return nil, models.NewInputError(MsgInvoiceMissing)
	}
	if inv.Status == models.InvoiceStatusPaid {
		return nil, models.NewInputError(MsgInvoicePaid)
	}

	order, err := i.pricer.Price(ctx, inv)
	if err != nil {
		return nil, err
	}

	paymentID, err := i.gw.CreatePayment(ctx, order, gateway.AuditRef{InvoiceID: inv.ID, Title: "CREATE PAYMENT"})
	if err != nil {
		i.logger.Warn("payment creation failed", zap.String("invoice_id", inv.ID), zap.Error(err))
		return nil, err
	}

	now := i.now().UTC()
	session := &models.PaymentSession{
		GatewayPaymentID: paymentID,
		InvoiceID:        inv.ID,
		Status:           models.SessionStatusCreated,
		PricingMode:      i.pricer.Mode(),
		AmountRequested:  models.Amount{Value: order.Amount, Currency: order.Currency},
		KauRequested:     order.Kau,
		KagRequested:     order.Kag,
		CreatedAt:        now,
		ExpiresAt:        now.Add(DefaultSessionTTL),
		UpdatedAt:        now,
	}
	if err := i.sessions.Create(ctx, session); err != nil {
		return nil, models.NewInternalError("save payment session", err)
	}

	i.metrics.IncSession(string(session.PricingMode))
	i.logger.Info("payment session created",
		zap.String("invoice_id", inv.ID),
		zap.String("payment_id", paymentID),
		zap.String("amount", session.AmountRequested.String()))

	return &models.PayablePresentation{
		PaymentID:    paymentID,
		PayURL:       PayURL(i.cfg.KMSBaseURL, paymentID),
		StatusURL:    i.statusURL(inv.ID),
		Amount:       session.AmountRequested,
		ExpiresAt:    session.ExpiresAt,
		PollInterval: DefaultPollInterval,
		PollTimeout:  DefaultPollTimeout,
	}, nil
}

func (i *Initiator) statusURL(invoiceID string) string {
	sep := "?"
	if strings.Contains(i.cfg.StatusURL, "?") {
		sep = "&"
	}
	return i.cfg.StatusURL + sep + "id=" + url.QueryEscape(i.links.Sign(invoiceID))
}

// PayURL is the KMS deep link that lets the payer pay a payment id.
func PayURL(kmsBaseURL, paymentID string) string {
	return strings.TrimRight(kmsBaseURL, "/") + "?paymentId=" + url.QueryEscape(paymentID)
}

// DashboardURL is the merchant dashboard on KMS.
func DashboardURL(kmsBaseURL string) string {
	return strings.TrimRight(kmsBaseURL, "/") + "/merchant/dashboard"
}
