package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kinesis-pay/internal/models"
	"kinesis-pay/internal/service"
)

const (
	msgStartFailed = "Failed to start payment"
	msgPollFailed  = "Unable to check payment status"
)

type PaymentHandler struct {
	initiator  *service.Initiator
	reconciler *service.Reconciler
	invoices   service.Ledger
	kmsBaseURL string
	logger     *zap.Logger
}

func NewPaymentHandler(initiator *service.Initiator, reconciler *service.Reconciler, invoices service.Ledger, kmsBaseURL string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		initiator:  initiator,
		reconciler: reconciler,
		invoices:   invoices,
		kmsBaseURL: kmsBaseURL,
		logger:     logger,
	}
}

// StartPayment handles POST /api/v1/invoices/:id/kinesis-pay
func (h *PaymentHandler) StartPayment(c *gin.Context) {
	invoiceID := c.Param("id")

	inv, err := h.invoices.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.logger.Error("failed to load invoice", zap.String("invoice_id", invoiceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgStartFailed})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": service.MsgInvoiceMissing})
		return
	}

	payable, err := h.initiator.Start(c.Request.Context(), inv)
	if err != nil {
		h.respondError(c, err, msgStartFailed)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": payable})
}

// GetPayment handles GET /api/v1/invoices/:id/kinesis-pay
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	session, err := h.reconciler.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		if inputErr, ok := models.AsInputError(err); ok {
			c.JSON(http.StatusNotFound, gin.H{"error": inputErr.Message})
			return
		}
		h.logger.Error("failed to load payment session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment"})
		return
	}

	response := gin.H{
		"session":       session,
		"pay_url":       service.PayURL(h.kmsBaseURL, session.GatewayPaymentID),
		"dashboard_url": service.DashboardURL(h.kmsBaseURL),
	}
	if session.AmountConfirmed != nil {
		response["amount_paid"] = session.AmountConfirmed.String()
	}

	c.JSON(http.StatusOK, response)
}

// PollStatus handles GET /api/v1/kinesis-pay/status?id=<secure id>&poll=<n>
func (h *PaymentHandler) PollStatus(c *gin.Context) {
	secureID := c.Query("id")
	if secureID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.MsgInvalidLink})
		return
	}

	seq := 0
	if raw, ok := c.GetQuery("poll"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.logger.Debug("ignoring malformed poll number", zap.String("poll", raw))
		} else {
			seq = n
		}
	} else {
		h.logger.Debug("status check without poll number")
	}

	result, err := h.reconciler.PollLink(c.Request.Context(), secureID, seq)
	if err != nil {
		h.respondError(c, err, msgPollFailed)
		return
	}

	if len(result.Raw) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": result.Status, "expiryAt": result.ExpiresAt})
		return
	}
	body, err := withStatus(result.Raw, result.Status)
	if err != nil {
		h.logger.Warn("gateway status payload is not a JSON object", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": result.Status, "expiryAt": result.ExpiresAt})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// withStatus returns the gateway payload with its status replaced by the local one,
// so a closed session never reports a different outcome to the pay page.
func withStatus(raw json.RawMessage, status models.SessionStatus) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}
	fields["status"] = encoded
	return json.Marshal(fields)
}

func (h *PaymentHandler) respondError(c *gin.Context, err error, generic string) {
	if inputErr, ok := models.AsInputError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": inputErr.Message})
		return
	}
	h.logger.Error(generic, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
}
