package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/service"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// bankPortalBaseURL is the mock bank portal customers are redirected to.
const bankPortalBaseURL = "https://banco-azul.example.com/pay"

// Handler contains HTTP handlers
type Handler struct {
	creation   *service.CreationService
	reconciler *service.Reconciler
	query      *service.QueryService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	creation *service.CreationService,
	reconciler *service.Reconciler,
	query *service.QueryService,
) *Handler {
	return &Handler{
		creation:   creation,
		reconciler: reconciler,
		query:      query,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/payments", h.createPayment)
	router.GET("/payments/:id", h.getPayment)
	router.DELETE("/payments/:id", h.deletePayment)
	router.DELETE("/payments", h.deleteAllPayments)

	router.POST("/webhooks", h.receiveWebhook)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	count, err := h.query.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"payments_count": count,
		"time":           time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createPaymentResponse is the body returned for both first-time
// creations and idempotent replays.
type createPaymentResponse struct {
	PaymentID   string    `json:"payment_id"`
	Status      string    `json:"status"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// createPayment handles payment creation. A replay with a known
// idempotency key returns the existing record with 200 instead of 201.
func (h *Handler) createPayment(c *gin.Context) {
	var req service.CreateRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	// Header key takes precedence over the body key.
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	payment, isNew, err := h.creation.Create(c.Request.Context(), &req)
	if err != nil {
		if service.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid payment request",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create payment",
			"details": err.Error(),
		})
		return
	}

	status := http.StatusCreated
	if !isNew {
		status = http.StatusOK
	}

	c.JSON(status, createPaymentResponse{
		PaymentID:   payment.ID,
		Status:      payment.Status,
		RedirectURL: fmt.Sprintf("%s/%s", bankPortalBaseURL, payment.ID),
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		CreatedAt:   payment.CreatedAt,
	})
}

// getPayment handles payment status lookup
func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.query.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load payment",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, payment)
}

// webhookPayload is the provider notification body.
type webhookPayload struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Timestamp string `json:"timestamp" binding:"required"`
	Signature string `json:"signature,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// receiveWebhook handles provider notifications. Duplicate and
// out-of-order deliveries are acknowledged with 200 and flagged in the
// body so operators can detect anomalies.
func (h *Handler) receiveWebhook(c *gin.Context) {
	var payload webhookPayload

	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook body",
			"details": err.Error(),
		})
		return
	}

	eventTS, err := time.Parse(time.RFC3339, payload.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook timestamp",
			"details": err.Error(),
		})
		return
	}

	util.NotificationsReceivedTotal.WithLabelValues("http").Inc()

	event := &models.NotificationEvent{
		PaymentID:      payload.PaymentID,
		Status:         payload.Status,
		EventTimestamp: eventTS,
		AuthToken:      payload.Signature,
		Reason:         payload.Reason,
	}

	result, err := h.reconciler.Apply(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		if service.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid webhook",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to process webhook",
			"details": err.Error(),
		})
		return
	}

	switch {
	case result.Duplicate:
		c.JSON(http.StatusOK, gin.H{
			"message":   "Webhook already processed",
			"duplicate": true,
			"status":    result.Status,
		})
	case result.OutOfOrder:
		c.JSON(http.StatusOK, gin.H{
			"message":      "Webhook ignored (older than current state)",
			"out_of_order": true,
			"status":       result.Status,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":    "Webhook processed",
			"payment_id": payload.PaymentID,
			"new_status": result.Status,
		})
	}
}

// deletePayment handles test-cleanup deletion of one payment
func (h *Handler) deletePayment(c *gin.Context) {
	if err := h.creation.Remove(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to delete payment",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment deleted"})
}

// deleteAllPayments handles test-cleanup deletion of every payment
func (h *Handler) deleteAllPayments(c *gin.Context) {
	if err := h.creation.RemoveAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to delete payments",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All payments deleted"})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
