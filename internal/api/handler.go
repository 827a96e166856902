package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/metrics"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/service"
	"github.com/rongwang/leasehub-server/internal/webhook"
	"go.uber.org/zap"
)

// Handler handles all API requests
type Handler struct {
	service           service.Service
	signatureVerifier *webhook.Verifier
	paymentVerifier   *webhook.Verifier
	metrics           *metrics.Metrics
	logger            *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(
	svc service.Service,
	signatureVerifier, paymentVerifier *webhook.Verifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		service:           svc,
		signatureVerifier: signatureVerifier,
		paymentVerifier:   paymentVerifier,
		metrics:           m,
		logger:            logger.Named("api"),
	}
}

// SetupRoutes registers every route on router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(ErrorHandler(h.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	// Provider callbacks authenticate with a signature instead of a JWT
	hooks := router.Group("/webhooks")
	{
		hooks.POST("/signature", h.SignatureWebhook)
		hooks.POST("/payment", h.PaymentWebhook)
	}

	api := router.Group("/api")

	// Public routes
	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(AuthMiddleware(h.service))
	{
		// Property routes
		protected.POST("/properties", h.CreateProperty)
		protected.GET("/properties", h.ListProperties)

		// Lease routes
		protected.POST("/leases", h.CreateLease)
		protected.GET("/leases", h.ListLeases)
		protected.GET("/leases/:id", h.GetLease)
		protected.PATCH("/leases/:id", h.UpdateLease)
		protected.PUT("/leases/:id/status", h.UpdateLeaseStatus)
		protected.POST("/leases/:id/cancel", h.CancelLease)
		protected.GET("/leases/:id/audit", h.GetAuditTrail)
		protected.POST("/leases/:id/verify", h.VerifyLease)

		// Signature routes
		protected.POST("/leases/:id/signature", h.InitiateSignature)
		protected.GET("/signatures/:operationId", h.CheckSignatureStatus)

		// Payment routes
		protected.POST("/leases/:id/payment", h.InitiatePayment)
		protected.POST("/payments/:transactionId/confirm", h.ConfirmPayment)
		protected.GET("/payments/:transactionId", h.CheckPaymentStatus)

		// Notification routes
		protected.GET("/notifications", h.ListNotifications)
		protected.POST("/notifications/:id/read", h.MarkNotificationRead)
	}
}

// bind decodes the JSON body into req, attaching a validation error on failure
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return false
	}
	return true
}

// Auth handlers
func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.SignUp(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Property handlers
func (h *Handler) CreateProperty(c *gin.Context) {
	var req models.CreatePropertyRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.CreateProperty(c.Request.Context(), c.GetString("userId"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListProperties(c *gin.Context) {
	resp, err := h.service.ListProperties(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Notification handlers
func (h *Handler) ListNotifications(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.Error(ierr.WithError(err).
				WithHint("limit must be a number").
				Mark(ierr.ErrValidation))
			return
		}
		limit = n
	}

	resp, err := h.service.ListNotifications(c.Request.Context(), c.GetString("userId"), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.service.MarkNotificationRead(c.Request.Context(), c.GetString("userId"), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
