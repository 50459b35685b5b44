package payouts

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/logger"
	"github.com/richxcame/driver-ledger/pkg/middleware"
	"github.com/richxcame/driver-ledger/pkg/models"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"
)

type Handler struct {
	service       *Service
	webhookSecret string
}

func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

// RegisterRoutes registers payout routes
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	api := router.Group("/api/v1")

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtSecret))
	{
		protected.POST("/payouts", h.CreatePayout)
		protected.POST("/payouts/:id/submit", h.SubmitPayout)
		protected.GET("/payouts", h.ListPayouts)
		protected.GET("/payouts/:id", h.GetPayout)
		protected.GET("/payouts/account", h.GetAccount)
		protected.PUT("/payouts/account", h.UpsertAccount)
	}

	// Webhook routes (signature-verified, no auth)
	api.POST("/webhooks/stripe", h.HandleStripeWebhook)
}

// CreatePayout requests a payout from the driver's wallet
func (h *Handler) CreatePayout(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req models.CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.service.Create(c.Request.Context(), driverID, req.Amount)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.CreatedResponse(c, payout)
}

// SubmitPayout sends a pending payout to the payment processor
func (h *Handler) SubmitPayout(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid payout ID")
		return
	}

	if !h.authorizePayout(c, driverID, payoutID) {
		return
	}

	payout, err := h.service.Submit(c.Request.Context(), payoutID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, payout)
}

// GetPayout retrieves a payout; drivers see only their own
func (h *Handler) GetPayout(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid payout ID")
		return
	}

	payout, err := h.service.GetPayout(c.Request.Context(), payoutID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	if !h.canAccess(c, driverID, payout) {
		common.ErrorResponse(c, http.StatusForbidden, "access denied")
		return
	}

	common.SuccessResponse(c, payout)
}

// ListPayouts returns the driver's payouts, newest first
func (h *Handler) ListPayouts(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	payouts, total, err := h.service.ListPayouts(c.Request.Context(), driverID, limit, offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, payouts, &common.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

// GetAccount returns the driver's payout destination
func (h *Handler) GetAccount(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.service.GetAccount(c.Request.Context(), driverID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, account)
}

// UpsertAccountRequest sets the external payout destination
type UpsertAccountRequest struct {
	Destination string `json:"destination" binding:"required"`
}

// UpsertAccount sets the driver's payout destination
func (h *Handler) UpsertAccount(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpsertAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.service.UpsertAccount(c.Request.Context(), driverID, req.Destination)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, account)
}

// HandleStripeWebhook settles payouts from Stripe transfer events
func (h *Handler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "failed to read webhook payload")
		return
	}

	event, err := h.parseEvent(c, payload)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	var transferData struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &transferData); err != nil || transferData.ID == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "webhook event has no object ID")
		return
	}

	var status models.PayoutStatus
	var failureCode, failureReason *string
	switch event.Type {
	case "transfer.paid":
		status = models.PayoutSucceeded
	case "transfer.failed", "transfer.reversed":
		status = models.PayoutFailed
		code := string(event.Type)
		reason := "transfer did not complete"
		failureCode, failureReason = &code, &reason
	default:
		// Not a settlement event; acknowledge and move on
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	_, err = h.service.ResolveByProcessorRef(c.Request.Context(), transferData.ID, status, failureCode, failureReason)
	if err != nil {
		// Unknown references are acked so Stripe stops retrying
		if common.HasCode(err, common.CodeNotFound) {
			logger.WarnContext(c.Request.Context(), "webhook for unknown transfer",
				zap.String("transfer_id", transferData.ID),
				zap.String("event_type", string(event.Type)),
			)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		common.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) parseEvent(c *gin.Context, payload []byte) (stripe.Event, error) {
	if h.webhookSecret != "" {
		return webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	}

	// No secret configured (local development): trust the payload
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

func (h *Handler) authorizePayout(c *gin.Context, driverID, payoutID uuid.UUID) bool {
	payout, err := h.service.GetPayout(c.Request.Context(), payoutID)
	if err != nil {
		common.HandleError(c, err)
		return false
	}
	if !h.canAccess(c, driverID, payout) {
		common.ErrorResponse(c, http.StatusForbidden, "access denied")
		return false
	}
	return true
}

func (h *Handler) canAccess(c *gin.Context, driverID uuid.UUID, payout *models.Payout) bool {
	if payout.DriverID == driverID {
		return true
	}
	role, err := middleware.GetUserRole(c)
	return err == nil && role == models.RoleAdmin
}
