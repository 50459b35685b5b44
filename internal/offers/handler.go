package offers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/middleware"
	"github.com/richxcame/driver-ledger/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers ride offer routes
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	api := router.Group("/api/v1")

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtSecret))
	{
		protected.POST("/offers", h.CreateOffer)
		protected.POST("/offers/:id/accept", h.AcceptOffer)
		protected.POST("/offers/:id/charge", h.ChargeRider)
		protected.POST("/offers/:id/payment", h.LinkPayment)
		protected.GET("/rides/:id/offer", h.GetAcceptedOffer)
	}
}

// CreateOfferRequest is a driver's offer for a ride request
type CreateOfferRequest struct {
	RideRequestID string `json:"ride_request_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
}

// CreateOffer records a driver's offer for a ride request
func (h *Handler) CreateOffer(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rideRequestID, err := uuid.Parse(req.RideRequestID)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride request ID")
		return
	}

	offer, err := h.service.CreateOffer(c.Request.Context(), rideRequestID, driverID, req.Amount)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.CreatedResponse(c, offer)
}

// AcceptOffer accepts a pending offer
func (h *Handler) AcceptOffer(c *gin.Context) {
	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid offer ID")
		return
	}

	offer, err := h.service.AcceptOffer(c.Request.Context(), offerID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, offer)
}

// ChargeRider charges the rider for an accepted offer
func (h *Handler) ChargeRider(c *gin.Context) {
	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid offer ID")
		return
	}

	offer, err := h.service.ChargeRider(c.Request.Context(), offerID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, offer)
}

// LinkPayment attaches an externally created payment to an accepted offer
func (h *Handler) LinkPayment(c *gin.Context) {
	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid offer ID")
		return
	}

	var req models.LinkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	offer, err := h.service.LinkPayment(c.Request.Context(), offerID, req.PaymentReference)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, offer)
}

// GetAcceptedOffer returns the accepted offer for a ride request
func (h *Handler) GetAcceptedOffer(c *gin.Context) {
	rideRequestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride request ID")
		return
	}

	offer, err := h.service.GetAcceptedOffer(c.Request.Context(), rideRequestID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, offer)
}
