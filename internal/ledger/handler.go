package ledger

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/driver-ledger/pkg/common"
	"github.com/richxcame/driver-ledger/pkg/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers wallet routes
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	api := router.Group("/api/v1")

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtSecret))
	{
		protected.GET("/wallet", h.GetWallet)
		protected.GET("/wallet/transactions", h.GetWalletTransactions)
	}
}

// GetWallet returns the authenticated driver's wallet
func (h *Handler) GetWallet(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	wallet, err := h.service.GetOrCreateWallet(c.Request.Context(), driverID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, wallet)
}

// GetWalletTransactions returns the driver's ledger entries, newest first
func (h *Handler) GetWalletTransactions(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	transactions, total, err := h.service.ListTransactions(c.Request.Context(), driverID, limit, offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, transactions, &common.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}
