package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_market/internal/checkout"
	"api_market/internal/model"
)

// checkoutHandler holds the finalization engine and implements the HTTP
// handlers for the purchase path.
type checkoutHandler struct {
	checkoutService *checkout.Service
	logger          *zap.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(checkoutService *checkout.Service, logger *zap.Logger) *checkoutHandler {
	return &checkoutHandler{
		checkoutService: checkoutService,
		logger:          logger,
	}
}

// handleCreateIntent handles the POST /intent endpoint.
func (h *checkoutHandler) handleCreateIntent(ctx *gin.Context) {
	var req struct {
		ListingID string `json:"listing_id" binding:"required"`
		BuyerID   string `json:"buyer_id" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	intent, err := h.checkoutService.CreateIntent(ctx.Request.Context(), req.ListingID, req.BuyerID)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		case errors.Is(err, checkout.ErrUpstreamUnavailable):
			ctx.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})
		default:
			h.logger.Error("failed to create intent", zap.String("listing_id", req.ListingID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout intent"})
		}
		return
	}

	ctx.JSON(http.StatusOK, intent)
}

// handleFinalize handles the POST /finalize endpoint.
func (h *checkoutHandler) handleFinalize(ctx *gin.Context) {
	var req struct {
		ListingID string `json:"listing_id" binding:"required"`
		BuyerID   string `json:"buyer_id" binding:"required"`
		SellerID  string `json:"seller_id" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	rec, err := h.checkoutService.Finalize(ctx.Request.Context(), req.ListingID, req.BuyerID, req.SellerID)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		case errors.Is(err, checkout.ErrConflict):
			ctx.JSON(http.StatusConflict, gin.H{"error": "listing is no longer available"})
		default:
			h.logger.Error("failed to finalize sale", zap.String("listing_id", req.ListingID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize sale"})
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"sale_record": rec})
}

// handleLedger handles the GET /ledger endpoint.
func (h *checkoutHandler) handleLedger(ctx *gin.Context) {
	userID := ctx.Query("user_id")
	role := model.Role(ctx.Query("role"))

	if userID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	entries, err := h.checkoutService.LedgerFor(ctx.Request.Context(), userID, role)
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidRole) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to fetch ledger", zap.String("user_id", userID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch ledger"})
		return
	}

	ctx.JSON(http.StatusOK, entries)
}
