package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"api_market/internal/listings"
	"api_market/internal/model"
	"api_market/internal/store"
)

// listingsHandler holds the catalog service and implements HTTP handlers for
// listing operations.
type listingsHandler struct {
	listingsService *listings.Service
	logger          *zap.Logger
}

// NewListingsHandler creates a new listings handler.
func NewListingsHandler(listingsService *listings.Service, logger *zap.Logger) *listingsHandler {
	return &listingsHandler{
		listingsService: listingsService,
		logger:          logger,
	}
}

// handleCreate handles the POST /listings endpoint.
func (h *listingsHandler) handleCreate(ctx *gin.Context) {
	var req struct {
		Name     string          `json:"name" binding:"required"`
		Category string          `json:"category"`
		Price    decimal.Decimal `json:"price"`
		SellerID string          `json:"seller_id" binding:"required"`
		ImageKey string          `json:"image_key"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	l, err := h.listingsService.Create(ctx.Request.Context(), req.SellerID, req.Name, req.Category, req.ImageKey, req.Price)
	if err != nil {
		if errors.Is(err, listings.ErrInvalidPrice) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to create listing", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create listing"})
		return
	}

	ctx.JSON(http.StatusCreated, l)
}

// handleGet handles the GET /listings/:id endpoint.
func (h *listingsHandler) handleGet(ctx *gin.Context) {
	l, err := h.listingsService.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.Error("failed to get listing", zap.String("listing_id", ctx.Param("id")), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch listing"})
		return
	}
	ctx.JSON(http.StatusOK, l)
}

// handleList handles the GET /listings endpoint with an optional category
// filter.
func (h *listingsHandler) handleList(ctx *gin.Context) {
	results, err := h.listingsService.List(ctx.Request.Context(), ctx.Query("category"))
	if err != nil {
		h.logger.Error("failed to list listings", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch listings"})
		return
	}
	ctx.JSON(http.StatusOK, results)
}

// handleSearch handles the GET /search endpoint.
func (h *listingsHandler) handleSearch(ctx *gin.Context) {
	f := model.ListingFilter{
		ID:       ctx.Query("id"),
		Name:     ctx.Query("name"),
		Category: ctx.Query("category"),
		SellerID: ctx.Query("seller_id"),
	}

	var err error
	if f.MinPrice, err = parsePrice(ctx.Query("min_price")); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_price"})
		return
	}
	if f.MaxPrice, err = parsePrice(ctx.Query("max_price")); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_price"})
		return
	}

	results, err := h.listingsService.Search(ctx.Request.Context(), f)
	if err != nil {
		if errors.Is(err, listings.ErrInvalidRange) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to search listings", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search listings"})
		return
	}
	ctx.JSON(http.StatusOK, results)
}

// handleUpdate handles the PUT /listings/:id endpoint. Only the listing's
// owner may update it.
func (h *listingsHandler) handleUpdate(ctx *gin.Context) {
	var req struct {
		SellerID string           `json:"seller_id" binding:"required"`
		Name     *string          `json:"name"`
		Category *string          `json:"category"`
		Price    *decimal.Decimal `json:"price"`
		ImageKey *string          `json:"image_key"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	l, err := h.listingsService.Update(ctx.Request.Context(), ctx.Param("id"), req.SellerID, listings.Update{
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		ImageKey: req.ImageKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		case errors.Is(err, listings.ErrForbidden):
			ctx.JSON(http.StatusForbidden, gin.H{"error": "you may only update your own listings"})
		case errors.Is(err, listings.ErrInvalidPrice):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to update listing", zap.String("listing_id", ctx.Param("id")), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update listing"})
		}
		return
	}

	ctx.JSON(http.StatusOK, l)
}

// handleDelete handles the DELETE /listings/:id endpoint. Only the listing's
// owner may delete it.
func (h *listingsHandler) handleDelete(ctx *gin.Context) {
	var req struct {
		SellerID string `json:"seller_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	err := h.listingsService.Delete(ctx.Request.Context(), ctx.Param("id"), req.SellerID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		case errors.Is(err, listings.ErrForbidden):
			ctx.JSON(http.StatusForbidden, gin.H{"error": "you may only delete your own listings"})
		default:
			h.logger.Error("failed to delete listing", zap.String("listing_id", ctx.Param("id")), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete listing"})
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

// handleUploadURL handles the GET /uploads/url endpoint.
func (h *listingsHandler) handleUploadURL(ctx *gin.Context) {
	filename := strings.TrimSpace(ctx.Query("filename"))
	if filename == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}

	url, key, err := h.listingsService.UploadURL(ctx.Request.Context(), filename)
	if err != nil {
		if errors.Is(err, listings.ErrUploadsDisabled) {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to generate upload url", zap.String("filename", filename), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate upload URL"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"upload_url": url, "key": key})
}

func parsePrice(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
