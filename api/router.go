package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_market/internal/checkout"
	"api_market/internal/listings"
	"api_market/internal/payments"
	"api_market/internal/store"
	"api_market/internal/uploads"
)

// Deps carries the collaborators the HTTP surface is wired with. Signer may
// be nil (uploads disabled); everything else is required.
type Deps struct {
	Store   store.Store
	Intents payments.IntentCreator
	Signer  uploads.Signer
	Logger  *zap.Logger
}

// InitRoutes registers all marketplace endpoints on the given Gin engine.
// It initializes the services and handlers, then binds each HTTP method and
// path to the appropriate handler function.
func InitRoutes(e *gin.Engine, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	listingsService := listings.NewService(deps.Store, deps.Signer, logger)
	checkoutService := checkout.NewService(deps.Store, deps.Intents, logger)
	listingsHandler := NewListingsHandler(listingsService, logger)
	checkoutHandler := NewCheckoutHandler(checkoutService, logger)

	e.POST("/listings", listingsHandler.handleCreate)
	e.GET("/listings", listingsHandler.handleList)
	e.GET("/listings/:id", listingsHandler.handleGet)
	e.PUT("/listings/:id", listingsHandler.handleUpdate)
	e.DELETE("/listings/:id", listingsHandler.handleDelete)
	e.GET("/search", listingsHandler.handleSearch)
	e.GET("/uploads/url", listingsHandler.handleUploadURL)

	e.POST("/intent", checkoutHandler.handleCreateIntent)
	e.POST("/finalize", checkoutHandler.handleFinalize)
	e.GET("/ledger", checkoutHandler.handleLedger)

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}
