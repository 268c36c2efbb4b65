package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"api_market/api"
	"api_market/internal/model"
	"api_market/internal/payments"
	"api_market/internal/store/memory"
)

// okIntents mints a deterministic checkout URL per listing.
type okIntents struct{}

func (okIntents) CreateCheckout(_ context.Context, p payments.CheckoutParams) (*payments.Checkout, error) {
	return &payments.Checkout{URL: "https://pay.example/session/" + p.ListingID}, nil
}

// downIntents simulates a payment-provider outage.
type downIntents struct{}

func (downIntents) CreateCheckout(context.Context, payments.CheckoutParams) (*payments.Checkout, error) {
	return nil, errors.New("provider timeout")
}

func newRouter(t *testing.T, intents payments.IntentCreator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api.InitRoutes(router, api.Deps{
		Store:   memory.New(),
		Intents: intents,
		Logger:  zaptest.NewLogger(t),
	})
	return router
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestPurchaseHappyPath_FullFlow drives POST /listings -> POST /intent ->
// POST /finalize -> GET /ledger through the router.
func TestPurchaseHappyPath_FullFlow(t *testing.T) {
	router := newRouter(t, okIntents{})

	var listingID string

	t.Run("POST_CreateListing", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/listings", map[string]any{
			"name":      "Road Bike",
			"category":  "bikes",
			"price":     150.75,
			"seller_id": "seller-1",
		})
		require.Equal(t, http.StatusCreated, w.Code, "expected HTTP 201 for listing creation")

		var created model.Listing
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, model.StatusListed, created.Status)
		listingID = created.ID
	})

	require.NotEmpty(t, listingID, "listing ID was not generated in POST_CreateListing step")

	t.Run("POST_CreateIntent", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/intent", map[string]any{
			"listing_id": listingID,
			"buyer_id":   "buyer-a",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var intent struct {
			URL       string `json:"checkout_url"`
			ListingID string `json:"listing_id"`
			BuyerID   string `json:"buyer_id"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
		assert.Equal(t, "https://pay.example/session/"+listingID, intent.URL)
		assert.Equal(t, listingID, intent.ListingID)
		assert.Equal(t, "buyer-a", intent.BuyerID)
	})

	t.Run("POST_Finalize", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/finalize", map[string]any{
			"listing_id": listingID,
			"buyer_id":   "buyer-a",
			"seller_id":  "seller-1",
		})
		require.Equal(t, http.StatusOK, w.Code, "expected HTTP 200 for winning finalize")

		var resp struct {
			SaleRecord model.SaleRecord `json:"sale_record"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, listingID, resp.SaleRecord.ListingID)
		assert.Equal(t, "buyer-a", resp.SaleRecord.BuyerID)
		assert.Equal(t, model.SaleCompleted, resp.SaleRecord.Status)
	})

	t.Run("POST_Finalize_AgainConflicts", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/finalize", map[string]any{
			"listing_id": listingID,
			"buyer_id":   "buyer-b",
			"seller_id":  "seller-1",
		})
		assert.Equal(t, http.StatusConflict, w.Code, "a sold listing must answer 409")
	})

	t.Run("GET_ListingIsSold", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/listings/"+listingID, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var got model.Listing
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, model.StatusSold, got.Status)
	})

	t.Run("GET_LedgerAsBuyer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ledger?user_id=buyer-a&role=buyer", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var entries []model.LedgerEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, listingID, entries[0].ListingID)
		assert.Equal(t, "Road Bike", entries[0].ListingName)
	})
}

func TestFinalize_UnknownListingIs404(t *testing.T) {
	router := newRouter(t, okIntents{})
	w := doJSON(router, http.MethodPost, "/finalize", map[string]any{
		"listing_id": "missing-id",
		"buyer_id":   "buyer-a",
		"seller_id":  "seller-1",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFinalize_MalformedBodyIs400(t *testing.T) {
	router := newRouter(t, okIntents{})
	w := doJSON(router, http.MethodPost, "/finalize", map[string]any{
		"listing_id": "l-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntent_ProviderDownIs502(t *testing.T) {
	router := newRouter(t, downIntents{})

	w := doJSON(router, http.MethodPost, "/listings", map[string]any{
		"name":      "Lamp",
		"price":     20,
		"seller_id": "seller-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(router, http.MethodPost, "/intent", map[string]any{
		"listing_id": created.ID,
		"buyer_id":   "buyer-a",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLedger_InvalidRoleIs400(t *testing.T) {
	router := newRouter(t, okIntents{})
	req := httptest.NewRequest(http.MethodGet, "/ledger?user_id=buyer-a&role=admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndDelete_OwnershipEnforced(t *testing.T) {
	router := newRouter(t, okIntents{})

	w := doJSON(router, http.MethodPost, "/listings", map[string]any{
		"name":      "Poster",
		"price":     12,
		"seller_id": "seller-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(router, http.MethodPut, fmt.Sprintf("/listings/%s", created.ID), map[string]any{
		"seller_id": "intruder",
		"name":      "Stolen poster",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodDelete, fmt.Sprintf("/listings/%s", created.ID), map[string]any{
		"seller_id": "intruder",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodDelete, fmt.Sprintf("/listings/%s", created.ID), map[string]any{
		"seller_id": "seller-1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadURL_DisabledWithoutSigner(t *testing.T) {
	router := newRouter(t, okIntents{})
	req := httptest.NewRequest(http.MethodGet, "/uploads/url?filename=photo.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSearch_FiltersThroughRouter(t *testing.T) {
	router := newRouter(t, okIntents{})

	for _, l := range []map[string]any{
		{"name": "Road Bike", "category": "bikes", "price": 150, "seller_id": "seller-1"},
		{"name": "Desk lamp", "category": "furniture", "price": 20, "seller_id": "seller-1"},
	} {
		w := doJSON(router, http.MethodPost, "/listings", l)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?name=bike&min_price=100&max_price=200", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var results []model.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Road Bike", results[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/search?min_price=200&max_price=100", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
