// Package checkout is the sale finalization engine. It owns the taxonomy of
// purchase outcomes and ties the listing catalog and the sale ledger
// together through the store's atomic conditional write. The engine itself
// holds no mutable state: all serialization between racing buyers happens in
// the storage layer.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"api_market/internal/model"
	"api_market/internal/payments"
	"api_market/internal/store"
)

// ErrNotFound is returned when the listing does not exist.
var ErrNotFound = errors.New("listing not found")

// ErrConflict is returned when the listing was not in the listed state at
// conditional-write time: it was already sold, lost the race, or the caller
// named the wrong seller. Retrying is meaningless; the item is gone.
var ErrConflict = errors.New("listing is not available for purchase")

// ErrUpstreamUnavailable is returned when the payment-intent adapter fails.
// Retryable; no state was mutated.
var ErrUpstreamUnavailable = errors.New("payment provider unavailable")

// ErrPersistence is returned on storage failures. The unit of work never
// half-commits: on this error the listing observably remains listed.
var ErrPersistence = errors.New("storage failure")

// ErrInvalidRole is returned on a ledger query with an unknown role.
var ErrInvalidRole = errors.New("role must be buyer or seller")

// Intent is the advisory handle CreateIntent returns. It carries no
// reservation: any number of buyers may hold intents for the same listing.
type Intent struct {
	URL       string `json:"checkout_url"`
	ListingID string `json:"listing_id"`
	BuyerID   string `json:"buyer_id"`
}

// Service is the finalization engine. It holds no state of its own, only
// the store and payment-adapter handles.
type Service struct {
	storage store.Store
	intents payments.IntentCreator
	logger  *zap.Logger
}

// NewService creates a new checkout Service.
func NewService(storage store.Store, intents payments.IntentCreator, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Service{
		storage: storage,
		intents: intents,
		logger:  logger,
	}
}

// CreateIntent fetches the listing and asks the payment adapter for a
// redirect handle carrying a name and price snapshot. It does not reserve
// the listing and has no side effects on the catalog or the ledger.
func (s *Service) CreateIntent(ctx context.Context, listingID, buyerID string) (*Intent, error) {
	l, err := s.storage.GetListing(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to read listing for intent",
			zap.String("listing_id", listingID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	co, err := s.intents.CreateCheckout(ctx, payments.CheckoutParams{
		ListingID: l.ID,
		BuyerID:   buyerID,
		SellerID:  l.SellerID,
		Name:      l.Name,
		Price:     l.Price,
	})
	if err != nil {
		s.logger.Error("payment adapter failed",
			zap.String("listing_id", listingID), zap.String("buyer_id", buyerID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	s.logger.Info("checkout intent created",
		zap.String("listing_id", l.ID), zap.String("buyer_id", buyerID))
	return &Intent{URL: co.URL, ListingID: l.ID, BuyerID: buyerID}, nil
}

// Finalize commits the sale: the listing's listed->sold transition and the
// ledger insert succeed or fail together. Among concurrent calls for the
// same listing exactly one wins; the rest get ErrConflict. Finalize is not
// idempotent by request: repeating a successful call also yields ErrConflict.
func (s *Service) Finalize(ctx context.Context, listingID, buyerID, sellerID string) (*model.SaleRecord, error) {
	rec, err := s.storage.FinalizeSale(ctx, listingID, buyerID, sellerID)
	switch {
	case err == nil:
		s.logger.Info("sale finalized",
			zap.String("sale_id", rec.ID),
			zap.String("listing_id", listingID),
			zap.String("buyer_id", buyerID))
		return rec, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicateSale):
		s.logger.Warn("finalize lost to a prior sale",
			zap.String("listing_id", listingID), zap.String("buyer_id", buyerID))
		return nil, ErrConflict
	default:
		s.logger.Error("finalize failed",
			zap.String("listing_id", listingID), zap.String("buyer_id", buyerID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}

// LedgerFor returns the completed sales where the user is buyer or seller,
// newest first. Pure query.
func (s *Service) LedgerFor(ctx context.Context, userID string, role model.Role) ([]model.LedgerEntry, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	entries, err := s.storage.LedgerFor(ctx, userID, role)
	if err != nil {
		s.logger.Error("failed to read ledger",
			zap.String("user_id", userID), zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return entries, nil
}

// Orphans reports listings marked sold with no matching ledger row. Such
// rows can only appear through a crash window or outside interference; the
// reconcile sweep uses this to find them.
func (s *Service) Orphans(ctx context.Context) ([]string, error) {
	ids, err := s.storage.SoldWithoutSale(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ids, nil
}

// Relist reverts an orphaned sold listing back to listed. The store refuses
// to relist anything that actually has a sale record.
func (s *Service) Relist(ctx context.Context, listingID string) error {
	err := s.storage.RelistUnrecorded(ctx, listingID)
	switch {
	case err == nil:
		s.logger.Info("orphaned listing relisted", zap.String("listing_id", listingID))
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}
