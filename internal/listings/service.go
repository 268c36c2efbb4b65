// Package listings provides the catalog service: create, read, update,
// delete and search listings, plus presigned image uploads. It never writes
// listing status; the listed->sold transition belongs to the checkout engine.
package listings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"api_market/internal/model"
	"api_market/internal/store"
	"api_market/internal/uploads"
)

// ErrForbidden is returned when a seller tries to modify another seller's
// listing.
var ErrForbidden = errors.New("listing belongs to another seller")

// ErrInvalidPrice is returned when a listing price is not greater than zero.
var ErrInvalidPrice = errors.New("price must be greater than zero")

// ErrInvalidRange is returned when a search has min_price above max_price.
var ErrInvalidRange = errors.New("min_price is greater than max_price")

// ErrUploadsDisabled is returned when no upload signer is configured.
var ErrUploadsDisabled = errors.New("uploads are not configured")

// Service provides catalog operations on a Store backend. The signer is
// optional; without one, upload URLs are unavailable and image cleanup is
// skipped.
type Service struct {
	storage store.Store
	signer  uploads.Signer
	logger  *zap.Logger
}

// NewService creates a new catalog Service.
func NewService(storage store.Store, signer uploads.Signer, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Service{
		storage: storage,
		signer:  signer,
		logger:  logger,
	}
}

// Update carries the mutable listing fields; nil means leave unchanged.
type Update struct {
	Name     *string
	Category *string
	Price    *decimal.Decimal
	ImageKey *string
}

// Create validates and persists a new listing in the listed state.
func (s *Service) Create(ctx context.Context, sellerID, name, category, imageKey string, price decimal.Decimal) (*model.Listing, error) {
	if name == "" {
		return nil, fmt.Errorf("name must not be empty")
	}
	if sellerID == "" {
		return nil, fmt.Errorf("seller_id must not be empty")
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}

	now := time.Now().UTC()
	l := &model.Listing{
		ID:        uuid.NewString(),
		SellerID:  sellerID,
		Name:      name,
		Category:  category,
		Price:     price,
		ImageKey:  imageKey,
		Status:    model.StatusListed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreateListing(ctx, l); err != nil {
		s.logger.Error("failed to create listing", zap.String("listing_id", l.ID), zap.Error(err))
		return nil, fmt.Errorf("create listing: %w", err)
	}

	s.logger.Info("listing created", zap.String("listing_id", l.ID), zap.String("seller_id", sellerID))
	return l, nil
}

// Get returns a listing by ID.
func (s *Service) Get(ctx context.Context, id string) (*model.Listing, error) {
	return s.storage.GetListing(ctx, id)
}

// List returns all listings, optionally filtered by exact category.
func (s *Service) List(ctx context.Context, category string) ([]model.Listing, error) {
	return s.storage.ListListings(ctx, category)
}

// Search returns listings matching the filter.
func (s *Service) Search(ctx context.Context, f model.ListingFilter) ([]model.Listing, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, ErrInvalidRange
	}
	return s.storage.SearchListings(ctx, f)
}

// Update applies the given changes after verifying the caller owns the
// listing.
func (s *Service) Update(ctx context.Context, id, sellerID string, upd Update) (*model.Listing, error) {
	l, err := s.storage.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		s.logger.Warn("update rejected: seller mismatch",
			zap.String("listing_id", id), zap.String("seller_id", sellerID))
		return nil, ErrForbidden
	}

	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, fmt.Errorf("name must not be empty")
		}
		l.Name = *upd.Name
	}
	if upd.Category != nil {
		l.Category = *upd.Category
	}
	if upd.Price != nil {
		if !upd.Price.IsPositive() {
			return nil, ErrInvalidPrice
		}
		l.Price = *upd.Price
	}
	if upd.ImageKey != nil {
		l.ImageKey = *upd.ImageKey
	}
	l.UpdatedAt = time.Now().UTC()

	if err := s.storage.UpdateListing(ctx, l); err != nil {
		s.logger.Error("failed to update listing", zap.String("listing_id", id), zap.Error(err))
		return nil, err
	}
	return l, nil
}

// Delete removes a listing after verifying ownership. The stored image, if
// any, is deleted best-effort: a cleanup failure is logged but never fails
// the delete.
func (s *Service) Delete(ctx context.Context, id, sellerID string) error {
	l, err := s.storage.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		s.logger.Warn("delete rejected: seller mismatch",
			zap.String("listing_id", id), zap.String("seller_id", sellerID))
		return ErrForbidden
	}

	if err := s.storage.DeleteListing(ctx, id); err != nil {
		s.logger.Error("failed to delete listing", zap.String("listing_id", id), zap.Error(err))
		return err
	}

	if l.ImageKey != "" && s.signer != nil {
		if err := s.signer.Delete(ctx, l.ImageKey); err != nil {
			s.logger.Warn("failed to delete listing image",
				zap.String("listing_id", id), zap.String("image_key", l.ImageKey), zap.Error(err))
		}
	}

	s.logger.Info("listing deleted", zap.String("listing_id", id))
	return nil
}

// UploadURL mints a presigned PUT URL for a listing image.
func (s *Service) UploadURL(ctx context.Context, filename string) (string, string, error) {
	if s.signer == nil {
		return "", "", ErrUploadsDisabled
	}
	url, key, err := s.signer.UploadURL(ctx, filename)
	if err != nil {
		return "", "", err
	}
	s.logger.Info("upload url issued", zap.String("key", key))
	return url, key, nil
}
