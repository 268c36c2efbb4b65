// Package store defines the persistence contract for the marketplace.
// Implementations include PostgreSQL (production), SQLite (single-node
// durable) and in-memory (development and tests).
package store

import (
	"context"
	"errors"

	"api_market/internal/model"
)

// ErrNotFound is returned when no listing with the given ID exists.
var ErrNotFound = errors.New("listing not found")

// ErrConflict is returned when a listing exists but is not in a state that
// permits the requested transition (already sold, or seller mismatch).
var ErrConflict = errors.New("listing not available")

// ErrDuplicateSale is returned when a ledger insert hits the unique
// constraint on listing_id. With the conditional-write protocol this should
// never fire; it exists as defense in depth.
var ErrDuplicateSale = errors.New("sale already recorded for listing")

// Store is the unified storage interface over the listing catalog and the
// sale ledger. The two live in one database so FinalizeSale can tie them
// together in a single unit of work.
type Store interface {
	// CreateListing persists a new listing. The caller assigns the ID.
	CreateListing(ctx context.Context, l *model.Listing) error

	// GetListing retrieves a listing by ID, in any status.
	GetListing(ctx context.Context, id string) (*model.Listing, error)

	// ListListings returns all listings, optionally filtered by exact category.
	ListListings(ctx context.Context, category string) ([]model.Listing, error)

	// SearchListings returns listings matching the filter.
	SearchListings(ctx context.Context, f model.ListingFilter) ([]model.Listing, error)

	// UpdateListing overwrites the mutable descriptive fields of a listing.
	// It never changes Status; that transition belongs to FinalizeSale.
	UpdateListing(ctx context.Context, l *model.Listing) error

	// DeleteListing removes a listing by ID.
	DeleteListing(ctx context.Context, id string) error

	// FinalizeSale atomically transitions the listing from listed to sold and
	// inserts the matching sale record, in one unit of work. The transition is
	// a single conditional write: among concurrent calls for the same listing
	// exactly one succeeds, the rest get ErrConflict. A missing listing yields
	// ErrNotFound. No sale record is ever created on a failed transition.
	FinalizeSale(ctx context.Context, listingID, buyerID, sellerID string) (*model.SaleRecord, error)

	// LedgerFor returns the sale records where the user is buyer or seller,
	// joined with listing snapshots, ordered by creation time descending.
	LedgerFor(ctx context.Context, userID string, role model.Role) ([]model.LedgerEntry, error)

	// SoldWithoutSale returns IDs of listings marked sold that have no ledger
	// row, i.e. rows violating the status = sold <=> one sale invariant.
	SoldWithoutSale(ctx context.Context) ([]string, error)

	// RelistUnrecorded reverts a sold listing back to listed, but only if no
	// sale record references it. This is the compensating repair for the
	// rows SoldWithoutSale reports. A listing with a sale yields ErrConflict.
	RelistUnrecorded(ctx context.Context, listingID string) error

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
