// Package model holds the marketplace domain types shared by the stores,
// the catalog service and the sale finalization engine.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus is the two-state lifecycle of a catalog item.
type ListingStatus string

const (
	// StatusListed marks an item that is available for purchase.
	StatusListed ListingStatus = "listed"
	// StatusSold marks an item that has exactly one completed sale.
	StatusSold ListingStatus = "sold"
)

// Listing is a single sellable catalog item. Status is mutated only by the
// finalization engine's conditional listed->sold transition.
type Listing struct {
	ID        string          `json:"id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	ImageKey  string          `json:"image_key,omitempty"`
	Status    ListingStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SaleStatus is the status of a ledger entry. Only terminal successful sales
// are persisted, so completed is the only value.
type SaleStatus string

// SaleCompleted is the sole persisted sale status.
const SaleCompleted SaleStatus = "completed"

// SaleRecord is an immutable ledger entry recording a completed sale.
// At most one record exists per listing.
type SaleRecord struct {
	ID        string     `json:"id"`
	ListingID string     `json:"listing_id"`
	BuyerID   string     `json:"buyer_id"`
	SellerID  string     `json:"seller_id"`
	Status    SaleStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// LedgerEntry is the ledger read projection: a sale record joined with a
// snapshot of the listing it references.
type LedgerEntry struct {
	SaleRecord
	ListingName string          `json:"name"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// Role selects which side of a sale a ledger query filters on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Valid reports whether the role is one of the two known values.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// ListingFilter holds the optional search criteria. Name and Category match
// partially and case-insensitively; ID and SellerID match exactly.
type ListingFilter struct {
	ID       string
	Name     string
	Category string
	SellerID string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}
