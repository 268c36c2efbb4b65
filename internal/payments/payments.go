// Package payments holds the payment-intent adapter: it mints hosted
// checkout handles for prospective buyers. Purely advisory; nothing here
// reserves a listing or touches the ledger.
package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// CheckoutParams carries the listing snapshot a checkout session is minted
// from. Price is snapshotted at intent time; the finalize path re-reads
// authoritative state and does not trust it.
type CheckoutParams struct {
	ListingID string
	BuyerID   string
	SellerID  string
	Name      string
	Price     decimal.Decimal
}

// Checkout is an opaque redirect handle for a hosted payment page.
type Checkout struct {
	URL string
}

// IntentCreator mints checkout handles. Implementations must be safe for
// concurrent use.
type IntentCreator interface {
	CreateCheckout(ctx context.Context, p CheckoutParams) (*Checkout, error)
}

// ErrNotConfigured is returned by Disabled when no payment provider is set up.
var ErrNotConfigured = errors.New("payment provider is not configured")

// Disabled is the IntentCreator used when no provider credentials are
// configured. Every call fails with ErrNotConfigured.
type Disabled struct{}

func (Disabled) CreateCheckout(context.Context, CheckoutParams) (*Checkout, error) {
	return nil, ErrNotConfigured
}
