package payments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCents(t *testing.T) {
	cases := map[string]int64{
		"150.75": 15075,
		"20":     2000,
		"0.99":   99,
		"10.999": 1100, // rounds to the nearest cent
	}
	for in, want := range cases {
		assert.Equal(t, want, cents(decimal.RequireFromString(in)), "price %s", in)
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Road Bike - like new", sanitizeName("Road Bike - like new"))
	assert.Equal(t, "Lamp ", sanitizeName("Lamp ✨"))
	assert.Equal(t, "caf table", sanitizeName("café table"))
}

func TestStripeRedirectURLCarriesCorrelationIDs(t *testing.T) {
	s := NewStripe("sk_test", "http://localhost:5173/ordersuccess", "http://localhost:5173/ordercancel")
	got := s.redirectURL(CheckoutParams{ListingID: "l-1", BuyerID: "b-1", SellerID: "s-1"})
	assert.Equal(t, "http://localhost:5173/ordersuccess?buyer_id=b-1&listing_id=l-1&seller_id=s-1", got)
}
