package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Stripe mints hosted Checkout sessions: card payment, single line item,
// price snapshot in cents.
type Stripe struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripe builds a Stripe adapter with its own API client. The success URL
// gets the buyer/seller/listing tuple appended so the confirmation page can
// correlate the redirect with a finalize call.
func NewStripe(apiKey, successURL, cancelURL string) *Stripe {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Stripe{
		api:        api,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

func (s *Stripe) CreateCheckout(ctx context.Context, p CheckoutParams) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(sanitizeName(p.Name)),
				},
				UnitAmount: stripe.Int64(cents(p.Price)),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(s.redirectURL(p)),
		CancelURL:  stripe.String(s.cancelURL),
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Checkout{URL: sess.URL}, nil
}

func (s *Stripe) redirectURL(p CheckoutParams) string {
	q := url.Values{}
	q.Set("buyer_id", p.BuyerID)
	q.Set("seller_id", p.SellerID)
	q.Set("listing_id", p.ListingID)
	return s.successURL + "?" + q.Encode()
}

// cents converts a decimal price to the integer cent amount Stripe expects.
func cents(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// sanitizeName strips characters that Stripe's product name field rejects,
// keeping printable ASCII plus a small punctuation set.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 0x20 && r < 0x7f) || r == ' ' || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
