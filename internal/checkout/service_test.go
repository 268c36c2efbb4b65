package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"api_market/internal/model"
	"api_market/internal/payments"
	"api_market/internal/store"
	"api_market/internal/store/memory"
)

// fakeIntents counts calls and optionally fails, standing in for Stripe.
type fakeIntents struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeIntents) CreateCheckout(_ context.Context, p payments.CheckoutParams) (*payments.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("provider timeout")
	}
	return &payments.Checkout{URL: "https://pay.example/session/" + p.ListingID}, nil
}

// brokenStore fails every finalize with an infrastructure error.
type brokenStore struct {
	store.Store
}

func (brokenStore) FinalizeSale(context.Context, string, string, string) (*model.SaleRecord, error) {
	return nil, errors.New("connection reset")
}

func seedListing(t *testing.T, st store.Store, sellerID string) *model.Listing {
	t.Helper()
	now := time.Now().UTC()
	l := &model.Listing{
		ID:        uuid.NewString(),
		SellerID:  sellerID,
		Name:      "Vintage road bike",
		Category:  "bikes",
		Price:     decimal.RequireFromString("150.75"),
		Status:    model.StatusListed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateListing(context.Background(), l))
	return l
}

func TestFinalize_ExactlyOnceUnderConcurrency(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{}, zaptest.NewLogger(t))
	l := seedListing(t, st, "seller-1")

	const buyers = 32
	var wg sync.WaitGroup
	records := make([]*model.SaleRecord, buyers)
	errs := make([]error, buyers)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyerID := uuid.NewString()
			records[i], errs[i] = svc.Finalize(context.Background(), l.ID, buyerID, "seller-1")
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	var winner *model.SaleRecord
	for i := 0; i < buyers; i++ {
		switch {
		case errs[i] == nil:
			wins++
			winner = records[i]
		case errors.Is(errs[i], ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	assert.Equal(t, 1, wins, "exactly one buyer must win")
	assert.Equal(t, buyers-1, conflicts, "every loser must see a conflict")

	require.NotNil(t, winner)
	assert.Equal(t, l.ID, winner.ListingID)
	assert.Equal(t, model.SaleCompleted, winner.Status)

	got, err := st.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, got.Status)

	ledger, err := svc.LedgerFor(context.Background(), "seller-1", model.RoleSeller)
	require.NoError(t, err)
	require.Len(t, ledger, 1, "exactly one ledger row for the listing")
	assert.Equal(t, winner.ID, ledger[0].ID)
	assert.Equal(t, winner.BuyerID, ledger[0].BuyerID)
}

func TestFinalize_NotFoundCreatesNoRecord(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{}, zaptest.NewLogger(t))

	rec, err := svc.Finalize(context.Background(), "missing-id", "buyer-1", "seller-1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, rec)

	ledger, err := svc.LedgerFor(context.Background(), "buyer-1", model.RoleBuyer)
	require.NoError(t, err)
	assert.Empty(t, ledger, "a phantom sale must never be recorded")
}

func TestFinalize_SequentialSecondCallConflicts(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{}, zaptest.NewLogger(t))
	l := seedListing(t, st, "seller-1")

	first, err := svc.Finalize(context.Background(), l.ID, "buyer-a", "seller-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	// Not idempotent: repeating the identical call is still a conflict.
	for i := 0; i < 3; i++ {
		rec, err := svc.Finalize(context.Background(), l.ID, "buyer-a", "seller-1")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Nil(t, rec)
	}

	ledger, err := svc.LedgerFor(context.Background(), "buyer-a", model.RoleBuyer)
	require.NoError(t, err)
	assert.Len(t, ledger, 1, "no duplicate sale records")
}

func TestFinalize_SellerMismatchConflicts(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{}, zaptest.NewLogger(t))
	l := seedListing(t, st, "seller-1")

	_, err := svc.Finalize(context.Background(), l.ID, "buyer-a", "someone-else")
	assert.ErrorIs(t, err, ErrConflict)

	got, err := st.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusListed, got.Status, "a rejected finalize must not transition the listing")
}

func TestFinalize_StorageFailureMapsToPersistence(t *testing.T) {
	st := memory.New()
	svc := NewService(brokenStore{st}, &fakeIntents{}, zaptest.NewLogger(t))
	l := seedListing(t, st, "seller-1")

	_, err := svc.Finalize(context.Background(), l.ID, "buyer-a", "seller-1")
	assert.ErrorIs(t, err, ErrPersistence)

	got, err := st.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusListed, got.Status, "failed unit of work must leave the listing listed")
}

func TestCreateIntent_ReturnsHandleWithoutSideEffects(t *testing.T) {
	st := memory.New()
	intents := &fakeIntents{}
	svc := NewService(st, intents, zaptest.NewLogger(t))
	l := seedListing(t, st, "seller-1")

	// Any number of intents may exist for one listing.
	for i := 0; i < 5; i++ {
		intent, err := svc.CreateIntent(context.Background(), l.ID, "buyer-a")
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example/session/"+l.ID, intent.URL)
		assert.Equal(t, l.ID, intent.ListingID)
		assert.Equal(t, "buyer-a", intent.BuyerID)
	}
	assert.Equal(t, 5, intents.calls)

	got, err := st.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusListed, got.Status, "intents must not reserve the listing")

	ledger, err := svc.LedgerFor(context.Background(), "buyer-a", model.RoleBuyer)
	require.NoError(t, err)
	assert.Empty(t, ledger, "intents must not touch the ledger")
}

func TestCreateIntent_NotFound(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{}, zaptest.NewLogger(t))

	_, err := svc.CreateIntent(context.Background(), "missing-id", "buyer-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIntent_AdapterFailureIsUpstream(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{fail: true}, zaptest.NewLogger(t))
	l := seedListing(t, st, "seller-1")

	_, err := svc.CreateIntent(context.Background(), l.ID, "buyer-a")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	got, err := st.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusListed, got.Status)
}

func TestLedgerFor_FiltersByRoleAndOrdersNewestFirst(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{}, zaptest.NewLogger(t))

	first := seedListing(t, st, "seller-1")
	second := seedListing(t, st, "seller-1")
	other := seedListing(t, st, "seller-2")

	_, err := svc.Finalize(context.Background(), first.ID, "buyer-a", "seller-1")
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), second.ID, "buyer-a", "seller-1")
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), other.ID, "buyer-b", "seller-2")
	require.NoError(t, err)

	asBuyer, err := svc.LedgerFor(context.Background(), "buyer-a", model.RoleBuyer)
	require.NoError(t, err)
	require.Len(t, asBuyer, 2)
	assert.Equal(t, second.ID, asBuyer[0].ListingID, "newest sale first")
	assert.Equal(t, first.ID, asBuyer[1].ListingID)
	assert.Equal(t, "Vintage road bike", asBuyer[0].ListingName)
	assert.True(t, asBuyer[0].Price.Equal(decimal.RequireFromString("150.75")))

	asSeller, err := svc.LedgerFor(context.Background(), "seller-2", model.RoleSeller)
	require.NoError(t, err)
	require.Len(t, asSeller, 1)
	assert.Equal(t, other.ID, asSeller[0].ListingID)

	_, err = svc.LedgerFor(context.Background(), "buyer-a", model.Role("admin"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestReconcile_OrphansAndRelist(t *testing.T) {
	st := memory.New()
	svc := NewService(st, &fakeIntents{}, zaptest.NewLogger(t))

	orphan := seedListing(t, st, "seller-1")
	sold := seedListing(t, st, "seller-1")
	_, err := svc.Finalize(context.Background(), sold.ID, "buyer-a", "seller-1")
	require.NoError(t, err)

	// Stage the inconsistent state a crash window could leave behind.
	st.MarkSold(orphan.ID)

	ids, err := svc.Orphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.ID}, ids, "only the unrecorded sold listing is an orphan")

	require.NoError(t, svc.Relist(context.Background(), orphan.ID))
	got, err := st.GetListing(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusListed, got.Status)

	// A listing with a real sale must never be relisted.
	assert.ErrorIs(t, svc.Relist(context.Background(), sold.ID), ErrConflict)
}
