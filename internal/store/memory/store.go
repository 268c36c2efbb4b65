// Package memory provides an in-memory store implementation for development
// and tests. All operations run under one mutex, which makes FinalizeSale a
// true atomic unit: the status check, transition and ledger insert happen in
// a single critical section.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"api_market/internal/model"
	"api_market/internal/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps listings and sales in maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	listings map[string]model.Listing
	sales    map[string]model.SaleRecord // keyed by listing ID
	order    []string                    // listing IDs of sales in insert order
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		listings: make(map[string]model.Listing),
		sales:    make(map[string]model.SaleRecord),
	}
}

func (s *Store) CreateListing(_ context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = *l
	return nil
}

func (s *Store) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (s *Store) ListListings(_ context.Context, category string) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if category != "" && l.Category != category {
			continue
		}
		out = append(out, l)
	}
	sortListings(out)
	return out, nil
}

func (s *Store) SearchListings(_ context.Context, f model.ListingFilter) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Listing, 0)
	for _, l := range s.listings {
		if !matches(l, f) {
			continue
		}
		out = append(out, l)
	}
	sortListings(out)
	return out, nil
}

func (s *Store) UpdateListing(_ context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.listings[l.ID]
	if !ok {
		return store.ErrNotFound
	}
	// Status is owned by FinalizeSale.
	upd := *l
	upd.Status = cur.Status
	s.listings[l.ID] = upd
	return nil
}

func (s *Store) DeleteListing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.listings, id)
	return nil
}

func (s *Store) FinalizeSale(_ context.Context, listingID, buyerID, sellerID string) (*model.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if l.Status != model.StatusListed || l.SellerID != sellerID {
		return nil, store.ErrConflict
	}
	if _, exists := s.sales[listingID]; exists {
		return nil, store.ErrDuplicateSale
	}

	now := time.Now().UTC()
	l.Status = model.StatusSold
	l.UpdatedAt = now
	s.listings[listingID] = l

	rec := model.SaleRecord{
		ID:        uuid.NewString(),
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Status:    model.SaleCompleted,
		CreatedAt: now,
	}
	s.sales[listingID] = rec
	s.order = append(s.order, listingID)
	return &rec, nil
}

func (s *Store) LedgerFor(_ context.Context, userID string, role model.Role) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LedgerEntry, 0)
	// Walk insert order backwards so equal timestamps still come out
	// newest-first, matching the SQL drivers' created_at DESC ordering.
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.sales[s.order[i]]
		if role == model.RoleBuyer && rec.BuyerID != userID {
			continue
		}
		if role == model.RoleSeller && rec.SellerID != userID {
			continue
		}
		e := model.LedgerEntry{SaleRecord: rec}
		if l, ok := s.listings[rec.ListingID]; ok {
			e.ListingName = l.Name
			e.Category = l.Category
			e.Price = l.Price
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) SoldWithoutSale(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, l := range s.listings {
		if l.Status != model.StatusSold {
			continue
		}
		if _, ok := s.sales[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) RelistUnrecorded(_ context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return store.ErrNotFound
	}
	if l.Status != model.StatusSold {
		return store.ErrConflict
	}
	if _, hasSale := s.sales[listingID]; hasSale {
		return store.ErrConflict
	}
	l.Status = model.StatusListed
	l.UpdatedAt = time.Now().UTC()
	s.listings[listingID] = l
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// MarkSold force-sets a listing to sold without writing a ledger row. It
// exists so tests can stage the inconsistent state the reconciliation sweep
// repairs.
func (s *Store) MarkSold(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[id]; ok {
		l.Status = model.StatusSold
		s.listings[id] = l
	}
}

func matches(l model.Listing, f model.ListingFilter) bool {
	if f.ID != "" && l.ID != f.ID {
		return false
	}
	if f.SellerID != "" && l.SellerID != f.SellerID {
		return false
	}
	if f.Name != "" && !containsFold(l.Name, f.Name) {
		return false
	}
	if f.Category != "" && !containsFold(l.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && l.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && l.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}

func sortListings(ls []model.Listing) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.Before(ls[j].CreatedAt)
		}
		return ls[i].ID < ls[j].ID
	})
}
