// Package postgres implements the store on PostgreSQL via pgx. It is the
// production driver: the conditional listed->sold transition and the ledger
// insert run inside one pgx transaction, serialized by the database's own
// row locking.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"api_market/internal/model"
	"api_market/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store provides durable storage backed by a PostgreSQL database.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables and indexes if they do not exist. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) CreateListing(ctx context.Context, l *model.Listing) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (id, seller_id, name, category, price, image_key, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.SellerID, l.Name, l.Category, l.Price.String(), l.ImageKey, string(l.Status), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, seller_id, name, category, price::text, image_key, status, created_at, updated_at
		 FROM listings WHERE id = $1`, id)
	return scanListing(row)
}

func (s *Store) ListListings(ctx context.Context, category string) ([]model.Listing, error) {
	query := `SELECT id, seller_id, name, category, price::text, image_key, status, created_at, updated_at
		  FROM listings`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

func (s *Store) SearchListings(ctx context.Context, f model.ListingFilter) ([]model.Listing, error) {
	query := `SELECT id, seller_id, name, category, price::text, image_key, status, created_at, updated_at
		  FROM listings`
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ID != "" {
		conds = append(conds, `id = `+arg(f.ID))
	}
	if f.SellerID != "" {
		conds = append(conds, `seller_id = `+arg(f.SellerID))
	}
	if n := strings.TrimSpace(f.Name); n != "" {
		conds = append(conds, `name ILIKE '%' || `+arg(n)+` || '%'`)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		conds = append(conds, `category ILIKE '%' || `+arg(c)+` || '%'`)
	}
	if f.MinPrice != nil {
		conds = append(conds, `price >= `+arg(f.MinPrice.String())+`::numeric`)
	}
	if f.MaxPrice != nil {
		conds = append(conds, `price <= `+arg(f.MaxPrice.String())+`::numeric`)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

func (s *Store) UpdateListing(ctx context.Context, l *model.Listing) error {
	// Status is deliberately absent from the SET list; only FinalizeSale and
	// RelistUnrecorded may touch it.
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET name = $1, category = $2, price = $3, image_key = $4, updated_at = $5
		 WHERE id = $6`,
		l.Name, l.Category, l.Price.String(), l.ImageKey, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FinalizeSale(ctx context.Context, listingID, buyerID, sellerID string) (*model.SaleRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	// The conditional transition. Never a read followed by a write: this
	// single statement is the serialization point for concurrent buyers.
	tag, err := tx.Exec(ctx,
		`UPDATE listings SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4 AND seller_id = $5`,
		string(model.StatusSold), now, listingID, string(model.StatusListed), sellerID)
	if err != nil {
		return nil, fmt.Errorf("transition listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM listings WHERE id = $1`, listingID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("read listing status: %w", err)
		}
		return nil, store.ErrConflict
	}

	rec := model.SaleRecord{
		ID:        uuid.NewString(),
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Status:    model.SaleCompleted,
		CreatedAt: now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO sales (id, listing_id, buyer_id, seller_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.ListingID, rec.BuyerID, rec.SellerID, string(rec.Status), rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrDuplicateSale
		}
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit finalize: %w", err)
	}
	return &rec, nil
}

func (s *Store) LedgerFor(ctx context.Context, userID string, role model.Role) ([]model.LedgerEntry, error) {
	col := "s.buyer_id"
	if role == model.RoleSeller {
		col = "s.seller_id"
	}
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.listing_id, s.buyer_id, s.seller_id, s.status, s.created_at,
			l.name, l.category, l.price::text
		 FROM sales s
		 JOIN listings l ON l.id = s.listing_id
		 WHERE `+col+` = $1
		 ORDER BY s.created_at DESC, s.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	out := make([]model.LedgerEntry, 0)
	for rows.Next() {
		var e model.LedgerEntry
		var saleStatus, price string
		if err := rows.Scan(&e.ID, &e.ListingID, &e.BuyerID, &e.SellerID, &saleStatus, &e.CreatedAt,
			&e.ListingName, &e.Category, &price); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Status = model.SaleStatus(saleStatus)
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse ledger price: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SoldWithoutSale(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM listings l
		 WHERE status = $1 AND NOT EXISTS (SELECT 1 FROM sales WHERE listing_id = l.id)
		 ORDER BY id`, string(model.StatusSold))
	if err != nil {
		return nil, fmt.Errorf("query orphaned listings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan listing id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) RelistUnrecorded(ctx context.Context, listingID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4
		   AND NOT EXISTS (SELECT 1 FROM sales WHERE listing_id = listings.id)`,
		string(model.StatusListed), time.Now().UTC(), listingID, string(model.StatusSold))
	if err != nil {
		return fmt.Errorf("relist listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx, `SELECT status FROM listings WHERE id = $1`, listingID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read listing status: %w", err)
		}
		return store.ErrConflict
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var status, price string
	err := row.Scan(&l.ID, &l.SellerID, &l.Name, &l.Category, &price, &l.ImageKey, &status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	l.Status = model.ListingStatus(status)
	if l.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse listing price: %w", err)
	}
	return &l, nil
}

func collectListings(rows pgx.Rows) ([]model.Listing, error) {
	out := make([]model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
