// Package sqlite implements the store on SQLite via database/sql.
// Listings and sales share one database file, so FinalizeSale runs as a
// single transaction: conditional UPDATE, then INSERT, commit or roll back
// together.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"api_market/internal/model"
	"api_market/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store provides durable storage backed by a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and applies the
// schema. The connection pool is limited to a single writer: SQLite allows
// one writer at a time and a second connection would only trade blocking for
// SQLITE_BUSY errors.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) CreateListing(ctx context.Context, l *model.Listing) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (id, seller_id, name, category, price, image_key, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SellerID, l.Name, l.Category, l.Price.String(), l.ImageKey, string(l.Status), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, seller_id, name, category, price, image_key, status, created_at, updated_at
		 FROM listings WHERE id = ?`, id)
	return scanListing(row)
}

func (s *Store) ListListings(ctx context.Context, category string) ([]model.Listing, error) {
	query := `SELECT id, seller_id, name, category, price, image_key, status, created_at, updated_at
		  FROM listings`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

func (s *Store) SearchListings(ctx context.Context, f model.ListingFilter) ([]model.Listing, error) {
	query := `SELECT id, seller_id, name, category, price, image_key, status, created_at, updated_at
		  FROM listings`
	var conds []string
	var args []any

	if f.ID != "" {
		conds = append(conds, `id = ?`)
		args = append(args, f.ID)
	}
	if f.SellerID != "" {
		conds = append(conds, `seller_id = ?`)
		args = append(args, f.SellerID)
	}
	if n := strings.TrimSpace(f.Name); n != "" {
		conds = append(conds, `lower(name) LIKE '%' || lower(?) || '%'`)
		args = append(args, n)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		conds = append(conds, `lower(category) LIKE '%' || lower(?) || '%'`)
		args = append(args, c)
	}
	if f.MinPrice != nil {
		conds = append(conds, `CAST(price AS REAL) >= ?`)
		args = append(args, f.MinPrice.InexactFloat64())
	}
	if f.MaxPrice != nil {
		conds = append(conds, `CAST(price AS REAL) <= ?`)
		args = append(args, f.MaxPrice.InexactFloat64())
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

func (s *Store) UpdateListing(ctx context.Context, l *model.Listing) error {
	// Status is deliberately absent from the SET list; only FinalizeSale and
	// RelistUnrecorded may touch it.
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET name = ?, category = ?, price = ?, image_key = ?, updated_at = ?
		 WHERE id = ?`,
		l.Name, l.Category, l.Price.String(), l.ImageKey, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (s *Store) FinalizeSale(ctx context.Context, listingID, buyerID, sellerID string) (*model.SaleRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// The conditional transition. Never a read followed by a write: this
	// single statement is the serialization point for concurrent buyers.
	res, err := tx.ExecContext(ctx,
		`UPDATE listings SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND seller_id = ?`,
		string(model.StatusSold), now, listingID, string(model.StatusListed), sellerID)
	if err != nil {
		return nil, fmt.Errorf("transition listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition listing: %w", err)
	}
	if n == 0 {
		// Zero rows: distinguish a missing listing from one that lost the
		// race or belongs to a different seller. The transaction aborts
		// either way and no ledger row is written.
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM listings WHERE id = ?`, listingID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
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
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sales (id, listing_id, buyer_id, seller_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ListingID, rec.BuyerID, rec.SellerID, string(rec.Status), rec.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, store.ErrDuplicateSale
		}
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finalize: %w", err)
	}
	return &rec, nil
}

func (s *Store) LedgerFor(ctx context.Context, userID string, role model.Role) ([]model.LedgerEntry, error) {
	col := "s.buyer_id"
	if role == model.RoleSeller {
		col = "s.seller_id"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.listing_id, s.buyer_id, s.seller_id, s.status, s.created_at,
			l.name, l.category, l.price
		 FROM sales s
		 JOIN listings l ON l.id = s.listing_id
		 WHERE `+col+` = ?
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM listings l
		 WHERE status = ? AND NOT EXISTS (SELECT 1 FROM sales WHERE listing_id = l.id)
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?
		   AND NOT EXISTS (SELECT 1 FROM sales WHERE listing_id = listings.id)`,
		string(model.StatusListed), time.Now().UTC(), listingID, string(model.StatusSold))
	if err != nil {
		return fmt.Errorf("relist listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("relist listing: %w", err)
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM listings WHERE id = ?`, listingID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read listing status: %w", err)
		}
		return store.ErrConflict
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying sql.DB for direct queries. Used by tests to
// stage states the public API refuses to create.
func (s *Store) DB() *sql.DB { return s.db }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var l model.Listing
	var status, price string
	err := row.Scan(&l.ID, &l.SellerID, &l.Name, &l.Category, &price, &l.ImageKey, &status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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

func collectListings(rows *sql.Rows) ([]model.Listing, error) {
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

func oneRowOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
