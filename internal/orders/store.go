package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrDuplicateExternalID reports that another order already holds the
	// external id, i.e. a concurrent submission won the append.
	ErrDuplicateExternalID = errors.New("external id already used")
)

// Store is append-only: no update or delete exists.
type Store interface {
	Append(ctx context.Context, o *Order) error
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	ListFor(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}

type PGStore struct{ db *pgxpool.Pool }

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Append(ctx context.Context, o *Order) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("append order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var extID any
	if o.ExternalID != "" {
		extID = o.ExternalID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, external_id, user_id, user_name, total_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, o.ID, extID, o.UserID, o.UserName, o.TotalCents, o.Status, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateExternalID
		}
		return fmt.Errorf("append order: %w", err)
	}

	for i, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, sweet_id, sweet_name, quantity, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, o.ID, i, it.SweetID, it.SweetName, it.Quantity, it.UnitPriceCents)
		if err != nil {
			return fmt.Errorf("append order items: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(external_id,''), user_id, user_name, total_cents, status, created_at
		FROM orders WHERE external_id=$1
	`, externalID)
	var o Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.UserName, &o.TotalCents, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := s.loadItems(ctx, []*Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PGStore) ListFor(ctx context.Context, userID string) ([]Order, error) {
	return s.list(ctx, `WHERE user_id=$1`, userID)
}

func (s *PGStore) ListAll(ctx context.Context) ([]Order, error) {
	return s.list(ctx, ``)
}

func (s *PGStore) list(ctx context.Context, where string, args ...any) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(external_id,''), user_id, user_name, total_cents, status, created_at
		FROM orders `+where+` ORDER BY created_at DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.UserName, &o.TotalCents, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*Order, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := s.loadItems(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) loadItems(ctx context.Context, os []*Order) error {
	if len(os) == 0 {
		return nil
	}
	ids := make([]string, 0, len(os))
	byID := make(map[string]*Order, len(os))
	for _, o := range os {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := s.db.Query(ctx, `
		SELECT order_id, sweet_id, sweet_name, quantity, price_cents
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var it LineItem
		if err := rows.Scan(&orderID, &it.SweetID, &it.SweetName, &it.Quantity, &it.UnitPriceCents); err != nil {
			return err
		}
		if o := byID[orderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}
