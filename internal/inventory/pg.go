package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger keeps the counter in the sweets table. The conditional single-row
// UPDATE is what makes Reserve linearizable per sweet: the row lock serializes
// concurrent writers and the quantity >= $2 guard rejects the loser of a race
// for the last units.
type PGLedger struct {
	DB *pgxpool.Pool
}

func NewPGLedger(db *pgxpool.Pool) *PGLedger { return &PGLedger{DB: db} }

func (l *PGLedger) Reserve(ctx context.Context, sweetID string, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidAmount
	}
	tag, err := l.DB.Exec(ctx, `
		UPDATE sweets SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
	`, sweetID, qty)
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", sweetID, err)
	}
	if tag.RowsAffected() == 1 {
		return newReservation(sweetID, qty), nil
	}

	// Rejected: either the sweet does not exist or stock is short.
	var have int
	err = l.DB.QueryRow(ctx, `SELECT quantity FROM sweets WHERE id = $1`, sweetID).Scan(&have)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", sweetID, err)
	}
	return nil, ErrOutOfStock
}

func (l *PGLedger) Release(ctx context.Context, r *Reservation) error {
	if !r.claim(StateReleased) {
		return nil // already resolved
	}
	_, err := l.DB.Exec(ctx, `
		UPDATE sweets SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1
	`, r.SweetID, r.Qty)
	if err != nil {
		// Keep the reservation releasable so the caller may retry.
		r.revert()
		return fmt.Errorf("release %s: %w", r.SweetID, err)
	}
	return nil
}

func (l *PGLedger) Commit(ctx context.Context, r *Reservation) error {
	r.claim(StateCommitted)
	return nil
}

func (l *PGLedger) Restock(ctx context.Context, sweetID string, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	var level int
	err := l.DB.QueryRow(ctx, `
		UPDATE sweets SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING quantity
	`, sweetID, amount).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("restock %s: %w", sweetID, err)
	}
	return level, nil
}
