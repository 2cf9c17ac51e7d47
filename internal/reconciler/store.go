package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cravier/sweetshop/internal/events"
)

type IncidentStore interface {
	Record(ctx context.Context, eventID string, p events.CheckoutIncompletePayload, raw json.RawMessage) error
}

type PGIncidentStore struct{ DB *pgxpool.Pool }

func NewPGIncidentStore(db *pgxpool.Pool) *PGIncidentStore { return &PGIncidentStore{DB: db} }

// Record is idempotent on event id; redelivered events land once.
func (s *PGIncidentStore) Record(ctx context.Context, eventID string, p events.CheckoutIncompletePayload, raw json.RawMessage) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO checkout_incidents (event_id, order_id, user_id, reason, payload)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, p.OrderID, p.UserID, p.Reason, raw)
	if err != nil {
		return fmt.Errorf("record incident: %w", err)
	}
	return nil
}
