package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/cravier/sweetshop/internal/events"
	kafkax "github.com/cravier/sweetshop/internal/kafka"
	"github.com/cravier/sweetshop/internal/redisx"
)

// Service records checkout.incomplete events so an operator can reconcile
// stock that was decremented for an order that never got written. It never
// re-credits stock itself.
type Service struct {
	Store       IncidentStore
	Redis       *redis.Client
	ServiceName string
}

func (s *Service) HandleCheckoutIncomplete(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType != events.EventCheckoutIncomplete {
		return nil // ignore
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "reconciler", env.EventID)
	if s.Redis != nil {
		if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[events.CheckoutIncompletePayload](env.Payload)
	if err != nil {
		return err
	}

	if err := s.Store.Record(ctx, env.EventID, p, env.Payload); err != nil {
		return err
	}
	if s.Redis != nil {
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	log.Printf("[reconciler] incident recorded order=%s user=%s reason=%q", p.OrderID, p.UserID, p.Reason)
	return nil
}
