package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/cravier/sweetshop/internal/catalog"
	"github.com/cravier/sweetshop/internal/events"
	"github.com/cravier/sweetshop/internal/inventory"
	kafkax "github.com/cravier/sweetshop/internal/kafka"
	"github.com/cravier/sweetshop/internal/orders"
)

// Line is one (sweet, quantity) entry of a cart. JSON names match the public
// order shape.
type Line struct {
	SweetID  string `json:"productId"`
	Quantity int    `json:"quantity"`
}

// Cart is a checkout request. ExternalID is optional; when set, resubmitting
// the same cart returns the order created the first time.
type Cart struct {
	ExternalID string
	UserID     string
	UserName   string
	Lines      []Line
}

// Catalog supplies the name/price snapshot frozen into the order.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*catalog.Sweet, error)
}

// Publisher is the slice of the kafka producer the coordinator needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Coordinator turns a cart into exactly one order, or fails with nothing
// persisted. All stock movement goes through the ledger; the order append is
// the last step so a failure before it leaves no partial state.
type Coordinator struct {
	Ledger  inventory.Ledger
	Catalog Catalog
	Orders  orders.Store

	Idem       IdemCache // optional replay fast-path
	Completed  Publisher // checkout.completed
	Incomplete Publisher // checkout.incomplete
	Service    string
	Timeout    time.Duration // per-attempt bound; zero means no bound
}

type reserved struct {
	res   *inventory.Reservation
	sweet *catalog.Sweet
}

// Checkout runs the reserve-all-then-commit protocol. existed reports that the
// cart's external id matched a previously created order.
func (c *Coordinator) Checkout(ctx context.Context, cart Cart) (o *orders.Order, existed bool, err error) {
	if err := validate(cart); err != nil {
		return nil, false, err
	}

	if cart.ExternalID != "" {
		if c.Idem != nil {
			if prev, err := c.Idem.GetOrder(ctx, cart.ExternalID); err == nil && prev != nil {
				return prev, true, nil
			}
		}
		if prev, err := c.Orders.GetByExternalID(ctx, cart.ExternalID); err == nil {
			return prev, true, nil
		} else if !errors.Is(err, orders.ErrNotFound) {
			return nil, false, err
		}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// Reserve in ascending sweet-id order so two checkouts sharing two sweets
	// can never wait on each other in a cycle.
	sorted := make([]Line, len(cart.Lines))
	copy(sorted, cart.Lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SweetID < sorted[j].SweetID })

	acquired := make([]reserved, 0, len(sorted))
	for _, ln := range sorted {
		sweet, err := c.Catalog.GetByID(ctx, ln.SweetID)
		if err != nil {
			c.rollback(acquired)
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, false, &NotFoundError{SweetID: ln.SweetID}
			}
			return nil, false, c.mapCtxErr(ctx, err)
		}

		res, err := c.Ledger.Reserve(ctx, ln.SweetID, ln.Quantity)
		if err != nil {
			c.rollback(acquired)
			switch {
			case errors.Is(err, inventory.ErrOutOfStock):
				return nil, false, &OutOfStockError{SweetID: ln.SweetID}
			case errors.Is(err, inventory.ErrNotFound):
				return nil, false, &NotFoundError{SweetID: ln.SweetID}
			default:
				return nil, false, c.mapCtxErr(ctx, err)
			}
		}
		acquired = append(acquired, reserved{res: res, sweet: sweet})
	}

	// Every line is reserved; from here on the checkout commits.
	snapshots := make(map[string]*catalog.Sweet, len(acquired))
	for _, a := range acquired {
		snapshots[a.sweet.ID] = a.sweet
		if err := c.Ledger.Commit(ctx, a.res); err != nil {
			// Commit is bookkeeping only; a failure here is a programming
			// error, not a stock inconsistency.
			log.Printf("[checkout] commit reservation %s: %v", a.res.ID, err)
		}
	}

	order := buildOrder(cart, snapshots)
	if err := c.Orders.Append(ctx, order); err != nil {
		if errors.Is(err, orders.ErrDuplicateExternalID) {
			// A concurrent submission of the same external id won the append.
			// This attempt's decrements duplicate the winner's; credit them
			// back and hand out the winner's order.
			c.refund(order)
			prev, gerr := c.Orders.GetByExternalID(ctx, cart.ExternalID)
			if gerr != nil {
				return nil, false, fmt.Errorf("fetch replayed order: %w", gerr)
			}
			return prev, true, nil
		}
		c.publishIncomplete(order, err)
		return nil, false, fmt.Errorf("%w: %v", ErrCheckoutIncomplete, err)
	}

	c.cacheIdem(ctx, cart.ExternalID, order)
	c.publishCompleted(order)
	return order, false, nil
}

func validate(cart Cart) error {
	if len(cart.Lines) == 0 {
		return ErrEmptyCart
	}
	seen := make(map[string]bool, len(cart.Lines))
	for _, ln := range cart.Lines {
		if ln.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if seen[ln.SweetID] {
			return ErrDuplicateLine
		}
		seen[ln.SweetID] = true
	}
	return nil
}

// rollback releases in reverse acquisition order. Release is idempotent, so a
// reservation that already resolved is skipped inside the ledger.
func (c *Coordinator) rollback(acquired []reserved) {
	for i := len(acquired) - 1; i >= 0; i-- {
		// Background context: the attempt's deadline may already be gone, and
		// the credit must happen regardless.
		if err := c.Ledger.Release(context.Background(), acquired[i].res); err != nil {
			log.Printf("[checkout] release %s qty=%d: %v",
				acquired[i].res.SweetID, acquired[i].res.Qty, err)
		}
	}
}

func (c *Coordinator) mapCtxErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return ErrTimedOut
	}
	return err
}

func buildOrder(cart Cart, snapshots map[string]*catalog.Sweet) *orders.Order {
	items := make([]orders.LineItem, 0, len(cart.Lines))
	var total int64
	for _, ln := range cart.Lines { // original cart order, not lock order
		s := snapshots[ln.SweetID]
		items = append(items, orders.LineItem{
			SweetID:        s.ID,
			SweetName:      s.Name,
			Quantity:       ln.Quantity,
			UnitPriceCents: s.PriceCents,
		})
		total += int64(ln.Quantity) * s.PriceCents
	}
	return &orders.Order{
		ID:         uuid.NewString(),
		ExternalID: cart.ExternalID,
		UserID:     cart.UserID,
		UserName:   cart.UserName,
		Items:      items,
		TotalCents: total,
		Status:     orders.StatusCompleted,
		CreatedAt:  time.Now().UTC(),
	}
}

// refund credits a lost attempt's decrements back through the ledger. The
// reservations are already committed, so release cannot carry the credit.
func (c *Coordinator) refund(o *orders.Order) {
	for _, it := range o.Items {
		if _, err := c.Ledger.Restock(context.Background(), it.SweetID, it.Quantity); err != nil {
			log.Printf("[checkout] refund %s qty=%d: %v", it.SweetID, it.Quantity, err)
		}
	}
}

func (c *Coordinator) cacheIdem(ctx context.Context, externalID string, o *orders.Order) {
	if c.Idem == nil || externalID == "" {
		return
	}
	if err := c.Idem.PutOrder(ctx, externalID, o); err != nil {
		log.Printf("[checkout] cache order %s: %v", o.ID, err)
	}
}

func (c *Coordinator) publishCompleted(o *orders.Order) {
	if c.Completed == nil {
		return
	}
	ev := envelope(events.EventCheckoutCompleted, c.Service, o.ID)
	ev.Payload = kafkax.MustMarshal(events.CheckoutCompletedPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Lines:      lineQtys(o),
		TotalCents: o.TotalCents,
	})
	c.Completed.Publish(events.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (c *Coordinator) publishIncomplete(o *orders.Order, cause error) {
	log.Printf("[checkout] INCOMPLETE order=%s user=%s total=%d: %v", o.ID, o.UserID, o.TotalCents, cause)
	if c.Incomplete == nil {
		return
	}
	ev := envelope(events.EventCheckoutIncomplete, c.Service, o.ID)
	ev.Payload = kafkax.MustMarshal(events.CheckoutIncompletePayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		UserName:   o.UserName,
		Lines:      lineQtys(o),
		TotalCents: o.TotalCents,
		Reason:     cause.Error(),
	})
	c.Incomplete.Publish(events.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func envelope(eventType, producer, orderID string) events.Envelope {
	return events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
	}
}

func lineQtys(o *orders.Order) []events.LineQty {
	out := make([]events.LineQty, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, events.LineQty{SweetID: it.SweetID, Qty: it.Quantity})
	}
	return out
}
