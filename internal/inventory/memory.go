package inventory

import (
	"context"
	"sync"
)

// MemoryLedger holds quantities in a mutex-guarded map. It backs the test
// bench and any deployment that does not need durable stock.
type MemoryLedger struct {
	mu     sync.Mutex
	stocks map[string]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stocks: make(map[string]int)}
}

// SetStock sets the level for a sweet (initialization only).
func (l *MemoryLedger) SetStock(sweetID string, qty int) {
	l.mu.Lock()
	l.stocks[sweetID] = qty
	l.mu.Unlock()
}

// Quantity returns the current level, or -1 for an unknown sweet.
func (l *MemoryLedger) Quantity(sweetID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if q, ok := l.stocks[sweetID]; ok {
		return q
	}
	return -1
}

func (l *MemoryLedger) Reserve(ctx context.Context, sweetID string, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	have, ok := l.stocks[sweetID]
	if !ok {
		return nil, ErrNotFound
	}
	if have < qty {
		return nil, ErrOutOfStock
	}
	l.stocks[sweetID] = have - qty
	return newReservation(sweetID, qty), nil
}

func (l *MemoryLedger) Release(ctx context.Context, r *Reservation) error {
	if !r.claim(StateReleased) {
		return nil
	}
	l.mu.Lock()
	l.stocks[r.SweetID] += r.Qty
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Commit(ctx context.Context, r *Reservation) error {
	r.claim(StateCommitted)
	return nil
}

func (l *MemoryLedger) Restock(ctx context.Context, sweetID string, amount int) (int, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	have, ok := l.stocks[sweetID]
	if !ok {
		return 0, ErrNotFound
	}
	l.stocks[sweetID] = have + amount
	return have + amount, nil
}
