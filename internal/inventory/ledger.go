package inventory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("sweet not found")
	ErrOutOfStock    = errors.New("insufficient stock")
	ErrInvalidAmount = errors.New("invalid amount")
)

// State of a reservation. Reservations live only for the duration of one
// checkout attempt and are never persisted.
type State string

const (
	StatePending   State = "PENDING"
	StateCommitted State = "COMMITTED"
	StateReleased  State = "RELEASED"
)

// Reservation is an uncommitted claim against a sweet's available quantity.
// The decrement happens at reserve time; commit and release only resolve the
// claim. State transitions are atomic so a double release cannot double-credit.
type Reservation struct {
	ID      string
	SweetID string
	Qty     int

	mu    sync.Mutex
	state State
}

func newReservation(sweetID string, qty int) *Reservation {
	return &Reservation{
		ID:      uuid.NewString(),
		SweetID: sweetID,
		Qty:     qty,
		state:   StatePending,
	}
}

func (r *Reservation) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// claim moves PENDING -> next and reports whether this caller won the
// transition. Any other starting state is a no-op.
func (r *Reservation) claim(next State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePending {
		return false
	}
	r.state = next
	return true
}

func (r *Reservation) revert() {
	r.mu.Lock()
	r.state = StatePending
	r.mu.Unlock()
}

// Ledger is the sole authority over available quantity. Reserve and Restock on
// the same sweet never lose updates; two concurrent reserves for the last unit
// cannot both succeed.
type Ledger interface {
	// Reserve atomically checks available >= qty and decrements. Returns
	// ErrOutOfStock without side effects when stock is short, ErrNotFound for
	// an unknown sweet.
	Reserve(ctx context.Context, sweetID string, qty int) (*Reservation, error)

	// Release returns a PENDING reservation's quantity to the pool. Releasing
	// a resolved reservation is a no-op.
	Release(ctx context.Context, r *Reservation) error

	// Commit finalizes a PENDING reservation. No quantity change.
	Commit(ctx context.Context, r *Reservation) error

	// Restock adds a non-negative amount and returns the new level.
	Restock(ctx context.Context, sweetID string, amount int) (int, error)
}
