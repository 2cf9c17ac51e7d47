package checkout

import (
	"errors"
	"fmt"
)

// Validation errors: rejected before the ledger is touched.
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("line quantity must be at least 1")
	ErrDuplicateLine   = errors.New("duplicate sweet in cart")
)

// ErrTimedOut means the checkout hit its deadline while stock was contended.
// Nothing was persisted; the caller may retry the same cart.
var ErrTimedOut = errors.New("checkout timed out, retry")

// ErrCheckoutIncomplete means stock was decremented but the order record could
// not be written. Recovery is operational: the attempt is published for the
// reconciler, never silently dropped.
var ErrCheckoutIncomplete = errors.New("checkout incomplete")

// OutOfStockError names the first line that could not be reserved.
type OutOfStockError struct {
	SweetID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("sweet %s is out of stock", e.SweetID)
}

// NotFoundError names a cart line whose sweet does not exist.
type NotFoundError struct {
	SweetID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sweet %s not found", e.SweetID)
}
