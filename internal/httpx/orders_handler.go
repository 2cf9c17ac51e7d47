package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cravier/sweetshop/internal/checkout"
	"github.com/cravier/sweetshop/internal/orders"
)

type OrdersHandler struct {
	Coordinator *checkout.Coordinator
	Store       orders.Store
}

type createOrderReq struct {
	ExternalID string          `json:"external_id"`
	Items      []checkout.Line `json:"items"`
}

func (h *OrdersHandler) Register(r *chi.Mux, authn func(http.Handler) http.Handler) {
	r.Group(func(g chi.Router) {
		g.Use(authn)
		g.Post("/api/orders", h.create)
		g.Get("/api/orders", h.list)
	})
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	cart := checkout.Cart{
		ExternalID: req.ExternalID,
		UserID:     u.ID,
		UserName:   u.Name,
		Lines:      req.Items,
	}
	order, existed, err := h.Coordinator.Checkout(r.Context(), cart)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, order)
}

// list returns the caller's orders; admins see everyone's.
func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	var (
		out []orders.Order
		err error
	)
	if u.IsAdmin() {
		out, err = h.Store.ListAll(r.Context())
	} else {
		out, err = h.Store.ListFor(r.Context(), u.ID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

// writeCheckoutError maps coordinator errors onto the API contract.
// Validation and stock problems carry an actionable message; anything
// internal stays generic.
func writeCheckoutError(w http.ResponseWriter, err error) {
	var oos *checkout.OutOfStockError
	var nf *checkout.NotFoundError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrDuplicateLine):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &oos):
		writeError(w, http.StatusBadRequest, oos.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, checkout.ErrTimedOut):
		writeError(w, http.StatusServiceUnavailable, "busy, try again")
	default:
		// includes ErrCheckoutIncomplete: no internals leak to the client
		writeError(w, http.StatusInternalServerError, "checkout failed, try again")
	}
}
