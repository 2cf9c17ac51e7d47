package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/cravier/sweetshop/internal/catalog"
	"github.com/cravier/sweetshop/internal/checkout"
	"github.com/cravier/sweetshop/internal/events"
	"github.com/cravier/sweetshop/internal/inventory"
	kafkax "github.com/cravier/sweetshop/internal/kafka"
)

type SweetsHandler struct {
	Repo        catalog.Repository
	Ledger      inventory.Ledger
	Coordinator *checkout.Coordinator
	Restocked   checkout.Publisher // optional stock.restocked feed
	Service     string
}

type sweetCreateReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int    `json:"quantity"`
}

type sweetUpdateReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	PriceCents  *int64 `json:"price_cents"`
	// quantity is deliberately absent: stock changes only via restock/purchase
}

type restockReq struct {
	Amount int `json:"amount"`
}

type purchaseReq struct {
	Quantity int `json:"quantity"`
}

func (h *SweetsHandler) Register(r *chi.Mux, authn, admin func(http.Handler) http.Handler) {
	r.Get("/api/sweets", h.list)
	r.Get("/api/sweets/search", h.search)
	r.Get("/api/sweets/{id}", h.get)

	r.Group(func(g chi.Router) {
		g.Use(authn)
		g.Post("/api/sweets/{id}/purchase", h.purchase)

		g.Group(func(a chi.Router) {
			a.Use(admin)
			a.Post("/api/sweets", h.create)
			a.Put("/api/sweets/{id}", h.update)
			a.Delete("/api/sweets/{id}", h.delete)
			a.Post("/api/sweets/{id}/restock", h.restock)
		})
	})
}

func (h *SweetsHandler) list(w http.ResponseWriter, r *http.Request) {
	sweets, err := h.Repo.List(r.Context(), catalog.Query{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if sweets == nil {
		sweets = []catalog.Sweet{}
	}
	writeJSON(w, http.StatusOK, sweets)
}

func (h *SweetsHandler) search(w http.ResponseWriter, r *http.Request) {
	q := catalog.Query{
		Name:          r.URL.Query().Get("search"),
		MinPriceCents: queryInt64(r, "min_price"),
		MaxPriceCents: queryInt64(r, "max_price"),
	}
	if c := r.URL.Query().Get("category"); c != "" && c != "all" {
		q.Category = c
	}
	sweets, err := h.Repo.List(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if sweets == nil {
		sweets = []catalog.Sweet{}
	}
	writeJSON(w, http.StatusOK, sweets)
}

func (h *SweetsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.Repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "sweet not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SweetsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req sweetCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" || !catalog.ValidCategory(req.Category) || req.PriceCents < 0 || req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "invalid sweet")
		return
	}
	s := &catalog.Sweet{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
		PriceCents:  req.PriceCents,
		Quantity:    req.Quantity,
	}
	if err := h.Repo.Create(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	created, err := h.Repo.GetByID(r.Context(), s.ID)
	if err != nil {
		created = s
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *SweetsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req sweetUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Category != "" && !catalog.ValidCategory(req.Category) {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}
	s := &catalog.Sweet{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
	}
	updatePrice := req.PriceCents != nil
	if updatePrice {
		if *req.PriceCents < 0 {
			writeError(w, http.StatusBadRequest, "invalid price")
			return
		}
		s.PriceCents = *req.PriceCents
	}
	if err := h.Repo.Update(r.Context(), s, updatePrice); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sweet not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	out, err := h.Repo.GetByID(r.Context(), s.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "sweet not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SweetsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Repo.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "sweet not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "sweet removed"})
}

// purchase is a one-line checkout: the whole quantity reserves atomically or
// not at all, unlike a loop of single decrements.
func (h *SweetsHandler) purchase(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	var req purchaseReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart := checkout.Cart{
		UserID:   u.ID,
		UserName: u.Name,
		Lines:    []checkout.Line{{SweetID: chi.URLParam(r, "id"), Quantity: req.Quantity}},
	}
	if _, _, err := h.Coordinator.Checkout(r.Context(), cart); err != nil {
		writeCheckoutError(w, err)
		return
	}
	s, err := h.Repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "sweet not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SweetsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must be non-negative")
		return
	}
	id := chi.URLParam(r, "id")
	level, err := h.Ledger.Restock(r.Context(), id, req.Amount)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sweet not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "restock failed")
		return
	}
	h.publishRestocked(id, req.Amount, level)

	s, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "sweet not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SweetsHandler) publishRestocked(sweetID string, amount, level int) {
	if h.Restocked == nil {
		return
	}
	ev := events.Envelope{
		EventID:      uuid.NewString(),
		EventType:    events.EventStockRestocked,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     h.Service,
	}
	ev.Payload = kafkax.MustMarshal(events.StockRestockedPayload{
		SweetID: sweetID, Amount: amount, NewLevel: level,
	})
	h.Restocked.Publish([]byte(sweetID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func queryInt64(r *http.Request, key string) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
