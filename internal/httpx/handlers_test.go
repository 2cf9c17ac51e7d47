package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cravier/sweetshop/internal/auth"
	"github.com/cravier/sweetshop/internal/catalog"
	"github.com/cravier/sweetshop/internal/checkout"
	"github.com/cravier/sweetshop/internal/inventory"
	"github.com/cravier/sweetshop/internal/orders"
	"github.com/cravier/sweetshop/internal/users"
)

// ----- fakes -----

// fakeCatalog keeps sweets in memory and reports live quantity from the
// ledger, mirroring how the SQL repo and ledger share the sweets table.
type fakeCatalog struct {
	mu     sync.Mutex
	sweets map[string]catalog.Sweet
	ledger *inventory.MemoryLedger
}

func newFakeCatalog(l *inventory.MemoryLedger) *fakeCatalog {
	return &fakeCatalog{sweets: make(map[string]catalog.Sweet), ledger: l}
}

func (f *fakeCatalog) Create(ctx context.Context, s *catalog.Sweet) error {
	f.mu.Lock()
	f.sweets[s.ID] = *s
	f.mu.Unlock()
	f.ledger.SetStock(s.ID, s.Quantity)
	return nil
}

func (f *fakeCatalog) GetByID(ctx context.Context, id string) (*catalog.Sweet, error) {
	f.mu.Lock()
	s, ok := f.sweets[id]
	f.mu.Unlock()
	if !ok {
		return nil, catalog.ErrNotFound
	}
	if q := f.ledger.Quantity(id); q >= 0 {
		s.Quantity = q
	}
	return &s, nil
}

func (f *fakeCatalog) List(ctx context.Context, q catalog.Query) ([]catalog.Sweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Sweet
	for _, s := range f.sweets {
		if q.Category != "" && s.Category != q.Category {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeCatalog) Update(ctx context.Context, s *catalog.Sweet, updatePrice bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.sweets[s.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	if s.Name != "" {
		cur.Name = s.Name
	}
	if s.Category != "" {
		cur.Category = s.Category
	}
	if updatePrice {
		cur.PriceCents = s.PriceCents
	}
	f.sweets[s.ID] = cur
	return nil
}

func (f *fakeCatalog) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sweets[id]; !ok {
		return false, nil
	}
	delete(f.sweets, id)
	return true, nil
}

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]*users.User
	byEmail map[string]*users.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*users.User), byEmail: make(map[string]*users.User)}
}

func (f *fakeUsers) Create(ctx context.Context, u *users.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[u.Email]; ok {
		return users.ErrAlreadyExist
	}
	cp := *u
	f.byID[u.ID] = &cp
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

type fakeOrders struct {
	mu    sync.Mutex
	byID  map[string]*orders.Order
	byExt map[string]*orders.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: make(map[string]*orders.Order), byExt: make(map[string]*orders.Order)}
}

func (f *fakeOrders) Append(ctx context.Context, o *orders.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.byID[o.ID] = &cp
	if o.ExternalID != "" {
		f.byExt[o.ExternalID] = &cp
	}
	return nil
}

func (f *fakeOrders) GetByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.byExt[externalID]; ok {
		return o, nil
	}
	return nil, orders.ErrNotFound
}

func (f *fakeOrders) ListFor(ctx context.Context, userID string) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []orders.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListAll(ctx context.Context) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []orders.Order
	for _, o := range f.byID {
		out = append(out, *o)
	}
	return out, nil
}

// ----- harness -----

type api struct {
	srv    http.Handler
	ledger *inventory.MemoryLedger
	cat    *fakeCatalog
	ords   *fakeOrders
	auth   *auth.Service
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ledger := inventory.NewMemoryLedger()
	cat := newFakeCatalog(ledger)
	ords := newFakeOrders()
	usersRepo := newFakeUsers()

	tokens := auth.NewTokens("test-secret", time.Hour)
	authSvc := &auth.Service{Repo: usersRepo, Tokens: tokens, AdminEmail: "admin@sweetshop.com"}

	coord := &checkout.Coordinator{
		Ledger:  ledger,
		Catalog: cat,
		Orders:  ords,
		Service: "test",
		Timeout: 2 * time.Second,
	}

	r := NewRouter()
	(&AuthHandler{Auth: authSvc}).Register(r)
	authn := Authenticator(tokens, usersRepo)
	(&SweetsHandler{Repo: cat, Ledger: ledger, Coordinator: coord, Service: "test"}).Register(r, authn, RequireAdmin)
	(&OrdersHandler{Coordinator: coord, Store: ords}).Register(r, authn)

	return &api{srv: r, ledger: ledger, cat: cat, ords: ords, auth: authSvc}
}

func (a *api) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.srv.ServeHTTP(w, req)
	return w
}

func (a *api) registerUser(t *testing.T, name, email string) string {
	t.Helper()
	sess, err := a.auth.Register(context.Background(), name, email, "pw")
	require.NoError(t, err)
	return sess.Token
}

func (a *api) addSweet(t *testing.T, name string, priceCents int64, qty int) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, a.cat.Create(context.Background(), &catalog.Sweet{
		ID: id, Name: name, Category: catalog.CategoryCandies, PriceCents: priceCents, Quantity: qty,
	}))
	return id
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// ----- auth endpoints -----

func TestAPI_RegisterAndLogin(t *testing.T) {
	a := newAPI(t)

	w := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decode[map[string]json.RawMessage](t, w)
	assert.Contains(t, sess, "token")
	assert.Contains(t, sess, "user")

	w = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "pw",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_RegisterDuplicate(t *testing.T) {
	a := newAPI(t)
	a.registerUser(t, "Ada", "ada@example.com")

	w := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada2", "email": "ada@example.com", "password": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ----- access control -----

func TestAPI_PublicListNoToken(t *testing.T) {
	a := newAPI(t)
	a.addSweet(t, "Fudge", 250, 3)

	w := a.do(t, http.MethodGet, "/api/sweets", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]catalog.Sweet](t, w)
	assert.Len(t, list, 1)
}

func TestAPI_ProtectedNeedsToken(t *testing.T) {
	a := newAPI(t)
	id := a.addSweet(t, "Fudge", 250, 3)

	w := a.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/api/orders", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_AdminOnlyMutations(t *testing.T) {
	a := newAPI(t)
	customer := a.registerUser(t, "Ada", "ada@example.com")
	admin := a.registerUser(t, "Root", "admin@sweetshop.com")

	body := map[string]any{"name": "Fudge", "category": catalog.CategoryCandies, "price_cents": 250, "quantity": 5}

	w := a.do(t, http.MethodPost, "/api/sweets", customer, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/api/sweets", admin, body)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[catalog.Sweet](t, w)
	assert.Equal(t, "Fudge", created.Name)

	w = a.do(t, http.MethodDelete, "/api/sweets/"+created.ID, customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// ----- catalog -----

func TestAPI_CreateSweetValidation(t *testing.T) {
	a := newAPI(t)
	admin := a.registerUser(t, "Root", "admin@sweetshop.com")

	for _, body := range []map[string]any{
		{"name": "", "category": catalog.CategoryCandies, "price_cents": 1, "quantity": 1},
		{"name": "X", "category": "weird", "price_cents": 1, "quantity": 1},
		{"name": "X", "category": catalog.CategoryCandies, "price_cents": -1, "quantity": 1},
		{"name": "X", "category": catalog.CategoryCandies, "price_cents": 1, "quantity": -1},
	} {
		w := a.do(t, http.MethodPost, "/api/sweets", admin, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestAPI_UpdateNeverTouchesQuantity(t *testing.T) {
	a := newAPI(t)
	admin := a.registerUser(t, "Root", "admin@sweetshop.com")
	id := a.addSweet(t, "Fudge", 250, 7)

	// a quantity field in the payload is ignored by the contract
	w := a.do(t, http.MethodPut, "/api/sweets/"+id, admin, map[string]any{
		"name": "Deluxe Fudge", "price_cents": 300, "quantity": 999,
	})
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[catalog.Sweet](t, w)
	assert.Equal(t, "Deluxe Fudge", s.Name)
	assert.Equal(t, int64(300), s.PriceCents)
	assert.Equal(t, 7, s.Quantity)
}

// ----- purchase / restock -----

func TestAPI_PurchaseFlow(t *testing.T) {
	a := newAPI(t)
	tok := a.registerUser(t, "Ada", "ada@example.com")
	id := a.addSweet(t, "Fudge", 250, 2)

	w := a.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[catalog.Sweet](t, w)
	assert.Equal(t, 1, s.Quantity)

	// buying more than remains
	w = a.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", tok, map[string]int{"quantity": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, a.ledger.Quantity(id))
}

func TestAPI_PurchaseUnknownSweet(t *testing.T) {
	a := newAPI(t)
	tok := a.registerUser(t, "Ada", "ada@example.com")

	w := a.do(t, http.MethodPost, "/api/sweets/"+uuid.NewString()+"/purchase", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_Restock(t *testing.T) {
	a := newAPI(t)
	admin := a.registerUser(t, "Root", "admin@sweetshop.com")
	customer := a.registerUser(t, "Ada", "ada@example.com")
	id := a.addSweet(t, "Fudge", 250, 1)

	w := a.do(t, http.MethodPost, "/api/sweets/"+id+"/restock", customer, map[string]int{"amount": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/api/sweets/"+id+"/restock", admin, map[string]int{"amount": 5})
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[catalog.Sweet](t, w)
	assert.Equal(t, 6, s.Quantity)
}

// ----- orders -----

func TestAPI_CreateOrder(t *testing.T) {
	a := newAPI(t)
	tok := a.registerUser(t, "Ada", "ada@example.com")
	id1 := a.addSweet(t, "Fudge", 250, 10)
	id2 := a.addSweet(t, "Toffee", 120, 10)

	w := a.do(t, http.MethodPost, "/api/orders", tok, map[string]any{
		"items": []map[string]any{
			{"productId": id1, "quantity": 2},
			{"productId": id2, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var o orders.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, int64(620), o.TotalCents)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, 8, a.ledger.Quantity(id1))
}

func TestAPI_CreateOrderWireShape(t *testing.T) {
	a := newAPI(t)
	tok := a.registerUser(t, "Ada", "ada@example.com")
	id := a.addSweet(t, "Fudge", 250, 10)

	w := a.do(t, http.MethodPost, "/api/orders", tok, map[string]any{
		"items": []map[string]any{{"productId": id, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	raw := decode[map[string]json.RawMessage](t, w)
	for _, key := range []string{"id", "userId", "userName", "items", "totalPrice", "status", "createdAt"} {
		assert.Contains(t, raw, key, "missing %s", key)
	}
	var items []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["items"], &items))
	require.Len(t, items, 1)
	for _, key := range []string{"productId", "productName", "quantity", "unitPrice"} {
		assert.Contains(t, items[0], key, "missing item %s", key)
	}
}

func TestAPI_CreateOrderIdempotent(t *testing.T) {
	a := newAPI(t)
	tok := a.registerUser(t, "Ada", "ada@example.com")
	id := a.addSweet(t, "Fudge", 250, 10)

	body := map[string]any{
		"external_id": "req-1",
		"items":       []map[string]any{{"productId": id, "quantity": 3}},
	}

	w := a.do(t, http.MethodPost, "/api/orders", tok, body)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[map[string]json.RawMessage](t, w)

	w = a.do(t, http.MethodPost, "/api/orders", tok, body)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[map[string]json.RawMessage](t, w)

	assert.Equal(t, string(first["id"]), string(second["id"]))
	assert.Equal(t, 7, a.ledger.Quantity(id))
}

func TestAPI_CreateOrderValidation(t *testing.T) {
	a := newAPI(t)
	tok := a.registerUser(t, "Ada", "ada@example.com")
	id := a.addSweet(t, "Fudge", 250, 10)

	w := a.do(t, http.MethodPost, "/api/orders", tok, map[string]any{"items": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/orders", tok, map[string]any{
		"items": []map[string]any{{"productId": id, "quantity": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ListOrdersScoped(t *testing.T) {
	a := newAPI(t)
	ada := a.registerUser(t, "Ada", "ada@example.com")
	bea := a.registerUser(t, "Bea", "bea@example.com")
	admin := a.registerUser(t, "Root", "admin@sweetshop.com")
	id := a.addSweet(t, "Fudge", 250, 10)

	order := func(tok string) {
		w := a.do(t, http.MethodPost, "/api/orders", tok, map[string]any{
			"items": []map[string]any{{"productId": id, "quantity": 1}},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	order(ada)
	order(ada)
	order(bea)

	w := a.do(t, http.MethodGet, "/api/orders", ada, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orders.Order](t, w), 2)

	w = a.do(t, http.MethodGet, "/api/orders", bea, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orders.Order](t, w), 1)

	w = a.do(t, http.MethodGet, "/api/orders", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orders.Order](t, w), 3)
}

func TestAPI_SearchByCategory(t *testing.T) {
	a := newAPI(t)
	a.addSweet(t, "Fudge", 250, 1)
	require.NoError(t, a.cat.Create(context.Background(), &catalog.Sweet{
		ID: uuid.NewString(), Name: "Eclair", Category: catalog.CategoryPastries, PriceCents: 400, Quantity: 2,
	}))

	w := a.do(t, http.MethodGet, fmt.Sprintf("/api/sweets/search?category=%s", catalog.CategoryPastries), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]catalog.Sweet](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "Eclair", list[0].Name)

	w = a.do(t, http.MethodGet, "/api/sweets/search?category=all", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]catalog.Sweet](t, w), 2)
}
