package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feastly/teamcart/internal/domain/menu"
	"github.com/feastly/teamcart/internal/domain/teamcart"
	"github.com/feastly/teamcart/internal/events"
	"github.com/feastly/teamcart/internal/payment"
	"github.com/feastly/teamcart/internal/service"
)

// --- In-memory backends ---

type memCartRepo struct {
	carts map[string]*teamcart.TeamCart
}

func (r *memCartRepo) Create(_ context.Context, c *teamcart.TeamCart) error {
	r.carts[c.ID] = c
	return nil
}

func (r *memCartRepo) GetByID(_ context.Context, id string) (*teamcart.TeamCart, error) {
	c, ok := r.carts[id]
	if !ok {
		return nil, teamcart.ErrCartNotFound
	}
	return c, nil
}

func (r *memCartRepo) Update(_ context.Context, c *teamcart.TeamCart) error {
	r.carts[c.ID] = c
	return nil
}

func (r *memCartRepo) GetExpiringCarts(_ context.Context, _ time.Time, _ int) ([]*teamcart.TeamCart, error) {
	return nil, nil
}

type memMenuRepo struct {
	items map[string]*menu.Item
}

func (r *memMenuRepo) GetByID(_ context.Context, id string) (*menu.Item, error) {
	it, ok := r.items[id]
	if !ok {
		return nil, menu.ErrNotFound
	}
	return it, nil
}

type memViewStore struct {
	vms map[string]*teamcart.ViewModel
}

func (s *memViewStore) GetViewModel(_ context.Context, cartID string) (*teamcart.ViewModel, error) {
	return s.vms[cartID], nil
}

func (s *memViewStore) SetViewModel(_ context.Context, vm *teamcart.ViewModel) error {
	s.vms[vm.CartID] = vm
	return nil
}

func (s *memViewStore) DeleteViewModel(_ context.Context, cartID string) error {
	delete(s.vms, cartID)
	return nil
}

type memOutbox struct{}

func (memOutbox) Append(_ context.Context, _ []events.Envelope) error { return nil }
func (memOutbox) FetchUndispatched(_ context.Context, _ int) ([]events.Envelope, error) {
	return nil, nil
}
func (memOutbox) MarkDispatched(_ context.Context, _ string) error { return nil }

type passthroughUOW struct{}

func (passthroughUOW) ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- Test server ---

var testWebhookSecret = []byte("whsec_test")

func newTestServer(t *testing.T) (http.Handler, *memCartRepo) {
	t.Helper()
	repo := &memCartRepo{carts: make(map[string]*teamcart.TeamCart)}
	menus := &memMenuRepo{items: map[string]*menu.Item{
		"menu-1": {
			ID:           "menu-1",
			RestaurantID: "rest-1",
			CategoryID:   "cat-1",
			Name:         "Pad Thai",
			BasePrice:    decimal.RequireFromString("10.00"),
			Available:    true,
		},
	}}
	svc := service.New(
		service.Config{CartTTL: time.Hour},
		repo, menus, &memViewStore{vms: make(map[string]*teamcart.ViewModel)},
		memOutbox{}, passthroughUOW{}, payment.StubProvider{},
	)
	return NewHandler(svc, testWebhookSecret).Routes(), repo
}

func doJSON(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(headerUserID, userID)
		req.Header.Set(headerDisplayName, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createCart(t *testing.T, h http.Handler) cartResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/carts", "host", map[string]string{"restaurant_id": "rest-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// --- Tests ---

func TestCreateCart_ReturnsShareTokenOnce(t *testing.T) {
	h, _ := newTestServer(t)

	resp := createCart(t, h)
	assert.Equal(t, "rest-1", resp.RestaurantID)
	assert.Equal(t, string(teamcart.StatusOpen), resp.Status)
	assert.NotEmpty(t, resp.ShareToken)

	// Joining never echoes the token back.
	rec := doJSON(t, h, http.MethodPost, "/carts/"+resp.CartID+"/join", "guest",
		map[string]string{"token": resp.ShareToken, "display_name": "Bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	var joined cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &joined))
	assert.Empty(t, joined.ShareToken)
}

func TestCreateCart_MissingIdentity(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/carts", "", map[string]string{"restaurant_id": "rest-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinCart_WrongToken(t *testing.T) {
	h, _ := newTestServer(t)
	cart := createCart(t, h)

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/join", "guest",
		map[string]string{"token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddItem(t *testing.T) {
	h, _ := newTestServer(t)
	cart := createCart(t, h)

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/items", "host",
		map[string]any{"menu_item_id": "menu-1", "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code)

	var item teamcart.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "Pad Thai", item.Name)
	assert.Equal(t, 2, item.Quantity)
}

func TestAddItem_UnknownMenuItem(t *testing.T) {
	h, _ := newTestServer(t)
	cart := createCart(t, h)

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/items", "host",
		map[string]any{"menu_item_id": "nope", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockCart_GuestForbidden(t *testing.T) {
	h, _ := newTestServer(t)
	cart := createCart(t, h)
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/join", "guest",
		map[string]string{"token": cart.ShareToken})
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/items", "host",
		map[string]any{"menu_item_id": "menu-1", "quantity": 1})

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/lock", "guest", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/lock", "host", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLockCart_EmptyConflict(t *testing.T) {
	h, _ := newTestServer(t)
	cart := createCart(t, h)

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/lock", "host", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentFlow_OverHTTP(t *testing.T) {
	h, repo := newTestServer(t)
	cart := createCart(t, h)
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/items", "host",
		map[string]any{"menu_item_id": "menu-1", "quantity": 1})
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/lock", "host", nil)

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/pricing/finalize", "host", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Stale quote version is rejected with 409.
	rec = doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/payments/cod", "host",
		map[string]any{"quote_version": 0})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/payments/cod", "host",
		map[string]any{"quote_version": 1})
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored := repo.carts[cart.CartID]
	assert.Equal(t, teamcart.StatusReadyToConfirm, stored.Status)
}

func TestOnlinePayment_IntentAndWebhook(t *testing.T) {
	h, repo := newTestServer(t)
	cart := createCart(t, h)
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/items", "host",
		map[string]any{"menu_item_id": "menu-1", "quantity": 1})
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/lock", "host", nil)
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/pricing/finalize", "host", nil)

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/payments/online", "host",
		map[string]any{"quote_version": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var intent map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intent))
	assert.NotEmpty(t, intent["intent_id"])
	assert.NotEmpty(t, intent["client_token"])

	// Provider webhook settles the payment.
	body, err := json.Marshal(payment.WebhookEvent{
		ID:     "wh-1",
		Type:   payment.WebhookPaymentSucceeded,
		CartID: cart.CartID,
		UserID: "host",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(headerSignature, payment.Sign(testWebhookSecret, body))
	whrec := httptest.NewRecorder()
	h.ServeHTTP(whrec, req)
	require.Equal(t, http.StatusNoContent, whrec.Code)

	assert.Equal(t, teamcart.StatusReadyToConfirm, repo.carts[cart.CartID].Status)
}

func TestWebhook_BadSignature(t *testing.T) {
	h, _ := newTestServer(t)

	body := []byte(`{"type":"payment.succeeded","cart_id":"c","user_id":"u"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(headerSignature, "deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetLiveView(t *testing.T) {
	h, _ := newTestServer(t)
	cart := createCart(t, h)
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/items", "host",
		map[string]any{"menu_item_id": "menu-1", "quantity": 3})

	rec := doJSON(t, h, http.MethodGet, "/carts/"+cart.CartID+"/live", "host", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var vm teamcart.ViewModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vm))
	assert.Equal(t, cart.CartID, vm.CartID)
	assert.True(t, decimal.RequireFromString("30.00").Equal(vm.Subtotal))
	require.Len(t, vm.Items, 1)
}

func TestGetLiveView_UnknownCart(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/carts/missing/live", "host", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetReady(t *testing.T) {
	h, repo := newTestServer(t)
	cart := createCart(t, h)

	rec := doJSON(t, h, http.MethodPut, "/carts/"+cart.CartID+"/ready", "host",
		map[string]any{"ready": true})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, repo.carts[cart.CartID].Members[0].IsReady)
}

func TestApplyTip(t *testing.T) {
	h, repo := newTestServer(t)
	cart := createCart(t, h)
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/items", "host",
		map[string]any{"menu_item_id": "menu-1", "quantity": 1})
	doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/lock", "host", nil)

	rec := doJSON(t, h, http.MethodPost, "/carts/"+cart.CartID+"/tip", "host",
		map[string]any{"amount": "2.50"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, decimal.RequireFromString("2.50").Equal(repo.carts[cart.CartID].TipAmount))
}

func TestUnknownFieldRejected(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/carts", "host",
		map[string]any{"restaurant_id": "rest-1", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
