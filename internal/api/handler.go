// Package api is the thin HTTP surface over the team cart service. Each
// route maps 1:1 to one aggregate operation; authentication is upstream and
// the caller identity arrives in headers.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/feastly/teamcart/internal/domain/teamcart"
	"github.com/feastly/teamcart/internal/payment"
	"github.com/feastly/teamcart/internal/service"
)

const (
	headerUserID      = "X-User-ID"
	headerDisplayName = "X-Display-Name"
	headerSignature   = "X-Provider-Signature"
)

// Handler holds the HTTP handlers for the team cart API.
type Handler struct {
	svc           *service.Service
	webhookSecret []byte
}

// NewHandler creates the API handler.
func NewHandler(svc *service.Service, webhookSecret []byte) *Handler {
	return &Handler{svc: svc, webhookSecret: webhookSecret}
}

// Routes mounts every cart route on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/carts", func(r chi.Router) {
		r.Post("/", h.createCart)
		r.Route("/{cartID}", func(r chi.Router) {
			r.Post("/join", h.joinCart)
			r.Get("/live", h.getLiveView)
			r.Put("/ready", h.setReady)
			r.Post("/lock", h.lockCart)
			r.Post("/tip", h.applyTip)
			r.Post("/pricing/finalize", h.finalizePricing)
			r.Post("/items", h.addItem)
			r.Patch("/items/{itemID}", h.updateItemQuantity)
			r.Delete("/items/{itemID}", h.removeItem)
			r.Post("/payments/cod", h.commitCOD)
			r.Post("/payments/online", h.initiateOnlinePayment)
		})
	})
	r.Post("/webhooks/payments", h.paymentWebhook)
	return r
}

type cartResponse struct {
	CartID       string    `json:"cart_id"`
	RestaurantID string    `json:"restaurant_id"`
	Status       string    `json:"status"`
	ShareToken   string    `json:"share_token,omitempty"`
	QuoteVersion int       `json:"quote_version"`
	ExpiresAt    time.Time `json:"expires_at"`
	Version      int64     `json:"version"`
}

func toCartResponse(c *teamcart.TeamCart, includeToken bool) cartResponse {
	resp := cartResponse{
		CartID:       c.ID,
		RestaurantID: c.RestaurantID,
		Status:       string(c.Status),
		QuoteVersion: c.QuoteVersion,
		ExpiresAt:    c.ExpiresAt,
		Version:      c.Version,
	}
	if includeToken {
		resp.ShareToken = c.ShareToken
	}
	return resp
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: http.StatusBadRequest, Message: msg})
}

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RestaurantID string `json:"restaurant_id"`
	}
	if err := decodeBody(r, &req); err != nil || req.RestaurantID == "" {
		badRequest(w, "restaurant_id is required")
		return
	}
	userID, name := r.Header.Get(headerUserID), r.Header.Get(headerDisplayName)
	if userID == "" {
		badRequest(w, "missing user identity")
		return
	}

	cart, err := h.svc.CreateCart(r.Context(), userID, name, req.RestaurantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// The share token is returned once, to the host, at creation.
	writeJSON(w, http.StatusCreated, toCartResponse(cart, true))
}

func (h *Handler) joinCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeBody(r, &req); err != nil || req.Token == "" {
		badRequest(w, "token is required")
		return
	}
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		badRequest(w, "missing user identity")
		return
	}

	cart, err := h.svc.JoinCart(r.Context(), chi.URLParam(r, "cartID"), req.Token, userID, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart, false))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MenuItemID string `json:"menu_item_id"`
		Quantity   int    `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil || req.MenuItemID == "" {
		badRequest(w, "menu_item_id is required")
		return
	}

	item, err := h.svc.AddItem(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID), req.MenuItemID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveItem(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "malformed body")
		return
	}

	err := h.svc.UpdateItemQuantity(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lockCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.LockForPayment(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart, false))
}

func (h *Handler) applyTip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "malformed body")
		return
	}

	err := h.svc.ApplyTip(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID), req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) finalizePricing(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.FinalizePricing(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart, false))
}

func (h *Handler) commitCOD(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuoteVersion int `json:"quote_version"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "malformed body")
		return
	}

	err := h.svc.CommitToCashOnDelivery(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID), req.QuoteVersion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) initiateOnlinePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuoteVersion int `json:"quote_version"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "malformed body")
		return
	}

	intent, err := h.svc.InitiateOnlinePayment(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID), req.QuoteVersion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"intent_id":    intent.IntentID,
		"client_token": intent.ClientToken,
	})
}

func (h *Handler) setReady(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ready bool `json:"ready"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "malformed body")
		return
	}

	err := h.svc.SetMemberReady(r.Context(), chi.URLParam(r, "cartID"), r.Header.Get(headerUserID), req.Ready)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getLiveView(w http.ResponseWriter, r *http.Request) {
	vm, err := h.svc.GetViewModel(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// paymentWebhook verifies the provider signature and routes the verdict to
// the aggregate's payment settlement path.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}

	evt, err := payment.ParseWebhook(h.webhookSecret, body, r.Header.Get(headerSignature))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.SettleOnlinePayment(r.Context(), evt.CartID, evt.UserID, evt.Succeeded()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
