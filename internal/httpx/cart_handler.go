package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-pcparts-orders/internal/cart"
	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type CartHandler struct {
	Carts cart.Store
	Coord *orders.Coordinator
}

type cartResp struct {
	UserID  string      `json:"user_id"`
	Message string      `json:"message,omitempty"`
	Items   []cart.Item `json:"items"`
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type cartCheckoutReq struct {
	ShippingAddress string `json:"shipping_address"`
	IdempotencyKey  string `json:"idempotency_key"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/api/cart/{user_id}", h.view)
	r.Post("/api/cart/{user_id}", h.add)
	r.Delete("/api/cart/{user_id}", h.clear)
	r.Delete("/api/cart/{user_id}/{product_id}", h.remove)
	r.Post("/api/cart/{user_id}/checkout", h.checkout)
}

func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	items, err := h.Carts.Items(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResp{UserID: userID, Items: items})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	var req addItemReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	items, err := h.Carts.Add(r.Context(), userID, req.ProductID, qty)
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrMissingProduct):
		badRequest(w, r, "Invalid product ID or quantity")
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResp{UserID: userID, Message: "Cart updated successfully", Items: items})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	err := h.Carts.Remove(r.Context(), chi.URLParam(r, "user_id"), chi.URLParam(r, "product_id"))
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		notFound(w, r, "Item not found in cart")
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item removed successfully"})
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), chi.URLParam(r, "user_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}

// checkout places an order from the cart; the cart is emptied only when the
// order is placed.
func (h *CartHandler) checkout(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	var req cartCheckoutReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	items, err := h.Carts.Items(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(items) == 0 {
		badRequest(w, r, "cart is empty")
		return
	}

	in := make([]orders.ItemInput, 0, len(items))
	for _, it := range items {
		in = append(in, orders.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	conf, replayed, err := h.Coord.Checkout(r.Context(), orders.CheckoutRequest{
		UserID:          userID,
		Items:           in,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Carts.Clear(r.Context(), userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("order_id", conf.OrderID).Msg("cart not cleared after checkout")
	}
	writeConfirmation(w, conf, replayed)
}
