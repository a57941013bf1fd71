package httpx

import (
	"net/http"
	"strings"

	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Coord *orders.Coordinator
}

type OrderItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Qty       int    `json:"qty"` // accepted for older clients
}

type CreateOrderReq struct {
	UserID          string         `json:"user_id"`
	Items           []OrderItemReq `json:"items"`
	ShippingAddress string         `json:"shipping_address"`
	IdempotencyKey  string         `json:"idempotency_key"`
}

type CreateOrderResp struct {
	Message     string          `json:"message"`
	OrderID     string          `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      orders.Status   `json:"status"`
	Idempotent  bool            `json:"idempotent"`
}

type HistoryResp struct {
	UserID string         `json:"user_id"`
	Orders []orders.Order `json:"orders"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/api/order", h.createOrder)
	r.Get("/api/order/{id}", h.getOrder)
	r.Post("/api/order/{id}/cancel", h.cancelOrder)
	r.Get("/api/orders/{user_id}", h.history)
}

func idempotencyKey(r *http.Request, body string) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)); k != "" {
		return k
	}
	return strings.TrimSpace(body)
}

func writeConfirmation(w http.ResponseWriter, conf orders.Confirmation, replayed bool) {
	code := http.StatusCreated
	if replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{
		Message:     "Order placed successfully",
		OrderID:     conf.OrderID,
		TotalAmount: conf.TotalAmount,
		Status:      conf.Status,
		Idempotent:  replayed,
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json")
		return
	}

	items := make([]orders.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		qty := it.Quantity
		if qty == 0 {
			qty = it.Qty
		}
		items = append(items, orders.ItemInput{ProductID: it.ProductID, Quantity: qty})
	}

	conf, replayed, err := h.Coord.Checkout(r.Context(), orders.CheckoutRequest{
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeConfirmation(w, conf, replayed)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Coord.Order(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Coord.CancelOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) history(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	writeJSON(w, http.StatusOK, HistoryResp{UserID: userID, Orders: h.Coord.History(userID)})
}
