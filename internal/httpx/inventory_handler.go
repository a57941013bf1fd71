package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-pcparts-orders/internal/inventory"
	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type InventoryHandler struct {
	Ledger *inventory.Ledger
	Stock  *inventory.Service
}

type stockLevel struct {
	StockLevel int `json:"stock_level"`
}

type decrementReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/api/inventory", h.snapshot)
	r.Get("/api/inventory/check_multiple", h.checkMultiple)
	r.Post("/api/inventory/decrement", h.decrement)
	r.Get("/api/inventory/{id}", h.get)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	qty, err := h.Ledger.Get(id)
	if err != nil {
		notFound(w, r, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "stock_level": qty})
}

func (h *InventoryHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Ledger.Snapshot())
}

// checkMultiple reports -1 for unknown ids.
func (h *InventoryHandler) checkMultiple(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		badRequest(w, r, "Missing 'ids' parameter")
		return
	}
	out := make(map[string]stockLevel)
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		qty, err := h.Ledger.Get(id)
		if err != nil {
			qty = -1
		}
		out[id] = stockLevel{StockLevel: qty}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) decrement(w http.ResponseWriter, r *http.Request) {
	var req decrementReq
	if err := decodeJSON(r, &req); err != nil || req.ProductID == "" || req.Quantity <= 0 {
		badRequest(w, r, "Missing required fields")
		return
	}
	left, err := h.Stock.Decrement(r.Context(), req.ProductID, req.Quantity)
	var shortage *inventory.Shortage
	switch {
	case errors.As(err, &shortage):
		writeError(w, r, &orders.Error{Kind: orders.KindInsufficientStock, Message: shortage.Error(), ProductID: req.ProductID})
		return
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, r, &orders.Error{Kind: orders.KindNotFound, Message: "Product not found", ProductID: req.ProductID})
		return
	case errors.Is(err, inventory.ErrLockTimeout):
		writeError(w, r, &orders.Error{Kind: orders.KindTimeout, Message: "stock is busy, retry later", ProductID: req.ProductID})
		return
	case errors.Is(err, inventory.ErrNotRecorded):
		writeError(w, r, &orders.Error{Kind: orders.KindStorageUnavailable, Message: "stock change could not be recorded", ProductID: req.ProductID, Err: err})
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Stock updated successfully", "new_stock": left})
}
