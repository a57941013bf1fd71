package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pcparts-orders/internal/compat"
	"github.com/go-chi/chi/v5"
)

type CompatHandler struct {
	Validator *compat.Validator
}

type compatReq struct {
	Items []compat.PartDescriptor `json:"items"`
}

func (h *CompatHandler) Register(r chi.Router) {
	r.Post("/api/compatibility/check", h.check)
}

func (h *CompatHandler) check(w http.ResponseWriter, r *http.Request) {
	var req compatReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	writeJSON(w, http.StatusOK, h.Validator.Check(req.Items))
}
