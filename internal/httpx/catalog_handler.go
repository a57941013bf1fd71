package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pcparts-orders/internal/catalog"
	"github.com/go-chi/chi/v5"
)

type CatalogHandler struct {
	Catalog *catalog.Catalog
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/api/products", h.list)
	r.Get("/api/products/{id}", h.get)
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.List(r.URL.Query().Get("category")))
}

func (h *CatalogHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		notFound(w, r, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
