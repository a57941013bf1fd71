package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Error     orders.Kind `json:"error"`
	Message   string      `json:"message"`
	Reasons   []string    `json:"reasons,omitempty"`
	ProductID string      `json:"product_id,omitempty"`
}

var statusByKind = map[orders.Kind]int{
	orders.KindInvalidRequest:     http.StatusBadRequest,
	orders.KindIncompatibleParts:  http.StatusUnprocessableEntity,
	orders.KindNotFound:           http.StatusNotFound,
	orders.KindInsufficientStock:  http.StatusConflict,
	orders.KindTimeout:            http.StatusServiceUnavailable,
	orders.KindStorageUnavailable: http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with its kind. Errors that are not *orders.Error
// are logged and shown as a generic storage failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *orders.Error
	if !errors.As(err, &e) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unclassified error")
		e = &orders.Error{Kind: orders.KindStorageUnavailable, Message: "internal error"}
	}
	code, ok := statusByKind[e.Kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	if e.Kind == orders.KindTimeout {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, errorBody{Error: e.Kind, Message: e.Message, Reasons: e.Reasons, ProductID: e.ProductID})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, &orders.Error{Kind: orders.KindInvalidRequest, Message: msg})
}

func notFound(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, &orders.Error{Kind: orders.KindNotFound, Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
