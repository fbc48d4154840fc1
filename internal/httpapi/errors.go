// Package httpapi exposes the catalog and order workflows over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safar/stockorder/internal/orders"
	"github.com/safar/stockorder/internal/products"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorBody{Error: message})
}

// respondOrderError maps an order workflow failure to a status. Persistence
// failures are logged and answered without their cause.
func (h *Handler) respondOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch orders.KindOf(err) {
	case orders.KindInvalid:
		h.respondError(w, http.StatusBadRequest, err.Error())
	case orders.KindNotFound:
		h.respondError(w, http.StatusNotFound, err.Error())
	case orders.KindInsufficientStock:
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) respondProductError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *products.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, products.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, products.ErrConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	h.respondError(w, http.StatusInternalServerError, "internal server error")
}
