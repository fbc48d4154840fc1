package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/safar/stockorder/internal/models"
	"github.com/safar/stockorder/internal/orders"
	"github.com/safar/stockorder/internal/products"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const tokenHeader = "X-JWT-Token"

type TokenIssuer interface {
	Issue() (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	orders   *orders.Service
	products *products.Service
	tokens   TokenIssuer
	health   Pinger
	logger   *zap.Logger
}

func NewHandler(o *orders.Service, p *products.Service, tokens TokenIssuer, health Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orders: o, products: p, tokens: tokens, health: health, logger: logger}
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Version     int             `json:"version,omitempty"`
}

func (p productRequest) input() products.Input {
	return products.Input{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Version:     p.Version,
	}
}

type productResponse struct {
	Product *models.Product `json:"product"`
	Token   string          `json:"token"`
}

type orderRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type orderResponse struct {
	Order *models.Order `json:"order"`
	Token string        `json:"token"`
}

// issueToken sets the response token header. It reports false after
// answering the request itself. Handlers that write call it before writing.
func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := h.tokens.Issue()
	if err != nil {
		h.internalError(w, r, err)
		return "", false
	}
	w.Header().Set(tokenHeader, token)
	return token, true
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.products.List(r.Context(), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		h.respondProductError(w, r, err)
		return
	}
	if _, ok := h.issueToken(w, r); !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.products.Get(r.Context(), id)
	if err != nil {
		h.respondProductError(w, r, err)
		return
	}

	token, ok := h.issueToken(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, productResponse{Product: product, Token: token})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, ok := h.issueToken(w, r)
	if !ok {
		return
	}

	product, err := h.products.Create(r.Context(), req.input())
	if err != nil {
		w.Header().Del(tokenHeader)
		h.respondProductError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/products/"+strconv.FormatInt(product.ID, 10))
	h.respondJSON(w, http.StatusCreated, productResponse{Product: product, Token: token})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, ok := h.issueToken(w, r)
	if !ok {
		return
	}

	product, err := h.products.Update(r.Context(), id, req.input())
	if err != nil {
		w.Header().Del(tokenHeader)
		h.respondProductError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, productResponse{Product: product, Token: token})
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		h.respondProductError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOrders returns every order, or a newest-first page when the client
// asks for one with cursor or limit.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("cursor") || q.Has("limit") {
		limit := 20
		if q.Has("limit") {
			limit = queryInt(r, "limit")
		}
		if limit > 100 {
			limit = 100
		}

		page, err := h.orders.ListOrdersPage(r.Context(), q.Get("cursor"), limit)
		if err != nil {
			h.respondOrderError(w, r, err)
			return
		}
		if _, ok := h.issueToken(w, r); !ok {
			return
		}
		h.respondJSON(w, http.StatusOK, page)
		return
	}

	all, err := h.orders.ListOrders(r.Context())
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}
	if all == nil {
		all = []models.Order{}
	}
	if _, ok := h.issueToken(w, r); !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, all)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}

	token, ok := h.issueToken(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, orderResponse{Order: order, Token: token})
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, ok := h.issueToken(w, r)
	if !ok {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), orders.CreateOrderRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		w.Header().Del(tokenHeader)
		h.respondOrderError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(order.ID, 10))
	h.respondJSON(w, http.StatusCreated, orderResponse{Order: order, Token: token})
}
