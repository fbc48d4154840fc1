package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/safar/stockorder/internal/auth"
	"github.com/safar/stockorder/internal/models"
	"github.com/safar/stockorder/internal/orders"
	"github.com/safar/stockorder/internal/products"
	"github.com/safar/stockorder/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func setupRouter(t *testing.T, pinger Pinger) (http.Handler, *memory.Store) {
	t.Helper()
	s := memory.New()
	h := NewHandler(
		orders.NewService(s, s.Orders()),
		products.NewService(s.Products(), s, nil),
		auth.NewIssuer(testSecret, 5*time.Minute),
		pinger,
		nil,
	)
	return NewRouter(h), s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func assertToken(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	token := rr.Header().Get(tokenHeader)
	require.NotEmpty(t, token)
	claims, err := auth.NewIssuer(testSecret, time.Minute).Parse(token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, claims.Role)
	return token
}

func createProduct(t *testing.T, h http.Handler, stock int, price string) models.Product {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/products",
		fmt.Sprintf(`{"name":"Widget","description":"d","price":%q,"stock":%d}`, price, stock))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Product models.Product `json:"product"`
		Token   string         `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, assertToken(t, rr), resp.Token)
	return resp.Product
}

func TestHealthz(t *testing.T) {
	h, _ := setupRouter(t, fakePinger{})
	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	h, _ = setupRouter(t, fakePinger{err: errors.New("connection refused")})
	rr = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h, _ := setupRouter(t, fakePinger{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-Id"))
}

func TestCreateOrderScenarios(t *testing.T) {
	h, _ := setupRouter(t, fakePinger{})
	p1 := createProduct(t, h, 10, "50.00")
	p3 := createProduct(t, h, 2, "50.00")

	t.Run("sufficient stock", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/api/orders", fmt.Sprintf(`{"product_id":%d,"quantity":2}`, p1.ID))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assertToken(t, rr)

		var resp struct {
			Order models.Order `json:"order"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Order.Quantity)
		assert.True(t, resp.Order.Total.Equal(decimal.RequireFromString("100")))

		rr = do(t, h, http.MethodGet, fmt.Sprintf("/api/products/%d", p1.ID), "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got struct {
			Product models.Product `json:"product"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 8, got.Product.Stock)
	})

	t.Run("unknown product", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/api/orders", `{"product_id":999,"quantity":4}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Empty(t, rr.Header().Get(tokenHeader))
	})

	t.Run("insufficient stock", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/api/orders", fmt.Sprintf(`{"product_id":%d,"quantity":10}`, p3.ID))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/api/orders", fmt.Sprintf(`{"product_id":%d,"quantity":0}`, p1.ID))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/api/orders", `{"product_id":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	rr := do(t, h, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assertToken(t, rr)
	var all []models.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	require.Len(t, all, 1)

	rr = do(t, h, http.MethodGet, fmt.Sprintf("/api/orders/%d", all[0].ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/orders/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListOrdersEmptyIsArray(t *testing.T) {
	h, _ := setupRouter(t, fakePinger{})
	rr := do(t, h, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestListOrdersPaged(t *testing.T) {
	h, _ := setupRouter(t, fakePinger{})
	p := createProduct(t, h, 100, "1.00")
	for i := 0; i < 5; i++ {
		rr := do(t, h, http.MethodPost, "/api/orders", fmt.Sprintf(`{"product_id":%d,"quantity":1}`, p.ID))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	type page struct {
		Items      []models.Order `json:"items"`
		NextCursor string         `json:"next_cursor"`
		HasMore    bool           `json:"has_more"`
	}

	seen := map[int64]bool{}
	cursor := ""
	for i := 0; i < 5; i++ {
		rr := do(t, h, http.MethodGet, "/api/orders?limit=2&cursor="+cursor, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var pg page
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pg))
		for _, o := range pg.Items {
			assert.False(t, seen[o.ID], "order %d seen twice", o.ID)
			seen[o.ID] = true
		}
		if !pg.HasMore {
			break
		}
		cursor = pg.NextCursor
	}
	assert.Len(t, seen, 5)

	rr := do(t, h, http.MethodGet, "/api/orders?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/orders?cursor=%21%21", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProductCRUD(t *testing.T) {
	h, _ := setupRouter(t, fakePinger{})
	p := createProduct(t, h, 5, "9.99")
	assert.True(t, p.Price.Equal(decimal.RequireFromString("9.99")))

	rr := do(t, h, http.MethodPut, fmt.Sprintf("/api/products/%d", p.ID),
		`{"name":"Gadget","description":"","price":12.5,"stock":7}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assertToken(t, rr)

	rr = do(t, h, http.MethodPut, fmt.Sprintf("/api/products/%d", p.ID),
		`{"name":"Gadget","price":"12.50","stock":7,"version":1}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/products/999", `{"name":"Gadget","price":"1","stock":1}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/products", `{"name":"","price":"1","stock":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/products", `{"name":"x","price":"-1","stock":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/products?page=1&page_size=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Gadget"`)

	rr = do(t, h, http.MethodDelete, fmt.Sprintf("/api/products/%d", p.ID), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodDelete, fmt.Sprintf("/api/products/%d", p.ID), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, http.MethodGet, fmt.Sprintf("/api/products/%d", p.ID), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConcurrentOrdersOverHTTP(t *testing.T) {
	h, s := setupRouter(t, fakePinger{})
	p := createProduct(t, h, 10, "3.00")

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := do(t, h, http.MethodPost, "/api/orders", fmt.Sprintf(`{"product_id":%d,"quantity":6}`, p.ID))
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
	got, err := s.Products().GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)
}

type failingIssuer struct{}

func (failingIssuer) Issue() (string, error) { return "", errors.New("signing key unavailable") }

func TestTokenFailureLeavesStateUnchanged(t *testing.T) {
	s := memory.New()
	p := models.Product{Name: "Widget", Price: decimal.RequireFromString("5.00"), Stock: 10}
	require.NoError(t, s.Products().Create(context.Background(), &p))

	h := NewRouter(NewHandler(
		orders.NewService(s, s.Orders()),
		products.NewService(s.Products(), s, nil),
		failingIssuer{},
		fakePinger{},
		nil,
	))

	rr := do(t, h, http.MethodPost, "/api/orders", fmt.Sprintf(`{"product_id":%d,"quantity":2}`, p.ID))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/products", `{"name":"Gadget","price":"1.00","stock":1}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = do(t, h, http.MethodPut, fmt.Sprintf("/api/products/%d", p.ID), `{"name":"Renamed","price":"1.00","stock":1}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	got, err := s.Products().GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
	assert.Equal(t, "Widget", got.Name)

	all, err := s.Orders().GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	list, err := s.Products().List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
}

func TestListProductsRejectsOverflowingPage(t *testing.T) {
	h, _ := setupRouter(t, fakePinger{})
	createProduct(t, h, 1, "1.00")

	rr := do(t, h, http.MethodGet, "/api/products?page=4611686018427387904", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
