package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/daigou-api/internal/database"
	"github.com/ksred/daigou-api/internal/export"
	"github.com/ksred/daigou-api/internal/orders"
	"github.com/ksred/daigou-api/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, limits middleware.Limits) *gin.Engine {
	t.Helper()
	db, err := database.NewDatabase("file:" + uuid.New().String() + "?mode=memory&cache=shared")
	require.NoError(t, err)

	service, err := orders.NewService(db, orders.DefaultConfig(), export.NewFileSink(t.TempDir(), ""))
	require.NoError(t, err)

	return NewRouter(orders.NewGinHandlers(service), middleware.NewRateLimiter(limits))
}

var unlimited = middleware.Limits{Orders: rate.Inf, Export: rate.Inf, Burst: 1}

func do(t *testing.T, router *gin.Engine, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestCreateOrderAndSummary(t *testing.T) {
	router := newTestRouter(t, unlimited)

	w, env := do(t, router, http.MethodPost, "/api/v1/orders",
		`{"buyer":"A","item_name":"bag","foreign_price":10000,"payment_status":"UNPAID"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)

	var first orders.OrderResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, int64(2800), first.Order.LocalTotal)
	assert.Equal(t, int64(2800), first.BuyerTotal)
	assert.False(t, first.FreeShipping)

	w, env = do(t, router, http.MethodPost, "/api/v1/orders",
		`{"buyer":"A","item_name":"scarf","foreign_price":"5000","payment_status":"已付款"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var second orders.OrderResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, int64(1400), second.Order.DepositAmount)
	assert.Equal(t, int64(4200), second.Order.RunningBuyerTotal)
	assert.True(t, second.FreeShipping)

	w, env = do(t, router, http.MethodGet, "/api/v1/buyers/A", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var standing orders.BuyerStanding
	require.NoError(t, json.Unmarshal(env.Data, &standing))
	assert.Equal(t, int64(4200), standing.Total)
	assert.True(t, standing.FreeShipping)

	w, env = do(t, router, http.MethodGet, "/api/v1/summary", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Buyers []struct {
			Buyer        string `json:"buyer"`
			TotalLocal   int64  `json:"total_local"`
			TotalDeposit int64  `json:"total_deposit"`
			TotalBalance int64  `json:"total_balance"`
			FreeShipping bool   `json:"free_shipping"`
			Items        []json.RawMessage
		} `json:"buyers"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	require.Len(t, summary.Buyers, 1)
	assert.Equal(t, int64(4200), summary.Buyers[0].TotalLocal)
	assert.Equal(t, int64(1400), summary.Buyers[0].TotalDeposit)
	assert.Equal(t, int64(2800), summary.Buyers[0].TotalBalance)
	assert.Len(t, summary.Buyers[0].Items, 2)

	w, env = do(t, router, http.MethodGet, "/api/v1/orders/"+second.Order.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/v1/orders/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	router := newTestRouter(t, unlimited)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing buyer", body: `{"item_name":"bag","foreign_price":"100"}`, field: "buyer"},
		{name: "missing price", body: `{"buyer":"A","item_name":"bag"}`, field: "item_or_price"},
		{name: "missing deposit", body: `{"buyer":"A","item_name":"bag","foreign_price":"100","payment_status":"DEPOSITED"}`, field: "deposit"},
		{name: "bad number", body: `{"buyer":"A","item_name":"bag","foreign_price":"1O0"}`},
		{name: "unknown status", body: `{"buyer":"A","item_name":"bag","foreign_price":"100","payment_status":"REFUNDED"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, router, http.MethodPost, "/api/v1/orders", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
			assert.Equal(t, tt.field, env.Error.Field)
		})
	}

	w, env := do(t, router, http.MethodGet, "/api/v1/orders", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	w, _ = do(t, router, http.MethodPost, "/api/v1/orders", `{"buyer":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	router := newTestRouter(t, unlimited)
	body := `{"buyer":"A","item_name":"bag","foreign_price":"10000"}`
	headers := map[string]string{"Idempotency-Key": "form-submit-1"}

	_, env := do(t, router, http.MethodPost, "/api/v1/orders", body, headers)
	var first orders.OrderResult
	require.NoError(t, json.Unmarshal(env.Data, &first))

	_, env = do(t, router, http.MethodPost, "/api/v1/orders", body, headers)
	var replay orders.OrderResult
	require.NoError(t, json.Unmarshal(env.Data, &replay))
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Order.ID, replay.Order.ID)

	_, env = do(t, router, http.MethodGet, "/api/v1/orders", "", nil)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestRateRoutes(t *testing.T) {
	router := newTestRouter(t, unlimited)

	w, env := do(t, router, http.MethodGet, "/api/v1/rate", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rate":"0.28","min":"0.26","max":"0.3","step":"0.001"}`, string(env.Data))

	w, _ = do(t, router, http.MethodPut, "/api/v1/rate", `{"rate":0.29}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, router, http.MethodPut, "/api/v1/rate", `{"rate":"0.5"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	_, env = do(t, router, http.MethodPost, "/api/v1/orders", `{"buyer":"A","item_name":"bag","foreign_price":"1000"}`, nil)
	var result orders.OrderResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(290), result.Order.LocalTotal)
}

func TestExportRoutes(t *testing.T) {
	router := newTestRouter(t, unlimited)

	w, env := do(t, router, http.MethodGet, "/api/v1/export", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	do(t, router, http.MethodPost, "/api/v1/orders", `{"buyer":"A","item_name":"bag","foreign_price":"10000"}`, nil)

	w, _ = do(t, router, http.MethodGet, "/api/v1/export", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Regexp(t, `attachment; filename="Daigou_\d{8}_\d{6}\.xlsx"`, w.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "購買人", rows[0][0])
	assert.Equal(t, "2800", rows[1][3])

	w, env = do(t, router, http.MethodPost, "/api/v1/exports", "", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var record export.ExportRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, 1, record.Rows)

	w, env = do(t, router, http.MethodGet, "/api/v1/exports", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []export.ExportRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 1)
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, middleware.Limits{Orders: rate.Limit(0.001), Export: rate.Limit(0.001), Burst: 1})

	w, _ := do(t, router, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, router, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", env.Error.Code)

	w, _ = do(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
