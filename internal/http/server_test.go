package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"finease/internal/auth"
	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/services"
	"finease/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenA = "token-a"
	tokenB = "token-b"
)

type testServer struct {
	srv *Server
	t   *testing.T
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func quietLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = io.Discard
	return log.New(cfg)
}

func newTestServerWith(t *testing.T, svc Service, opts Options) *testServer {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	verifier := auth.NewStaticVerifier(map[string]string{tokenA: "a@x.com", tokenB: "b@x.com"})
	srv := NewServer(":0", svc, verifier, opts)
	t.Cleanup(func() { srv.limiter.Stop() })
	return &testServer{srv: srv, t: t}
}

func newTestServer(t *testing.T) *testServer {
	svc := services.NewTransactionService(memory.New(), services.WithClock(steppingClock()))
	return newTestServerWith(t, svc, Options{RateLimitPerMinute: 1000, CORSAllowedOrigins: []string{"*"}})
}

func (ts *testServer) do(method, target, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.RemoteAddr = "203.0.113.5:4000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(owner, typ, category string, amount float64, date string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/add-transaction", "", map[string]any{
		"email": owner, "type": typ, "category": category, "amount": amount, "date": date,
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var out createResponse
	decode(ts.t, rec, &out)
	require.True(ts.t, out.Acknowledged)
	require.NotEmpty(ts.t, out.InsertedID)
	return out.InsertedID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, rec, &body)
	return body.Message
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Server is running", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	decode(t, rec, &health)
	assert.Equal(t, "ok", health["status"])

	rec = ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var ready map[string]any
	decode(t, rec, &ready)
	assert.Equal(t, "ready", ready["status"])

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/nope", "", nil).Code)
}

type downService struct {
	Service
}

func (downService) Ping(context.Context) error {
	return core.StoreError("ping", errors.New("connection refused"))
}

func TestReadyReportsStoreDown(t *testing.T) {
	ts := newTestServerWith(t, downService{}, Options{})

	rec := ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestCreateAndGet(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create("a@x.com", "expense", "Food", 12.5, "2024-01-15")

	rec := ts.do(http.MethodGet, "/transaction/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tx map[string]any
	decode(t, rec, &tx)
	assert.Equal(t, id, tx["_id"])
	assert.Equal(t, "a@x.com", tx["email"])
	assert.Equal(t, "Expense", tx["type"])
	assert.Equal(t, 12.5, tx["amount"])
	assert.Equal(t, "2024-01-15T00:00:00Z", tx["date"])
}

func TestCreateValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed json", `{"email":`, http.StatusBadRequest},
		{"empty body", "", http.StatusBadRequest},
		{"trailing data", `{"email":"a@x.com"} {}`, http.StatusBadRequest},
		{"bad type", map[string]any{"email": "a@x.com", "type": "gift", "date": "2024-01-01", "amount": 1}, http.StatusUnprocessableEntity},
		{"bad date", map[string]any{"email": "a@x.com", "type": "income", "date": "yesterday", "amount": 1}, http.StatusUnprocessableEntity},
		{"bad amount", map[string]any{"email": "a@x.com", "type": "income", "date": "2024-01-01", "amount": "lots"}, http.StatusUnprocessableEntity},
		{"amount past cent range", map[string]any{"email": "a@x.com", "type": "income", "date": "2024-01-01", "amount": 1e17}, http.StatusUnprocessableEntity},
		{"sub-cent amount", map[string]any{"email": "a@x.com", "type": "income", "date": "2024-01-01", "amount": 0.004}, http.StatusUnprocessableEntity},
		{"missing owner", map[string]any{"type": "income", "date": "2024-01-01", "amount": 1}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/add-transaction", "", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, message(t, rec))
		})
	}

	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(http.MethodGet, "/add-transaction", "", nil).Code)
}

func TestGetMissing(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/transaction/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "transaction not found", message(t, rec))
}

func TestListTransactions(t *testing.T) {
	ts := newTestServer(t)
	ts.create("a@x.com", "expense", "Food", 30, "2024-01-03")
	ts.create("a@x.com", "expense", "Food", 10, "2024-01-01")
	ts.create("a@x.com", "income", "Salary", 20, "2024-01-02")
	ts.create("b@x.com", "expense", "Food", 99, "2024-01-01")

	amounts := func(rec *httptest.ResponseRecorder) []float64 {
		var txs []map[string]any
		decode(t, rec, &txs)
		out := make([]float64, 0, len(txs))
		for _, tx := range txs {
			out = append(out, tx["amount"].(float64))
		}
		return out
	}

	rec := ts.do(http.MethodGet, "/my-transactions?email=a@x.com", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []float64{20, 10, 30}, amounts(rec), "newest first by default")

	rec = ts.do(http.MethodGet, "/my-transactions?email=a@x.com&sort=amount&order=1", tokenA, nil)
	assert.Equal(t, []float64{10, 20, 30}, amounts(rec))

	rec = ts.do(http.MethodGet, "/my-transactions?email=a@x.com&sort=date&order=-1", tokenA, nil)
	assert.Equal(t, []float64{30, 20, 10}, amounts(rec))

	rec = ts.do(http.MethodGet, "/my-transactions", tokenA, nil)
	assert.Len(t, amounts(rec), 4, "no email lists everything")

	rec = ts.do(http.MethodGet, "/my-transactions?email=nobody@x.com", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAuthorization(t *testing.T) {
	ts := newTestServer(t)
	ts.create("a@x.com", "expense", "Food", 1, "2024-01-01")

	rec := ts.do(http.MethodGet, "/my-transactions?email=a@x.com", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized access", message(t, rec))

	rec = ts.do(http.MethodGet, "/my-transactions?email=a@x.com", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/my-transactions?email=a@x.com", tokenB, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden access", message(t, rec))

	rec = ts.do(http.MethodGet, "/my-transactions?email=b@x.com", tokenB, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestUpdateTransaction(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create("a@x.com", "expense", "Food", 5, "2024-01-01")

	rec := ts.do(http.MethodGet, "/transaction/"+id, "", nil)
	var before map[string]any
	decode(t, rec, &before)

	rec = ts.do(http.MethodPut, "/transaction/"+id+"?email=a@x.com", tokenA, map[string]any{
		"amount":    99,
		"category":  "Groceries",
		"email":     "mallory@x.com",
		"createdAt": "2000-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res map[string]int64
	decode(t, rec, &res)
	assert.Equal(t, int64(1), res["matchedCount"])

	rec = ts.do(http.MethodGet, "/transaction/"+id, "", nil)
	var after map[string]any
	decode(t, rec, &after)
	assert.Equal(t, float64(99), after["amount"])
	assert.Equal(t, "Groceries", after["category"])
	assert.Equal(t, "a@x.com", after["email"])
	assert.Equal(t, before["createdAt"], after["createdAt"])
	assert.NotEqual(t, before["updatedAt"], after["updatedAt"])
}

func TestUpdateErrors(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create("a@x.com", "expense", "Food", 5, "2024-01-01")
	patch := map[string]any{"amount": 1}

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPut, "/transaction/"+id+"?email=a@x.com", "", patch).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPut, "/transaction/"+id+"?email=a@x.com", tokenB, patch).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/transaction/"+id+"?email=b@x.com", tokenB, patch).Code,
		"another owner's record is outside the scope")
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/transaction/missing?email=a@x.com", tokenA, patch).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		ts.do(http.MethodPut, "/transaction/"+id+"?email=a@x.com", tokenA, map[string]any{"type": "loan"}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, "/transaction/"+id+"?email=a@x.com", tokenA, "nope").Code)
}

func TestDeleteTransaction(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create("a@x.com", "expense", "Food", 5, "2024-01-01")

	var res map[string]int64
	rec := ts.do(http.MethodDelete, "/transaction/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &res)
	assert.Equal(t, int64(1), res["deletedCount"])

	rec = ts.do(http.MethodDelete, "/transaction/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &res)
	assert.Equal(t, int64(0), res["deletedCount"])

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/transaction/"+id, "", nil).Code)
}

func TestReportEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.create("a@x.com", "Income", "Salary", 1000, "2024-01-15")
	ts.create("a@x.com", "Expense", "Rent", 400, "2024-01-20")
	ts.create("a@x.com", "Expense", "Food", 12.5, "2024-02-01")
	ts.create("a@x.com", "Expense", "Food", 7.5, "2024-02-28")
	ts.create("b@x.com", "Expense", "Food", 999, "2024-02-10")

	rec := ts.do(http.MethodGet, "/total-by-category?email=a@x.com&category=Food", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var total map[string]float64
	decode(t, rec, &total)
	assert.Equal(t, 20.0, total["total"])

	rec = ts.do(http.MethodGet, "/total-by-category?email=a@x.com&category=Travel", tokenA, nil)
	decode(t, rec, &total)
	assert.Equal(t, 0.0, total["total"])

	rec = ts.do(http.MethodGet, "/overview?email=a@x.com", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ov map[string]float64
	decode(t, rec, &ov)
	assert.Equal(t, map[string]float64{"totalIncome": 1000, "totalExpense": 420, "balance": 580}, ov)

	rec = ts.do(http.MethodGet, "/reports-summary?email=a@x.com", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum struct {
		Category []struct {
			Category string  `json:"category"`
			Total    float64 `json:"total"`
		} `json:"category"`
		Monthly []struct {
			Month   string  `json:"month"`
			Income  float64 `json:"income"`
			Expense float64 `json:"expense"`
		} `json:"monthly"`
	}
	decode(t, rec, &sum)
	require.Len(t, sum.Category, 3)
	assert.Equal(t, "Food", sum.Category[0].Category)
	assert.Equal(t, 20.0, sum.Category[0].Total)
	require.Len(t, sum.Monthly, 2)
	assert.Equal(t, "2024-01", sum.Monthly[0].Month)
	assert.Equal(t, 400.0, sum.Monthly[0].Expense)
	assert.Equal(t, 0.0, sum.Monthly[1].Income)
}

func TestReportEndpointsGuard(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/total-by-category?category=Food&", "/overview?", "/reports-summary?"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, path+"email=a@x.com", "", nil).Code)
			assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, path+"email=a@x.com", tokenB, nil).Code)
			rec := ts.do(http.MethodGet, path, tokenA, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "email query parameter is required", message(t, rec))
		})
	}
}

func TestEmptyOverview(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/overview?email=a@x.com", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ov map[string]float64
	decode(t, rec, &ov)
	assert.Equal(t, map[string]float64{"totalIncome": 0, "totalExpense": 0, "balance": 0}, ov)
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	svc := services.NewTransactionService(memory.New())
	ts := newTestServerWith(t, svc, Options{RateLimitPerMinute: 1})
	body := map[string]any{"email": "a@x.com", "type": "income", "date": "2024-01-01", "amount": 1}

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/add-transaction", "", body).Code)
	rec := ts.do(http.MethodPost, "/add-transaction", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", message(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	svc := services.NewTransactionService(memory.New())
	ts := newTestServerWith(t, svc, Options{CORSAllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/transaction/abc", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProbeRejected(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/.git/config", "", nil).Code)
	assert.Equal(t, int64(1), ts.srv.detector.Probes())
}

func TestShutdownIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, ts.srv.Shutdown(ctx))
	assert.NoError(t, ts.srv.Shutdown(ctx))
}
