package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fiscalflow/internal/core"
	"fiscalflow/internal/entity"
	"fiscalflow/internal/kv/memory"
	"fiscalflow/internal/log"
	"fiscalflow/internal/middleware/ratelimit"
	"fiscalflow/internal/services"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := entity.NewHandle(memory.New(), entity.WithLogger(discard))
	svc := services.New(h, services.Options{
		Now: func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) },
	})
	srv := NewServer(":0", svc, Options{
		Logger:    log.New(log.Config{Handler: discard.Handler()}),
		RateLimit: ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000},
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) (int, apiResponse) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, target, rd))

	var resp apiResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: body %q is not an envelope: %v", method, target, rr.Body.String(), err)
	}
	return rr.Code, resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", resp.Data, err)
	}
	return v
}

func TestSettingsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodGet, "/api/settings", "")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("GET settings = %d %+v", code, resp)
	}
	if got := decodeData[core.UserSettings](t, resp); got != core.DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", got)
	}

	code, resp = do(t, srv, http.MethodPost, "/api/settings", `{"currency":"EUR","monthlyBudget":1500.5}`)
	if code != http.StatusOK {
		t.Fatalf("POST settings = %d %+v", code, resp)
	}
	got := decodeData[core.UserSettings](t, resp)
	if got.Currency != core.EUR || got.MonthlyBudget != 1500.5 {
		t.Errorf("updated settings = %+v", got)
	}

	tests := []struct {
		body string
		want int
	}{
		{`{"currency":"GBP"}`, http.StatusUnprocessableEntity},
		{`{"theme":"dark"}`, http.StatusUnprocessableEntity},
		{`[1,2]`, http.StatusUnprocessableEntity},
		{``, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		code, resp := do(t, srv, http.MethodPost, "/api/settings", tt.body)
		if code != tt.want || resp.Success || resp.Error == "" {
			t.Errorf("POST settings %q = %d %+v, want %d with error", tt.body, code, resp, tt.want)
		}
	}
}

func TestExpenseLifecycle(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodPost, "/api/expenses",
		`{"amount":12.5,"category":"Food","description":"lunch","id":"ignored"}`)
	if code != http.StatusOK {
		t.Fatalf("POST expense = %d %+v", code, resp)
	}
	created := decodeData[core.Expense](t, resp)
	if created.ID == "" || created.ID == "ignored" || created.Currency != core.INR || created.Date != "2025-03-04T05:06:07.000Z" {
		t.Fatalf("created = %+v", created)
	}

	for i := range 3 {
		body := `{"amount":` + string(rune('1'+i)) + `,"category":"Bills"}`
		if code, resp := do(t, srv, http.MethodPost, "/api/expenses", body); code != http.StatusOK {
			t.Fatalf("POST %s = %d %+v", body, code, resp)
		}
	}

	code, resp = do(t, srv, http.MethodGet, "/api/expenses?limit=3", "")
	if code != http.StatusOK {
		t.Fatalf("GET expenses = %d", code)
	}
	page := decodeData[entity.Page[core.Expense]](t, resp)
	if len(page.Items) != 3 || page.Next == "" || page.Items[0].ID != created.ID {
		t.Fatalf("first page = %+v", page)
	}
	_, resp = do(t, srv, http.MethodGet, "/api/expenses?limit=3&cursor="+page.Next, "")
	page = decodeData[entity.Page[core.Expense]](t, resp)
	if len(page.Items) != 1 || page.Next != "" {
		t.Fatalf("second page = %+v", page)
	}

	code, resp = do(t, srv, http.MethodPut, "/api/expenses/"+created.ID, `{"description":"dinner"}`)
	if code != http.StatusOK {
		t.Fatalf("PUT = %d %+v", code, resp)
	}
	if updated := decodeData[core.Expense](t, resp); updated.Description != "dinner" || updated.Amount != 12.5 {
		t.Errorf("updated = %+v", updated)
	}

	code, _ = do(t, srv, http.MethodPut, "/api/expenses/nope", `{"description":"x"}`)
	if code != http.StatusNotFound {
		t.Errorf("PUT missing = %d, want 404", code)
	}
	code, _ = do(t, srv, http.MethodPut, "/api/expenses/"+created.ID, `{"amount":-1}`)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("PUT negative amount = %d, want 422", code)
	}

	code, resp = do(t, srv, http.MethodDelete, "/api/expenses/"+created.ID, "")
	del := decodeData[struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}](t, resp)
	if code != http.StatusOK || del.ID != created.ID || !del.Deleted {
		t.Errorf("DELETE = %d %+v", code, del)
	}
	_, resp = do(t, srv, http.MethodDelete, "/api/expenses/"+created.ID, "")
	if del := decodeData[struct {
		Deleted bool `json:"deleted"`
	}](t, resp); del.Deleted {
		t.Error("second DELETE reported deleted")
	}

	code, resp = do(t, srv, http.MethodDelete, "/api/expenses/all", "")
	wiped := decodeData[struct {
		DeletedCount int `json:"deletedCount"`
	}](t, resp)
	if code != http.StatusOK || wiped.DeletedCount != 3 {
		t.Errorf("DELETE all = %d %+v, want 3", code, wiped)
	}

	_, resp = do(t, srv, http.MethodGet, "/api/expenses", "")
	if page := decodeData[entity.Page[core.Expense]](t, resp); len(page.Items) != 0 {
		t.Errorf("after wipe = %+v", page)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing amount", `{"category":"Food"}`, http.StatusUnprocessableEntity},
		{"unknown category", `{"amount":1,"category":"Yachts"}`, http.StatusUnprocessableEntity},
		{"trailing data", `{"amount":1,"category":"Food"} {}`, http.StatusUnprocessableEntity},
		{"too large", `{"amount":1,"category":"Food","description":"` + strings.Repeat("x", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
		{"decimal string", `{"amount":"3,75","category":"Food"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, resp := do(t, srv, http.MethodPost, "/api/expenses", tt.body); code != tt.want {
				t.Errorf("status = %d (%s), want %d", code, resp.Error, tt.want)
			}
		})
	}
}

func TestRouting(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		method, target string
		want           int
		allow          string
	}{
		{http.MethodPatch, "/api/expenses", http.StatusMethodNotAllowed, "GET, POST"},
		{http.MethodGet, "/api/expenses/abc", http.StatusMethodNotAllowed, "PUT, DELETE"},
		{http.MethodDelete, "/api/settings", http.StatusMethodNotAllowed, "GET, POST"},
		{http.MethodGet, "/api/unknown", http.StatusNotFound, ""},
		{http.MethodGet, "/healthz", http.StatusOK, ""},
		{http.MethodGet, "/readyz", http.StatusOK, ""},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.target, nil))
		if rr.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rr.Code, tt.want)
		}
		if rr.Header().Get("Allow") != tt.allow {
			t.Errorf("%s %s Allow = %q, want %q", tt.method, tt.target, rr.Header().Get("Allow"), tt.allow)
		}
		if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s %s missing middleware headers", tt.method, tt.target)
		}
	}
}

func TestReadinessAndMetrics(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.New(entity.NewHandle(memory.New(), entity.WithLogger(discard)), services.Options{})
	srv := NewServer(":0", svc, Options{
		Logger: log.New(log.Config{Handler: discard.Handler()}),
		Ready:  func(context.Context) error { return errors.New("down") },
	})
	defer srv.Shutdown(context.Background())

	code, resp := do(t, srv, http.MethodGet, "/readyz", "")
	if code != http.StatusServiceUnavailable || resp.Success {
		t.Errorf("readyz = %d %+v, want 503", code, resp)
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "http_requests_total 2") {
		t.Errorf("metrics missing request count:\n%s", rr.Body.String())
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.New(entity.NewHandle(memory.New(), entity.WithLogger(discard)), services.Options{})
	srv := NewServer(":0", svc, Options{
		Logger:    log.New(log.Config{Handler: discard.Handler()}),
		RateLimit: ratelimit.Config{RequestsPerSecond: 0.01, Burst: 1},
	})
	defer srv.Shutdown(context.Background())

	if code, _ := do(t, srv, http.MethodPost, "/api/settings", `{"onboarded":true}`); code != http.StatusOK {
		t.Fatalf("first POST = %d", code)
	}
	code, resp := do(t, srv, http.MethodPost, "/api/settings", `{"onboarded":true}`)
	if code != http.StatusTooManyRequests || resp.Success {
		t.Errorf("second POST = %d %+v, want 429", code, resp)
	}
	if code, _ := do(t, srv, http.MethodGet, "/api/settings", ""); code != http.StatusOK {
		t.Errorf("GET after limit = %d, want reads unaffected", code)
	}
}
