package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"findash/internal/amqp"
	"findash/internal/core"
	"findash/internal/dashboard"
	"findash/internal/middleware/ratelimit"
	"findash/internal/selection"
	"findash/internal/sources"
)

func ledger() []core.Transaction {
	return []core.Transaction{
		{ID: "A1B2C3D4E5F6", Date: core.MustDate("2024-01-01"), Description: "Salary", Amount: 500, Currency: "USD", Category: "Food", Source: "bank"},
		{ID: "B1B2C3D4E5F6", Date: core.MustDate("2024-01-02"), Description: "Lunch", Amount: -200, Currency: "USD", Category: "Food", Source: "card"},
		{ID: "C1B2C3D4E5F6", Date: core.MustDate("2024-01-03"), Description: "Gum", Amount: -50, Currency: "EUR", Category: "Misc", Source: "card"},
	}
}

// fakeSource serves ledger.csv and empty.csv and fails the other names
// with the error a real backend would return.
type fakeSource struct {
	mu      sync.Mutex
	fetches int
}

func (f *fakeSource) ListFiles(context.Context) ([]core.FileInfo, error) {
	return []core.FileInfo{{Name: "ledger.csv", TransactionsCount: 3}, {Name: "empty.csv"}}, nil
}

func (f *fakeSource) FetchTransactions(_ context.Context, name string) ([]core.Transaction, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	switch name {
	case "ledger.csv":
		return ledger(), nil
	case "empty.csv":
		return []core.Transaction{}, nil
	case "notes.txt":
		return nil, sources.ErrUnsupportedFile
	case "broken.csv":
		return nil, fmt.Errorf("%w: missing columns [amount]", sources.ErrInvalidStructure)
	case "dirty.csv":
		return nil, fmt.Errorf("%w: row 2: invalid date", sources.ErrDataIntegrity)
	case "locked.csv":
		return nil, errors.New("permission denied")
	}
	return nil, fmt.Errorf("%w: %s", sources.ErrFileNotFound, name)
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakePublisher struct {
	err  error
	msgs []*amqp.ImportFileMessage
}

func (p *fakePublisher) PublishImport(_ context.Context, msg *amqp.ImportFileMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func newTestServer(t *testing.T, mutate ...func(*Options)) (*Server, *fakeSource) {
	t.Helper()
	src := &fakeSource{}
	opts := Options{
		Source:  src,
		Monitor: dashboard.NewMonitor(src, nil, nil, dashboard.WithSelectionOptions(selection.WithDebounce(0))),
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv := NewServer(":0", opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, src
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/nowhere", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	if body := decode[map[string]string](t, rr); body["detail"] == "" {
		t.Fatalf("missing detail: %v", body)
	}
}

func TestReadyReportsBackendFailure(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("mongo unreachable") }
	})
	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodGet, "/files", "")
	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	for _, want := range []string{"http_requests_total", "cache_entries{type=\"conversions\"}", "rate_limit_hits_total"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestRawListFiles(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/files", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	files := decode[[]core.FileInfo](t, rr)
	if len(files) != 2 || files[0].Name != "ledger.csv" {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestRawTransactionsStatusMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		file string
		want int
	}{
		{"ledger.csv", http.StatusOK},
		{"empty.csv", http.StatusNoContent},
		{"notes.txt", http.StatusUnsupportedMediaType},
		{"missing.csv", http.StatusNotFound},
		{"broken.csv", http.StatusUnprocessableEntity},
		{"dirty.csv", http.StatusUnprocessableEntity},
		{"locked.csv", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/transactions/"+tt.file, "")
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			if tt.want >= 400 {
				body := decode[map[string]string](t, rr)
				if body["detail"] == "" {
					t.Errorf("expected detail in error body")
				}
			}
		})
	}
}

func TestRawTransactionsQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name   string
		query  string
		status int
		ids    int
	}{
		{"no filters", "", http.StatusOK, 3},
		{"income only", "?min_amount=1", http.StatusOK, 1},
		{"date window", "?start_date=2024-01-02&end_date=2024-01-02", http.StatusOK, 1},
		{"currency", "?currencies=eur", http.StatusOK, 1},
		{"repeated currency", "?currencies=EUR&currencies=USD", http.StatusOK, 3},
		{"source", "?source=card", http.StatusOK, 2},
		{"nothing matches", "?category=Rent", http.StatusNoContent, 0},
		{"bad date", "?start_date=01-02-2024", http.StatusUnprocessableEntity, 0},
		{"bad amount", "?max_amount=1.5", http.StatusUnprocessableEntity, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/transactions/ledger.csv"+tt.query, "")
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if tt.status == http.StatusOK {
				if got := decode[[]core.Transaction](t, rr); len(got) != tt.ids {
					t.Errorf("expected %d transactions, got %d", tt.ids, len(got))
				}
			}
		})
	}
}

func TestRawSummary(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/summary/ledger.csv", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[[]core.CurrencySummary](t, rr)
	if len(got) != 2 || got[0].Currency != "USD" || got[0].Balance != 300 {
		t.Errorf("unexpected summary %+v", got)
	}
}

func TestRawCacheServesRepeatedReads(t *testing.T) {
	srv, src := newTestServer(t)
	for i := 0; i < 3; i++ {
		if rr := do(t, srv, http.MethodGet, "/transactions/ledger.csv", ""); rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
	}
	if n := src.fetchCount(); n != 1 {
		t.Errorf("expected a single fetch, got %d", n)
	}
}

func TestDashboardFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPut, "/api/file", `{"filename":"ledger.csv"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("select file status=%d: %s", rr.Code, rr.Body.String())
	}
	state := decode[dashboard.State](t, rr)
	if state.Total != 3 || state.DisplayCurrency != "USD" {
		t.Fatalf("unexpected state %+v", state)
	}
	if len(state.Currencies) != 2 {
		t.Errorf("expected two currencies, got %v", state.Currencies)
	}

	rr = do(t, srv, http.MethodGet, "/api/transactions", "")
	rows := decode[[]dashboard.Row](t, rr)
	if len(rows) != 3 || rows[0].ID != "C1B2C3D4E5F6" {
		t.Fatalf("expected newest first, got %+v", rows)
	}

	rr = do(t, srv, http.MethodPost, "/api/interactions",
		`{"view":"list","action":"click","target":"B1B2C3D4E5F6"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("interaction status=%d: %s", rr.Code, rr.Body.String())
	}
	snap := decode[struct {
		Active []string `json:"active"`
	}](t, rr)
	if len(snap.Active) != 1 || snap.Active[0] != "B1B2C3D4E5F6" {
		t.Errorf("unexpected active set %v", snap.Active)
	}

	rr = do(t, srv, http.MethodGet, "/api/categories", "")
	cats := decode[dashboard.Categories](t, rr)
	if len(cats.Expense) != 2 || !cats.Expense[0].Active {
		t.Errorf("expected Food expense slice active: %+v", cats.Expense)
	}

	rr = do(t, srv, http.MethodDelete, "/api/selection/active", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("clear selection status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPut, "/api/filter", `{"type":"expense"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("filter status=%d: %s", rr.Code, rr.Body.String())
	}
	if state = decode[dashboard.State](t, rr); state.Filtered != 2 {
		t.Errorf("expected 2 expenses, got %d", state.Filtered)
	}

	rr = do(t, srv, http.MethodPost, "/api/filter/currencies/eur", "")
	if state = decode[dashboard.State](t, rr); state.Filtered != 1 {
		t.Errorf("expected 1 EUR expense, got %d", state.Filtered)
	}

	rr = do(t, srv, http.MethodPut, "/api/timeline", `{"points":1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("timeline status=%d: %s", rr.Code, rr.Body.String())
	}
	tl := decode[dashboard.Timeline](t, rr)
	if tl.Currency != "EUR" || len(tl.Buckets) != 1 || tl.Buckets[0].Expense != 0.5 {
		t.Errorf("unexpected timeline %+v", tl)
	}

	rr = do(t, srv, http.MethodPost, "/api/interactions",
		`{"view":"timeline","action":"click","target":"0"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("timeline click status=%d: %s", rr.Code, rr.Body.String())
	}
	snap = decode[struct {
		Active []string `json:"active"`
	}](t, rr)
	if len(snap.Active) != 1 {
		t.Errorf("expected the single EUR expense locked, got %v", snap.Active)
	}
}

func TestDashboardRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodPut, "/api/file", `{"filename":"ledger.csv"}`)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"empty file body", http.MethodPut, "/api/file", "", http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/api/file", `{"file":"x"}`, http.StatusBadRequest},
		{"bad filter type", http.MethodPut, "/api/filter", `{"type":"transfer"}`, http.StatusBadRequest},
		{"inverted range", http.MethodPut, "/api/filter", `{"startDate":"2024-02-01","endDate":"2024-01-01"}`, http.StatusBadRequest},
		{"too many points", http.MethodPut, "/api/timeline", `{"points":11}`, http.StatusBadRequest},
		{"bad currency", http.MethodPut, "/api/timeline", `{"currency":"EURO"}`, http.StatusBadRequest},
		{"unknown view", http.MethodPost, "/api/interactions", `{"view":"map","action":"click"}`, http.StatusBadRequest},
		{"unknown bucket", http.MethodPost, "/api/interactions", `{"view":"timeline","action":"hover","target":"12/31"}`, http.StatusNotFound},
		{"unknown channel", http.MethodPost, "/api/selection/hover", `{"id":"x"}`, http.StatusBadRequest},
		{"empty selection", http.MethodPost, "/api/selection/active", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestImportEndpoint(t *testing.T) {
	t.Run("disabled without publisher", func(t *testing.T) {
		srv, _ := newTestServer(t)
		rr := do(t, srv, http.MethodPost, "/api/files/ledger.csv/import", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
	})

	pub := &fakePublisher{}
	srv, _ := newTestServer(t, func(o *Options) { o.Publisher = pub })

	rr := do(t, srv, http.MethodPost, "/api/files/ledger.csv/import", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode[importAccepted](t, rr)
	if len(pub.msgs) != 1 || pub.msgs[0].JobID.String() != body.JobID || body.Filename != "ledger.csv" {
		t.Errorf("unexpected publish %+v / %+v", pub.msgs, body)
	}

	if rr := do(t, srv, http.MethodPost, "/api/files/notes.txt/import", ""); rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", rr.Code)
	}

	pub.err = amqp.ErrCircuitOpen
	if rr := do(t, srv, http.MethodPost, "/api/files/ledger.csv/import", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the queue is down, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/filter", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing allow-origin header")
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/files?name=../../etc/passwd", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) {
		o.RateLimit = ratelimit.Config{RequestsPerSecond: 0.001, Burst: 2}
	})
	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header")
	}
}
