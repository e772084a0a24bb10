package server_test

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

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/server"
	"github.com/empowa-tech/marketplace/internal/server/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type listings struct {
	page     domain.Page[domain.PolicyAssetListing]
	err      error
	lastArgs domain.QueryArgs
	assets   map[primitive.ObjectID]domain.PolicyAsset
}

func (l *listings) Query(_ context.Context, args domain.QueryArgs) (domain.Page[domain.PolicyAssetListing], error) {
	l.lastArgs = args
	return l.page, l.err
}

func (l *listings) GetAsset(_ context.Context, id primitive.ObjectID) (domain.PolicyAsset, error) {
	a, ok := l.assets[id]
	if !ok {
		return domain.PolicyAsset{}, domain.ErrNotFound
	}
	return a, nil
}

type activities struct {
	err error
}

func (a *activities) Create(_ context.Context, in domain.ActivityInput) (domain.SaleActivity, error) {
	if a.err != nil {
		return domain.SaleActivity{}, a.err
	}
	act := domain.NewSaleActivity(in, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	act.ID = primitive.NewObjectID()
	return act, nil
}

type configs struct{}

func (configs) MarketplaceConfig(context.Context) (domain.MarketplaceConfig, error) {
	return domain.MarketplaceConfig{Name: domain.MarketplaceConfigName, ScriptAddress: "addr1script"}, nil
}

type runner struct {
	err error
}

func (r runner) RunOnce(context.Context) (domain.RunReport, error) {
	return domain.RunReport{RunID: "r1", Scanned: 2, Completed: 1}, r.err
}

type limiter struct {
	allowed int
	calls   int
}

func (l *limiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.calls <= l.allowed, nil
}

type env struct {
	router   http.Handler
	listings *listings
}

func newEnv(t *testing.T, opts ...func(*server.Handlers)) env {
	t.Helper()
	log := discardLogger()
	l := &listings{assets: map[primitive.ObjectID]domain.PolicyAsset{}}
	h := server.Handlers{
		Health:   handler.NewHealthHandler(nil, log),
		Status:   handler.NewStatusHandler("api", nil, nil),
		Listings: handler.NewListingHandler(l, log),
		Activity: handler.NewActivityHandler(&activities{}, log),
		Config:   handler.NewConfigHandler(configs{}, log),
		Sales:    handler.NewSalesHandler(runner{}, log),
	}
	for _, o := range opts {
		o(&h)
	}
	cfg := server.Config{CORSOrigins: []string{"https://market.example"}}
	return env{router: server.NewRouter(cfg, h, nil, nil, log), listings: l}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	msg, _ := body["error"].(string)
	return msg
}

func TestQueryListings(t *testing.T) {
	e := newEnv(t)
	e.listings.page = domain.Page[domain.PolicyAssetListing]{
		Results: []domain.PolicyAssetListing{{PolicyAsset: domain.PolicyAsset{Asset: "polA"}}},
		Total:   41,
	}

	w := do(t, e.router, http.MethodPost, "/api/policy-assets/query",
		`{"page":2,"limit":20,"and":[{"key":"extend.is_sale","value":"true","operator":"EQUALS"}],"sort":[{"by":"extend.price","type":"ASC"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var got struct {
		Results []map[string]any `json:"results"`
		Total   int64            `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Total != 41 || len(got.Results) != 1 || got.Results[0]["asset"] != "polA" {
		t.Errorf("body = %s", w.Body)
	}
	args := e.listings.lastArgs
	if args.Page != 2 || args.Limit != 20 || len(args.And) != 1 || args.And[0].Operator != domain.OpEquals {
		t.Errorf("args = %+v", args)
	}
}

func TestQueryListingsErrors(t *testing.T) {
	e := newEnv(t)

	if w := do(t, e.router, http.MethodPost, "/api/policy-assets/query", `{"page":`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", w.Code)
	}
	if w := do(t, e.router, http.MethodPost, "/api/policy-assets/query", `{"pages":1}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d", w.Code)
	}

	e.listings.err = errors.New("connection reset")
	w := do(t, e.router, http.MethodPost, "/api/policy-assets/query", `{}`)
	if w.Code != http.StatusInternalServerError || errorBody(t, w) != "query failed" {
		t.Errorf("store failure = %d %s", w.Code, w.Body)
	}
}

func TestGetAsset(t *testing.T) {
	e := newEnv(t)
	id := primitive.NewObjectID()
	e.listings.assets[id] = domain.PolicyAsset{ID: id, Asset: "polA"}

	if w := do(t, e.router, http.MethodGet, "/api/policy-assets/"+id.Hex(), ""); w.Code != http.StatusOK {
		t.Errorf("existing asset status = %d", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/api/policy-assets/"+primitive.NewObjectID().Hex(), ""); w.Code != http.StatusNotFound {
		t.Errorf("missing asset status = %d", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/api/policy-assets/not-an-id", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
}

func TestCreateActivity(t *testing.T) {
	body := `{"price":"12.5","type":"SELL","receiver_address":"addr1","ada_transaction_hash":"` +
		strings.Repeat("a", 64) + `","policy_asset":"` + primitive.NewObjectID().Hex() + `"}`

	e := newEnv(t)
	w := do(t, e.router, http.MethodPost, "/api/activities", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var got domain.SaleActivity
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.SaleStatusCreated || got.Type != domain.SaleTypeSell {
		t.Errorf("activity = %+v", got)
	}

	e = newEnv(t, func(h *server.Handlers) {
		h.Activity = handler.NewActivityHandler(&activities{err: domain.ErrInvalidPolicyAsset}, discardLogger())
	})
	w = do(t, e.router, http.MethodPost, "/api/activities", body)
	if w.Code != http.StatusUnprocessableEntity || errorBody(t, w) != "invalid policy asset provided" {
		t.Errorf("unknown asset = %d %s", w.Code, w.Body)
	}

	e = newEnv(t, func(h *server.Handlers) {
		h.Activity = handler.NewActivityHandler(&activities{err: domain.ErrInvalidInput}, discardLogger())
	})
	if w := do(t, e.router, http.MethodPost, "/api/activities", body); w.Code != http.StatusBadRequest {
		t.Errorf("invalid input status = %d", w.Code)
	}
}

func TestMarketplaceConfig(t *testing.T) {
	e := newEnv(t)
	w := do(t, e.router, http.MethodGet, "/api/marketplace-config", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"script_address":"addr1script"`) {
		t.Errorf("config = %d %s", w.Code, w.Body)
	}
}

func TestProcessSales(t *testing.T) {
	e := newEnv(t)
	w := do(t, e.router, http.MethodPost, "/api/sales/process", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"run_id":"r1"`) {
		t.Errorf("run = %d %s", w.Code, w.Body)
	}

	e = newEnv(t, func(h *server.Handlers) {
		h.Sales = handler.NewSalesHandler(runner{err: domain.ErrRunInProgress}, discardLogger())
	})
	if w := do(t, e.router, http.MethodPost, "/api/sales/process", ""); w.Code != http.StatusConflict {
		t.Errorf("overlapping run status = %d", w.Code)
	}
}

func TestHealthReportsFailingDependency(t *testing.T) {
	e := newEnv(t, func(h *server.Handlers) {
		h.Health = handler.NewHealthHandler(map[string]handler.Check{
			"mongo": func(context.Context) error { return nil },
			"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
		}, discardLogger())
	})
	w := do(t, e.router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"redis":"down"`) || !strings.Contains(w.Body.String(), `"mongo":"ok"`) {
		t.Errorf("body = %s", w.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/policy-assets/query", nil)
	req.Header.Set("Origin", "https://market.example")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://market.example" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/policy-assets/query", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	log := discardLogger()
	l := &listings{}
	h := server.Handlers{
		Health:   handler.NewHealthHandler(nil, log),
		Listings: handler.NewListingHandler(l, log),
		Activity: handler.NewActivityHandler(&activities{}, log),
		Config:   handler.NewConfigHandler(configs{}, log),
	}
	lim := &limiter{allowed: 2}
	router := server.NewRouter(server.Config{RatePerMinute: 2}, h, lim, nil, log)

	for i := 0; i < 2; i++ {
		if w := do(t, router, http.MethodGet, "/api/marketplace-config", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := do(t, router, http.MethodGet, "/api/marketplace-config", "")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "60" {
		t.Errorf("third request = %d retry-after %q", w.Code, w.Header().Get("Retry-After"))
	}
	if w := do(t, router, http.MethodGet, "/api/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must bypass the limiter, got %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/sales/process", ""); w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("unmounted trigger status = %d", w.Code)
	}
}
