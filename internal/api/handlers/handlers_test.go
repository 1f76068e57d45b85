package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/browser/browsertest"
	"github.com/jmylchreest/side-api/internal/cache"
	"github.com/jmylchreest/side-api/internal/config"
	"github.com/jmylchreest/side-api/internal/models"
	"github.com/jmylchreest/side-api/internal/service"
	"github.com/jmylchreest/side-api/internal/session"
	"github.com/jmylchreest/side-api/internal/settings"
	"github.com/jmylchreest/side-api/internal/vendor"
)

func TestMain(m *testing.M) {
	UseErrorEnvelope()
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubAdapter answers every operation locally.
type stubAdapter struct {
	mu      sync.Mutex
	calls   map[string]int
	shopErr error
	opErr   error
	query   vendor.ListQuery
	update  models.UpdateRequest
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{calls: make(map[string]int)}
}

func (a *stubAdapter) record(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[op]++
}

func (a *stubAdapter) count(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

func (a *stubAdapter) Name() string                        { return config.Baemin }
func (a *stubAdapter) Headers([]models.Cookie) http.Header { return nil }

func (a *stubAdapter) ShopInfo(ctx context.Context, c vendor.Client) (*models.ShopInfo, error) {
	a.record("shopInfo")
	if a.shopErr != nil {
		return nil, a.shopErr
	}
	return &models.ShopInfo{ShopID: "14", Name: "Kimbap"}, nil
}

func (a *stubAdapter) MenuList(ctx context.Context, c vendor.Client, shop *models.ShopInfo, q vendor.ListQuery) ([]models.Item, error) {
	a.record("menuList")
	a.query = q
	return []models.Item{{ID: "m1", Name: "Tuna kimbap"}}, a.opErr
}

func (a *stubAdapter) OptionList(ctx context.Context, c vendor.Client, shop *models.ShopInfo, q vendor.ListQuery) ([]models.Item, error) {
	a.record("optionList")
	a.query = q
	return []models.Item{{ID: "o1", Name: "Extra cheese"}}, a.opErr
}

func (a *stubAdapter) Catalog(ctx context.Context, c vendor.Client, shop *models.ShopInfo) (*models.Catalog, error) {
	a.record("catalog")
	return &models.Catalog{MenuList: []models.Item{{ID: "m1"}}, OptionList: []models.Item{{ID: "o1"}}}, nil
}

func (a *stubAdapter) Soldout(ctx context.Context, c vendor.Client, shop *models.ShopInfo, req models.UpdateRequest) (*models.BatchResult, error) {
	a.record("soldout")
	a.update = req
	if a.opErr != nil {
		return nil, a.opErr
	}
	return models.NewBatchResult(
		models.UpdateResult{Success: true},
		models.UpdateResult{Success: false, Items: []models.ItemResult{{ID: "o1", Success: false}}},
	), nil
}

func (a *stubAdapter) Active(ctx context.Context, c vendor.Client, shop *models.ShopInfo, req models.UpdateRequest) (*models.BatchResult, error) {
	a.record("active")
	a.update = req
	return models.NewBatchResult(models.UpdateResult{Success: true}, models.UpdateResult{Success: true}), nil
}

func (a *stubAdapter) TemporaryStop(ctx context.Context, c vendor.Client, shop *models.ShopInfo, w vendor.StopWindow) (*models.StopResult, error) {
	a.record("temporaryStop")
	return &models.StopResult{Success: true, Message: w.From + "-" + w.To}, nil
}

func (a *stubAdapter) ReleaseStop(ctx context.Context, c vendor.Client, shop *models.ShopInfo) (*models.StopResult, error) {
	a.record("releaseStop")
	return &models.StopResult{Success: true}, nil
}

// fakeAuth records whether each login was skipped by the cache.
type fakeAuth struct {
	mu     sync.Mutex
	cached []bool
	err    error
}

func (f *fakeAuth) Ensure(ctx context.Context, vendor string, page browser.Page, cached bool) (session.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = append(f.cached, cached)
	if cached {
		return session.OutcomeCached, nil
	}
	if f.err != nil {
		return 0, f.err
	}
	return session.OutcomeReplayed, nil
}

func (f *fakeAuth) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.cached...)
}

type fixture struct {
	api     humatest.TestAPI
	adapter *stubAdapter
	auth    *fakeAuth
	pool    *browser.Pool
	store   *settings.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, api := humatest.New(t)

	f := &fixture{
		api:     api,
		adapter: newStubAdapter(),
		auth:    &fakeAuth{},
		pool:    browser.NewPool(browsertest.NewDriver(nil), browser.PoolOptions{MaxContexts: 2}, testLogger()),
		store:   settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), testLogger()),
	}
	t.Cleanup(func() { f.pool.Close() })

	c := cache.New(cache.DefaultTTL, testLogger(), cache.WithDedupe(true))
	svc := service.NewVendorService(f.adapter, c, time.Second, testLogger())
	NewVendorHandler(svc, testLogger()).Register(api, f.pool, f.auth)
	NewSettingsHandler(f.store, testLogger()).Register(api)
	NewHealthHandler(f.pool, c, []string{config.Baemin}).Register(api)
	return f
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, body []byte) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("invalid response %q: %v", body, err)
	}
	return e
}

func TestVendorHandler_InitCacheForcesLogin(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		resp := f.api.Get("/baemin/get-shop-info")
		if resp.Code != http.StatusOK {
			t.Fatalf("get-shop-info status = %d: %s", resp.Code, resp.Body.String())
		}
		e := decode(t, resp.Body.Bytes())
		var ov models.Overview
		if err := json.Unmarshal(e.Data, &ov); err != nil {
			t.Fatal(err)
		}
		if !e.Success || ov.ShopInfo.ShopID != "14" || len(ov.MenuList.MenuList) != 1 {
			t.Errorf("get-shop-info = %s", resp.Body.String())
		}
	}

	resp := f.api.Get("/baemin/initCache")
	e := decode(t, resp.Body.Bytes())
	if !e.Success || string(e.Data) != `"Baemin cache initialized"` {
		t.Errorf("initCache = %s", resp.Body.String())
	}

	if resp := f.api.Get("/baemin/get-shop-info"); resp.Code != http.StatusOK {
		t.Fatalf("get-shop-info after reset status = %d", resp.Code)
	}

	want := []bool{false, true, false}
	got := f.auth.calls()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("login cached flags = %v, want %v", got, want)
	}
	if f.adapter.count("shopInfo") != 2 || f.adapter.count("catalog") != 2 {
		t.Errorf("adapter calls = %v, want a refetch after initCache", f.adapter.calls)
	}
}

func TestVendorHandler_InitCacheSkipsBrowser(t *testing.T) {
	f := newFixture(t)

	if resp := f.api.Get("/baemin/initCache"); resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if len(f.auth.calls()) != 0 {
		t.Error("initCache must not log in")
	}
	if stats := f.pool.Stats(); stats.Created != 0 {
		t.Errorf("pool stats = %+v, initCache must not take a page", stats)
	}
}

func TestVendorHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture)
		method     string
		path       string
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "login failed",
			setup:      func(f *fixture) { f.auth.err = fmt.Errorf("%w: bad password", session.ErrAuthFailed) },
			method:     http.MethodGet,
			path:       "/baemin/get-menu-list",
			wantStatus: http.StatusUnauthorized,
			wantError:  "Login failed",
		},
		{
			name:       "shop not found",
			setup:      func(f *fixture) { f.adapter.shopErr = vendor.ErrShopNotFound },
			method:     http.MethodGet,
			path:       "/baemin/get-shop-info",
			wantStatus: http.StatusNotFound,
			wantError:  ShopNotFoundMessage,
		},
		{
			name:       "stop window out of order",
			method:     http.MethodPost,
			path:       "/baemin/temporary-stop",
			body:       map[string]any{"from": "209912312300", "to": "209912310100"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "vendor failure",
			setup:      func(f *fixture) { f.adapter.opErr = errors.New("connection reset") },
			method:     http.MethodPost,
			path:       "/baemin/soldout",
			body:       map[string]any{"menuList": []string{"m1"}},
			wantStatus: http.StatusInternalServerError,
			wantError:  "connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			var args []any
			if tt.body != nil {
				args = append(args, tt.body)
			}
			resp := f.api.Do(tt.method, tt.path, args...)
			if resp.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", resp.Code, tt.wantStatus, resp.Body.String())
			}
			e := decode(t, resp.Body.Bytes())
			if e.Success || e.Error == "" {
				t.Errorf("body = %s, want an error envelope", resp.Body.String())
			}
			if tt.wantError != "" && e.Error != tt.wantError {
				t.Errorf("error = %q, want %q", e.Error, tt.wantError)
			}
			if stats := f.pool.Stats(); stats.Loaned != 0 {
				t.Errorf("page still loaned after error: %+v", stats)
			}
		})
	}
}

func TestVendorHandler_Lists(t *testing.T) {
	tests := []struct {
		path     string
		wantOp   string
		wantName string
		wantPage int
	}{
		{"/baemin/get-menu-list?page=2", "menuList", "", 2},
		{"/baemin/get-menu-list?menuName=Tuna&page=2", "menuList", "Tuna", 0},
		{"/baemin/get-option-list?optionName=cheese", "optionList", "cheese", 0},
		{"/baemin/get-option-list?page=3", "optionList", "", 3},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := newFixture(t)
			resp := f.api.Get(tt.path)
			if resp.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
			}
			var e struct {
				Success bool          `json:"success"`
				Data    []models.Item `json:"data"`
			}
			if err := json.Unmarshal(resp.Body.Bytes(), &e); err != nil {
				t.Fatal(err)
			}
			if !e.Success || len(e.Data) != 1 {
				t.Errorf("body = %s", resp.Body.String())
			}
			if f.adapter.count(tt.wantOp) != 1 {
				t.Errorf("calls = %v, want %s", f.adapter.calls, tt.wantOp)
			}
			if f.adapter.query.Name != tt.wantName || f.adapter.query.Page != tt.wantPage {
				t.Errorf("query = %+v", f.adapter.query)
			}
		})
	}
}

func TestVendorHandler_Updates(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Post("/baemin/soldout", map[string]any{
		"menuList":    []any{"m1", map[string]any{"menuId": "m2"}},
		"optionList":  []any{"o1"},
		"restockedAt": "2025-03-05 09:00:00",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("soldout status = %d: %s", resp.Code, resp.Body.String())
	}
	var soldout struct {
		Success bool               `json:"success"`
		Data    models.BatchResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &soldout); err != nil {
		t.Fatal(err)
	}
	if soldout.Success || soldout.Data.FailCount != 1 {
		t.Errorf("soldout = %s, want partial failure", resp.Body.String())
	}
	if len(f.adapter.update.MenuList) != 2 || f.adapter.update.RestockedAt == "" {
		t.Errorf("update request = %+v", f.adapter.update)
	}
	if got := f.adapter.update.MenuList[1].String("menuId"); got != "m2" {
		t.Errorf("object ref id = %q", got)
	}

	resp = f.api.Post("/baemin/active", map[string]any{"menuList": []any{"m1"}})
	if e := decode(t, resp.Body.Bytes()); resp.Code != http.StatusOK || !e.Success {
		t.Errorf("active = %d %s", resp.Code, resp.Body.String())
	}
}

func TestVendorHandler_Stops(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Post("/baemin/temporary-stop", map[string]any{"to": "209912312300"})
	if resp.Code != http.StatusOK {
		t.Fatalf("temporary-stop status = %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "20991231230000") {
		t.Errorf("temporary-stop = %s, want normalized end", resp.Body.String())
	}

	resp = f.api.Post("/baemin/release-stop")
	if e := decode(t, resp.Body.Bytes()); resp.Code != http.StatusOK || !e.Success {
		t.Errorf("release-stop = %d %s", resp.Code, resp.Body.String())
	}
	if f.adapter.count("temporaryStop") != 1 || f.adapter.count("releaseStop") != 1 {
		t.Errorf("calls = %v", f.adapter.calls)
	}
}

func TestSettingsHandler(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Get("/settings")
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != "null" {
		t.Fatalf("GET /settings = %d %q, want null", resp.Code, resp.Body.String())
	}

	doc := map[string]any{"baemin": map[string]any{"soldout": []any{"m1"}}, "interval": 5.0}
	resp = f.api.Post("/settings", doc)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "settings saved") {
		t.Fatalf("POST /settings = %d %s", resp.Code, resp.Body.String())
	}

	resp = f.api.Get("/settings")
	var got map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(got) != fmt.Sprint(doc) {
		t.Errorf("GET /settings = %v, want %v", got, doc)
	}
}

func TestSettingsHandler_CorruptFileReadsNull(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.store.Path(), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp := f.api.Get("/settings")
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != "null" {
		t.Errorf("GET /settings = %d %q, want null", resp.Code, resp.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Get("/")
	if resp.Code != http.StatusOK || resp.Body.String() != Banner {
		t.Errorf("GET / = %d %q", resp.Code, resp.Body.String())
	}

	resp = f.api.Get("/health")
	var health HealthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Pool == nil || health.Pool.MaxSize != 2 || health.Cache == nil {
		t.Errorf("health = %+v", health)
	}
	if len(health.Vendors) != 1 || health.Vendors[0] != config.Baemin {
		t.Errorf("vendors = %v", health.Vendors)
	}
}
