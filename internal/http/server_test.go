package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/repository"
	"tiffin/internal/repository/memory"
)

type publishedSync struct {
	userID string
	year   int
	month  time.Month
	reason string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedSync
}

func (p *fakePublisher) PublishLogSync(_ context.Context, userID string, year int, month time.Month, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedSync{userID, year, month, reason})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	events *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	events := &fakePublisher{}
	logger := applog.New(applog.Config{Level: applog.ParseLevel("error"), Output: io.Discard})
	srv := NewServer(":0", Deps{Store: store, Events: events}, Options{
		RateLimitPerMinute: 1000,
		Logger:             logger,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &fixture{t: t, srv: srv, store: store, events: events}
}

func (f *fixture) do(method, path, uid string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			f.t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if uid != "" {
		req.Header.Set(UserHeader, uid)
	}
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rr, req)
	return rr
}

// register creates uid through the API and optionally approves it directly
// in the store.
func (f *fixture) register(uid string, approve bool) {
	f.t.Helper()
	rr := f.do(http.MethodPost, "/api/accounts", uid, map[string]string{"email": uid + "@example.com"})
	if rr.Code != http.StatusCreated {
		f.t.Fatalf("register %s: %d %s", uid, rr.Code, rr.Body.String())
	}
	if approve {
		if err := f.store.SetApproval(context.Background(), uid, true); err != nil {
			f.t.Fatalf("approve %s: %v", uid, err)
		}
	}
}

func (f *fixture) makeAdmin(uid string) {
	f.t.Helper()
	f.register(uid, true)
	if err := f.store.SetRole(context.Background(), uid, core.RoleAdmin); err != nil {
		f.t.Fatalf("set role: %v", err)
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthReadyAndMetrics(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := f.do(http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	rr := f.do(http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics body missing request counter: %s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	store := memory.New()
	srv := NewServer(":0", Deps{
		Store: store,
		Ready: func(context.Context) error { return errors.New("database is locked") },
	}, Options{Logger: applog.New(applog.Config{Output: io.Discard})})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	if body["status"] != "not_ready" {
		t.Fatalf("body = %v", body)
	}
}

func TestRegistrationAndApprovalGate(t *testing.T) {
	f := newFixture(t)

	if rr := f.do(http.MethodGet, "/api/me", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/me", "ghost", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: %d", rr.Code)
	}

	f.register("u1", false)
	if rr := f.do(http.MethodPost, "/api/accounts", "u1", map[string]string{"email": "u1@example.com"}); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", rr.Code)
	}
	if rr := f.do(http.MethodPost, "/api/accounts", "u2", map[string]string{"email": "not-an-email"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad email: %d", rr.Code)
	}

	rr := f.do(http.MethodGet, "/api/me", "u1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: %d", rr.Code)
	}
	me := decode[core.UserProfile](t, rr)
	if me.IsApproved || me.Role != core.RoleUser || me.Pricing != core.DefaultPriceTable {
		t.Fatalf("new profile = %+v", me)
	}

	// Pending users may change settings but not log.
	rr = f.do(http.MethodPut, "/api/me/settings", "u1", map[string]string{"uiTheme": "dark", "reminderTime": "20:30"})
	if rr.Code != http.StatusOK {
		t.Fatalf("settings: %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(http.MethodPut, "/api/me/settings", "u1", map[string]string{"uiTheme": "neon"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad theme: %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/logs", "u1", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("pending logs: %d", rr.Code)
	}

	if err := f.store.SetApproval(context.Background(), "u1", true); err != nil {
		t.Fatal(err)
	}
	if rr := f.do(http.MethodGet, "/api/logs", "u1", nil); rr.Code != http.StatusOK {
		t.Fatalf("approved logs: %d", rr.Code)
	}
}

func TestSaveGetDeleteLog(t *testing.T) {
	f := newFixture(t)
	f.register("u1", true)

	body := `{"fullTiffin":true,"curd":true,"extraChapatiQty":2,
		"customItems":[{"name":"lassi","price":"25.50"}],"notes":"late lunch"}`
	rr := f.do(http.MethodPut, "/api/logs/2024-03-05", "u1", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	saved := decode[core.DayLog](t, rr)
	// 80 + 15 + 2*10 + 25.50
	if saved.TotalCost.Cents != 14050 || saved.Category != core.DefaultCategory {
		t.Fatalf("saved = %+v", saved)
	}
	if len(saved.CustomItems) != 1 || saved.CustomItems[0].ID == "" {
		t.Fatalf("custom item id not assigned: %+v", saved.CustomItems)
	}
	if f.events.count() != 1 {
		t.Fatalf("events = %d", f.events.count())
	}

	rr = f.do(http.MethodGet, "/api/logs/2024-03-05", "u1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}

	// A save replaces the whole log.
	rr = f.do(http.MethodPut, "/api/logs/2024-03-05", "u1", `{"halfTiffin":true}`)
	replaced := decode[core.DayLog](t, rr)
	if replaced.FullTiffin || replaced.Curd || len(replaced.CustomItems) != 0 || replaced.TotalCost.Cents != 5000 {
		t.Fatalf("replaced = %+v", replaced)
	}

	rr = f.do(http.MethodPost, "/api/logs/2024-03-06/skip", "u1", nil)
	skipped := decode[core.DayLog](t, rr)
	if !skipped.NoTiffin || skipped.TotalCost.Cents != 0 {
		t.Fatalf("skipped = %+v", skipped)
	}

	if rr := f.do(http.MethodDelete, "/api/logs/2024-03-05", "u1", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := f.do(http.MethodDelete, "/api/logs/2024-03-05", "u1", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("repeat delete: %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/logs/2024-03-05", "u1", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", rr.Code)
	}

	rr = f.do(http.MethodGet, "/api/logs?from=2024-03-01&to=2024-03-31", "u1", nil)
	logs := decode[[]core.DayLog](t, rr)
	if len(logs) != 1 || logs[0].Date.Key() != "2024-03-06" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestSaveLogValidation(t *testing.T) {
	f := newFixture(t)
	f.register("u1", true)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"bad date", "/api/logs/2024-13-01", `{"fullTiffin":true}`},
		{"negative quantity", "/api/logs/2024-03-01", `{"extraChapatiQty":-1}`},
		{"empty item name", "/api/logs/2024-03-01", `{"customItems":[{"name":"","price":5}]}`},
		{"negative price", "/api/logs/2024-03-01", `{"customItems":[{"name":"tea","price":-5}]}`},
		{"unknown field", "/api/logs/2024-03-01", `{"fullTiffin":true,"bogus":1}`},
		{"malformed", "/api/logs/2024-03-01", `{"fullTiffin":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPut, tt.path, "u1", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
	if f.events.count() != 0 {
		t.Fatalf("rejected saves published %d events", f.events.count())
	}
}

func TestBulkLeaveAndSummaries(t *testing.T) {
	f := newFixture(t)
	f.register("u1", true)

	f.do(http.MethodPut, "/api/logs/2024-02-26", "u1", `{"fullTiffin":true}`)

	rr := f.do(http.MethodPost, "/api/leave", "u1", map[string]string{
		"start": "2024-02-27", "end": "2024-03-02", "category": "trip",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("leave: %d %s", rr.Code, rr.Body.String())
	}
	leave := decode[leaveResponse](t, rr)
	if leave.Days != 5 || leave.Category != "trip" {
		t.Fatalf("leave = %+v", leave)
	}

	// Repeating the request leaves the same state.
	f.do(http.MethodPost, "/api/leave", "u1", map[string]string{
		"start": "2024-02-27", "end": "2024-03-02", "category": "trip",
	})

	rr = f.do(http.MethodGet, "/api/summary/month?year=2024&month=2", "u1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("month: %d", rr.Code)
	}
	var month struct {
		TotalCost     core.Money            `json:"totalCost"`
		DaysLogged    int                   `json:"daysLogged"`
		AveragePerDay core.Money            `json:"averagePerDay"`
		ByCategory    []core.CategoryAmount `json:"byCategory"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &month); err != nil {
		t.Fatal(err)
	}
	if month.DaysLogged != 4 || month.TotalCost.Cents != 8000 || month.AveragePerDay.Cents != 2000 {
		t.Fatalf("february = %+v", month)
	}
	if len(month.ByCategory) == 0 || month.ByCategory[0].Name != "mess" {
		t.Fatalf("by category = %+v", month.ByCategory)
	}

	rr = f.do(http.MethodGet, "/api/summary/week?start=2024-02-26", "u1", nil)
	week := decode[core.WeeklySummary](t, rr)
	if week.DaysLogged != 6 || week.TotalCost.Cents != 8000 || week.End.Key() != "2024-03-03" {
		t.Fatalf("week = %+v", week)
	}

	bad := []map[string]string{
		{"start": "2024-03-05", "end": "2024-03-01"},
		{"start": "2024-01-01", "end": "2026-01-01"},
		{"end": "2024-03-01"},
	}
	for _, b := range bad {
		if rr := f.do(http.MethodPost, "/api/leave", "u1", b); rr.Code != http.StatusBadRequest {
			t.Fatalf("leave %v: %d", b, rr.Code)
		}
	}
	if rr := f.do(http.MethodGet, "/api/summary/month?month=13", "u1", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("month 13: %d", rr.Code)
	}
}

func TestBulkLeaveStoreFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.register("u1", true)
	f.store.FailWritesAfter(2, errors.New("disk full"))

	rr := f.do(http.MethodPost, "/api/leave", "u1", map[string]string{"start": "2024-03-01", "end": "2024-03-03"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk full") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
	logs, _ := f.store.ListLogs(context.Background(), "u1", repository.LogQuery{})
	if len(logs) != 0 {
		t.Fatalf("partial leave written: %d", len(logs))
	}
}

func TestPricingUpdateAndReset(t *testing.T) {
	f := newFixture(t)
	f.register("u1", true)

	rr := f.do(http.MethodPatch, "/api/pricing", "u1", `{"fullTiffin":90,"curd":"17.5"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rr.Code, rr.Body.String())
	}
	prices := decode[core.PriceTable](t, rr)
	if prices.FullTiffin.Cents != 9000 || prices.Curd.Cents != 1750 || prices.Rice != core.DefaultPriceTable.Rice {
		t.Fatalf("prices = %+v", prices)
	}

	rr = f.do(http.MethodPut, "/api/logs/2024-03-01", "u1", `{"fullTiffin":true}`)
	if got := decode[core.DayLog](t, rr); got.TotalCost.Cents != 9000 {
		t.Fatalf("log priced at %v", got.TotalCost)
	}

	if rr := f.do(http.MethodPatch, "/api/pricing", "u1", `{"rice":-1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("negative price: %d", rr.Code)
	}

	rr = f.do(http.MethodPost, "/api/pricing/reset", "u1", nil)
	if got := decode[core.PriceTable](t, rr); got != core.DefaultPriceTable {
		t.Fatalf("reset = %+v", got)
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	f.register("u1", true)
	f.do(http.MethodPut, "/api/logs/2024-03-02", "u1", `{"fullTiffin":true,"notes":"a, b"}`)
	f.do(http.MethodPut, "/api/logs/2024-03-01", "u1", `{"halfTiffin":true}`)
	f.do(http.MethodPut, "/api/logs/2024-04-01", "u1", `{"halfTiffin":true}`)

	rr := f.do(http.MethodGet, "/api/export?year=2024&month=3", "u1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "tiffin-2024-03.csv") {
		t.Fatalf("disposition %q", cd)
	}
	rows, err := csv.NewReader(rr.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 || rows[1][0] != "2024-03-01" || rows[2][4] != "a, b" || rows[3][5] != "130.00" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	f.makeAdmin("boss")
	f.register("u1", false)

	if rr := f.do(http.MethodGet, "/api/admin/users", "u1", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin list: %d", rr.Code)
	}

	rr := f.do(http.MethodGet, "/api/admin/alerts", "boss", nil)
	alerts := decode[[]core.Alert](t, rr)
	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v", alerts)
	}
	if rr := f.do(http.MethodPost, "/api/admin/alerts/"+alerts[0].ID+"/read", "boss", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("mark read: %d", rr.Code)
	}
	if rr := f.do(http.MethodPost, "/api/admin/alerts/nope/read", "boss", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("mark missing: %d", rr.Code)
	}

	if rr := f.do(http.MethodPut, "/api/admin/users/u1/approval", "boss", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("approval without value: %d", rr.Code)
	}
	if rr := f.do(http.MethodPut, "/api/admin/users/u1/approval", "boss", `{"approved":true}`); rr.Code != http.StatusNoContent {
		t.Fatalf("approve: %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/logs", "u1", nil); rr.Code != http.StatusOK {
		t.Fatalf("approved user: %d", rr.Code)
	}

	// Revoking takes effect on the next request even with a cached session.
	f.do(http.MethodPut, "/api/admin/users/u1/approval", "boss", `{"approved":false}`)
	if rr := f.do(http.MethodGet, "/api/logs", "u1", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("revoked user: %d", rr.Code)
	}

	if rr := f.do(http.MethodPut, "/api/admin/users/u1/role", "boss", `{"role":"owner"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad role: %d", rr.Code)
	}
	if rr := f.do(http.MethodPut, "/api/admin/users/u1/role", "boss", `{"role":"admin"}`); rr.Code != http.StatusNoContent {
		t.Fatalf("promote: %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/admin/users", "u1", nil); rr.Code != http.StatusOK {
		t.Fatalf("promoted list: %d", rr.Code)
	}
	if rr := f.do(http.MethodPut, "/api/admin/users/ghost/role", "boss", `{"role":"user"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("missing user role: %d", rr.Code)
	}

	// Dotted ids are not mistaken for file probes.
	f.register("dev.github", false)
	if rr := f.do(http.MethodPut, "/api/admin/users/dev.github/approval", "boss", `{"approved":true}`); rr.Code != http.StatusNoContent {
		t.Fatalf("approve dotted uid: %d %s", rr.Code, rr.Body.String())
	}

	f.do(http.MethodPatch, "/api/pricing", "u1", `{"dinner":70}`)
	rr = f.do(http.MethodPost, "/api/admin/users/u1/pricing/reset", "boss", nil)
	if got := decode[core.PriceTable](t, rr); got != core.DefaultPriceTable {
		t.Fatalf("admin reset = %+v", got)
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/api/logs?q=1%20UNION%20SELECT%20*", "u1", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestTrustedProxiesOption(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: applog.ParseLevel("info"), Format: "json", Output: &buf})
	srv := NewServer(":0", Deps{Store: memory.New()}, Options{
		TrustedProxies: []string{"100.64.0.0/10", "bogus"},
		Logger:         logger,
	})
	defer srv.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "100.64.0.5:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	srv.Handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"client_ip":"198.51.100.1"`) {
		t.Fatalf("forwarded client ip not used: %s", out)
	}
	if !strings.Contains(out, "Ignoring trusted proxy") {
		t.Fatalf("bad CIDR not reported: %s", out)
	}
}

func TestSaveLogRejectsHugeAmounts(t *testing.T) {
	f := newFixture(t)
	f.register("u1", true)

	rr := f.do(http.MethodPut, "/api/logs/2024-03-01", "u1", `{"customItems":[{"id":"1","name":"x","price":200000000000000000}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("huge price: %d %s", rr.Code, rr.Body.String())
	}
	rr = f.do(http.MethodPut, "/api/logs/2024-03-01", "u1", `{"extraChapatiQty":5000}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("huge quantity: %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(http.MethodPatch, "/api/pricing", "u1", `{"rice":"1000000000.01"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("huge patch: %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/logs/2024-03-01", "u1", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("rejected save was stored: %d", rr.Code)
	}
}
