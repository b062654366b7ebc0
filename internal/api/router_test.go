package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/output"
	"github.com/LJTian/CryptoNewsHub/internal/scheduler"
	"github.com/LJTian/CryptoNewsHub/internal/storage"
	"github.com/gin-gonic/gin"
)

type fakeReader struct {
	items []collector.Item
	runs  []storage.SnapshotSummary
	err   error

	gotPlatform string
	gotLimit    int
}

func (f *fakeReader) LatestItems(_ context.Context, platform string, limit int) ([]collector.Item, error) {
	f.gotPlatform, f.gotLimit = platform, limit
	if f.err != nil {
		return nil, f.err
	}
	return storage.FilterItems(f.items, platform, limit), nil
}

func (f *fakeReader) ListSnapshots(_ context.Context, limit int) ([]storage.SnapshotSummary, error) {
	f.gotLimit = limit
	return f.runs, f.err
}

type fakeRunner struct {
	calls int
}

func (f *fakeRunner) RunOnce(context.Context) (*scheduler.Report, error) {
	f.calls++
	return &scheduler.Report{Kept: 7}, nil
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(s *Server, mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	s.RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func sampleItems() []collector.Item {
	return []collector.Item{
		{Platform: collector.PlatformSocial, Source: "alice", Title: "gm"},
		{Platform: collector.PlatformFeed, Source: "CoinDesk", Title: "BTC"},
		{Platform: collector.PlatformSocial, Source: "bob", Title: "wagmi"},
	}
}

func TestHealth(t *testing.T) {
	w, _ := do(t, newRouter(NewServer(nil, "", nil)), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListNewsFiltersByPlatform(t *testing.T) {
	reader := &fakeReader{items: sampleItems()}
	r := newRouter(NewServer(reader, "", nil))

	w, env := do(t, r, http.MethodGet, "/api/v1/news?platform=social&limit=5000")
	if w.Code != http.StatusOK || env.Code != "ok" {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var items []collector.Item
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 2 || items[0].Source != "alice" || items[1].Source != "bob" {
		t.Fatalf("items = %+v", items)
	}
	if reader.gotLimit != storage.MaxListLimit {
		t.Fatalf("limit should be capped, got %d", reader.gotLimit)
	}

	_, _ = do(t, r, http.MethodGet, "/api/v1/news?limit=abc")
	if reader.gotLimit != storage.DefaultListLimit || reader.gotPlatform != "" {
		t.Fatalf("default limit = %d platform = %q", reader.gotLimit, reader.gotPlatform)
	}
}

func TestListNewsRejectsUnknownPlatform(t *testing.T) {
	w, env := do(t, newRouter(NewServer(&fakeReader{}, "", nil)), http.MethodGet, "/api/v1/news?platform=twitter")
	if w.Code != http.StatusBadRequest || env.Code != "bad_request" {
		t.Fatalf("status = %d, code = %q", w.Code, env.Code)
	}
}

func TestListNewsFallsBackToResultsFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := output.WriteResults(sampleItems(), dir, output.FormatJSON); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	reader := &fakeReader{err: storage.ErrNoSnapshot}
	w, env := do(t, newRouter(NewServer(reader, dir, nil)), http.MethodGet, "/api/v1/news?platform=feed")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var items []collector.Item
	_ = json.Unmarshal(env.Data, &items)
	if len(items) != 1 || items[0].Source != "CoinDesk" {
		t.Fatalf("items = %+v", items)
	}
}

func TestListNewsStoreError(t *testing.T) {
	reader := &fakeReader{err: errors.New("db down")}
	w, env := do(t, newRouter(NewServer(reader, t.TempDir(), nil)), http.MethodGet, "/api/v1/news")
	if w.Code != http.StatusInternalServerError || env.Code != "internal_error" {
		t.Fatalf("status = %d, code = %q", w.Code, env.Code)
	}
}

func TestListRuns(t *testing.T) {
	reader := &fakeReader{runs: []storage.SnapshotSummary{{ID: 2, RunDate: "2024-01-02", ItemCount: 3}, {ID: 1, RunDate: "2024-01-01"}}}
	w, env := do(t, newRouter(NewServer(reader, "", nil)), http.MethodGet, "/api/v1/runs?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var runs []storage.SnapshotSummary
	_ = json.Unmarshal(env.Data, &runs)
	if len(runs) != 2 || runs[0].ID != 2 || reader.gotLimit != 10 {
		t.Fatalf("runs = %+v limit = %d", runs, reader.gotLimit)
	}
}

func TestTriggerRun(t *testing.T) {
	w, env := do(t, newRouter(NewServer(nil, "", nil)), http.MethodPost, "/api/v1/runs")
	if w.Code != http.StatusServiceUnavailable || env.Code != "unavailable" {
		t.Fatalf("status = %d, code = %q", w.Code, env.Code)
	}

	runner := &fakeRunner{}
	w, env = do(t, newRouter(NewServer(nil, "", runner)), http.MethodPost, "/api/v1/runs")
	if w.Code != http.StatusOK || runner.calls != 1 {
		t.Fatalf("status = %d, calls = %d", w.Code, runner.calls)
	}
	var report scheduler.Report
	_ = json.Unmarshal(env.Data, &report)
	if report.Kept != 7 {
		t.Fatalf("report = %+v", report)
	}
}

func TestBasicAuth(t *testing.T) {
	r := newRouter(NewServer(&fakeReader{}, "", nil), BasicAuth("user", "pass"))

	if w, _ := do(t, r, http.MethodGet, "/health"); w.Code != http.StatusOK {
		t.Fatalf("/health should be exempt, got %d", w.Code)
	}
	w, _ := do(t, r, http.MethodGet, "/api/v1/news")
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") != `Basic realm="CryptoNewsHub"` {
		t.Fatalf("unauthenticated request got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/news", nil)
	req.SetBasicAuth("user", "pass")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated request got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/news", nil)
	req.SetBasicAuth("user", "wrong")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password got %d", rec.Code)
	}
}

type ctxRunner struct {
	ctxErr error
}

func (r *ctxRunner) RunOnce(ctx context.Context) (*scheduler.Report, error) {
	r.ctxErr = ctx.Err()
	return &scheduler.Report{}, nil
}

func TestTriggerRunSurvivesClientDisconnect(t *testing.T) {
	runner := &ctxRunner{}
	r := newRouter(NewServer(nil, "", runner))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if runner.ctxErr != nil {
		t.Fatalf("run context should not inherit request cancellation, got %v", runner.ctxErr)
	}
}

func TestListNewsBeforeFirstRun(t *testing.T) {
	reader := &fakeReader{err: storage.ErrNoSnapshot}
	w, env := do(t, newRouter(NewServer(reader, t.TempDir(), nil)), http.MethodGet, "/api/v1/news")
	if w.Code != http.StatusOK || env.Code != "ok" {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if string(env.Data) != "[]" {
		t.Fatalf("data = %s, want []", env.Data)
	}
}
