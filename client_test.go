package goKaltura

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goKaltura/ks"
	"github.com/MrEthical07/goKaltura/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

const (
	testSecret  = "s3cr3t-admin-secret"
	testPartner = 123
)

// testClock is a settable clock for generators.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type capturedRequest struct {
	path   string
	query  url.Values
	header http.Header
}

// newFakeAPI serves /api_v3/service/{service}/action/{action} and records each request.
func newFakeAPI(t *testing.T, status int, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	seen := make(chan capturedRequest, 16)

	r := chi.NewRouter()
	r.Get("/api_v3/service/{service}/action/{action}", func(w http.ResponseWriter, req *http.Request) {
		seen <- capturedRequest{
			path:   "/service/" + chi.URLParam(req, "service") + "/action/" + chi.URLParam(req, "action"),
			query:  req.URL.Query(),
			header: req.Header.Clone(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestBuildGeneratesKS(t *testing.T) {
	clock := newTestClock(time.Unix(1700000000, 0))
	client, err := NewBuilder().
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithUserID("alice").
		WithExpiry(3600).
		WithPrivileges("disableentitlement").
		WithGenerator(ks.NewGenerator(ks.Config{Clock: clock.Now})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	spec := client.Spec()
	if spec.KS == "" {
		t.Fatal("expected a generated KS")
	}
	if spec.Secret != "" {
		t.Fatal("Spec must not expose the secret")
	}

	tok, err := ks.Parse(spec.KS, testSecret)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tok.PartnerID != testPartner || tok.UserID != "alice" || tok.ExpiresAt != 1700003600 {
		t.Fatalf("unexpected token %+v", tok)
	}
	if _, ok := tok.Privilege("disableentitlement"); !ok {
		t.Fatal("expected privilege in token")
	}
}

func TestBuildWithoutSecretHasNoKS(t *testing.T) {
	client, err := NewBuilder().WithPartnerID(testPartner).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	if client.Spec().KS != "" {
		t.Fatal("expected no KS without a secret")
	}
	if _, err := client.KS(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if _, err := client.Refresh(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestBuildSuppliedKSUsedVerbatim(t *testing.T) {
	client, err := NewBuilder().
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithKS("preset-token").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	got, err := client.KS(context.Background())
	if err != nil || got != "preset-token" {
		t.Fatalf("expected preset token, got %q err=%v", got, err)
	}
}

func TestBuildV2Format(t *testing.T) {
	client, err := NewBuilder().
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithUserID("alice").
		WithFormat(ks.V2).
		WithSessionType(session.TypeAdmin).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	spec := client.Spec()
	if spec.Format != ks.V2 || spec.Type != session.TypeAdmin {
		t.Fatalf("unexpected spec %s", spec)
	}
	tok, err := ks.Parse(spec.KS, testSecret)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tok.Version != ks.V2 || tok.Duration != ks.DefaultExpiry {
		t.Fatalf("unexpected token %+v", tok)
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := NewBuilder().WithServiceURL("not a url").Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewBuilder().WithCache(true).Build(); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}

	cfg := defaultConfig()
	cfg.Session.RequireUserID = true
	_, err := NewBuilder().WithConfig(cfg).WithAdminSecret(testSecret).Build()
	if !errors.Is(err, ks.ErrInvalidSpec) {
		t.Fatalf("expected ks.ErrInvalidSpec, got %v", err)
	}
}

func TestBuilderIsImmutable(t *testing.T) {
	base := NewBuilder().WithAdminSecret(testSecret).WithPartnerID(1)
	derived := base.WithPartnerID(2).WithUserID("bob")

	c1, err := base.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c1.Close()
	c2, err := derived.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c2.Close()

	if c1.Spec().PartnerID != 1 || c1.Spec().UserID != "" {
		t.Fatalf("base builder was modified: %s", c1.Spec())
	}
	if c2.Spec().PartnerID != 2 || c2.Spec().UserID != "bob" {
		t.Fatalf("unexpected derived spec: %s", c2.Spec())
	}
}

func TestClientRefreshesNearExpiry(t *testing.T) {
	clock := newTestClock(time.Unix(1700000000, 0))
	cfg := defaultConfig()
	cfg.Cache.RefreshMargin = time.Minute

	client, err := NewBuilder().
		WithConfig(cfg).
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithExpiry(600).
		WithGenerator(ks.NewGenerator(ks.Config{Clock: clock.Now})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	first, _ := client.KS(ctx)
	clock.Advance(8 * time.Minute)
	if again, _ := client.KS(ctx); again != first {
		t.Fatal("KS must not change outside the refresh window")
	}

	clock.Advance(time.Minute + time.Second)
	next, err := client.KS(ctx)
	if err != nil {
		t.Fatalf("KS failed: %v", err)
	}
	if next == first {
		t.Fatal("expected a regenerated KS inside the refresh window")
	}
	tok, err := ks.Parse(next, testSecret)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tok.ExpiresAt != 1700000000+9*60+1+600 {
		t.Fatalf("unexpected expiry %d", tok.ExpiresAt)
	}
}

func TestClientNegativeExpiryNotRegeneratedByKS(t *testing.T) {
	clock := newTestClock(time.Unix(1700000000, 0))
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true

	client, err := NewBuilder().
		WithConfig(cfg).
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithExpiry(-60).
		WithGenerator(ks.NewGenerator(ks.Config{Clock: clock.Now})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	first, err := client.KS(ctx)
	if err != nil {
		t.Fatalf("KS failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if got, _ := client.KS(ctx); got != first {
			t.Fatalf("call %d: KS regenerated a token with negative lifetime", i)
		}
	}
	if got := client.MetricsSnapshot().Counters[MetricKSGeneratedV1]; got != 1 {
		t.Fatalf("expected 1 generation, got %d", got)
	}

	if _, err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := client.MetricsSnapshot().Counters[MetricKSGeneratedV1]; got != 2 {
		t.Fatalf("expected Refresh to generate, got %d generations", got)
	}
}

func TestClientRefreshMarginCapped(t *testing.T) {
	client := &Client{config: defaultConfig()}
	client.config.Cache.RefreshMargin = time.Hour
	client.spec.ExpirySeconds = 600
	if got := client.refreshMargin(); got != 5*time.Minute {
		t.Fatalf("expected margin capped to 5m, got %v", got)
	}
}

func TestClientCachePublishAndAdopt(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newTestClock(time.Unix(1700000000, 0))
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true

	builder := NewBuilder().
		WithConfig(cfg).
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithUserID("alice").
		WithExpiry(3600).
		WithCache(true).
		WithRedis(rdb).
		WithGenerator(ks.NewGenerator(ks.Config{Clock: clock.Now}))
	ctx := context.Background()

	first, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer first.Close()
	published, err := first.KS(ctx)
	if err != nil {
		t.Fatalf("KS failed: %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatal("expected the KS to be published")
	}

	clock.Advance(10 * time.Second)
	second, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer second.Close()
	if second.Spec().KS == published {
		t.Fatal("expected the second client to generate its own KS at build time")
	}

	adopted, err := second.KS(ctx)
	if err != nil {
		t.Fatalf("KS failed: %v", err)
	}
	if adopted != published {
		t.Fatal("expected the cached KS to be adopted")
	}
	snap := second.MetricsSnapshot()
	if snap.Counters[MetricKSCacheHit] != 1 {
		t.Fatalf("expected one cache hit, got %d", snap.Counters[MetricKSCacheHit])
	}
}

func TestClientCacheSkipsStaleRecord(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newTestClock(time.Unix(1700000000, 0))
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Cache.RefreshMargin = time.Minute

	builder := NewBuilder().
		WithConfig(cfg).
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithExpiry(600).
		WithCache(true).
		WithRedis(rdb).
		WithGenerator(ks.NewGenerator(ks.Config{Clock: clock.Now}))
	ctx := context.Background()

	first, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer first.Close()
	old, _ := first.KS(ctx)

	clock.Advance(9*time.Minute + 30*time.Second)
	second, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer second.Close()

	got, err := second.KS(ctx)
	if err != nil {
		t.Fatalf("KS failed: %v", err)
	}
	if got == old {
		t.Fatal("a record inside its refresh window must not be adopted")
	}
	if second.MetricsSnapshot().Counters[MetricKSCacheMiss] == 0 {
		t.Fatal("expected a cache miss")
	}
}

func TestClientCacheFailureDoesNotFailKS(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true

	client, err := NewBuilder().
		WithConfig(cfg).
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithCache(true).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	mr.SetError("ERR simulated outage")
	got, err := client.KS(context.Background())
	if err != nil {
		t.Fatalf("KS must not fail on cache errors: %v", err)
	}
	if got != client.Spec().KS {
		t.Fatal("expected the local KS")
	}
	if client.MetricsSnapshot().Counters[MetricKSCacheError] == 0 {
		t.Fatal("expected cache errors to be counted")
	}
}

func TestClientInvalidateCache(t *testing.T) {
	mr, rdb := newTestRedis(t)
	client, err := NewBuilder().
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithCache(true).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	if _, err := client.KS(ctx); err != nil {
		t.Fatalf("KS failed: %v", err)
	}
	n, err := client.InvalidateCache(ctx)
	if err != nil {
		t.Fatalf("InvalidateCache failed: %v", err)
	}
	if n != 1 || len(mr.Keys()) != 0 {
		t.Fatalf("expected one removed session and an empty cache, got n=%d keys=%v", n, mr.Keys())
	}

	noCache, err := NewBuilder().WithAdminSecret(testSecret).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer noCache.Close()
	if _, err := noCache.InvalidateCache(ctx); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestClientAPIGetSendsKSAndHeaders(t *testing.T) {
	srv, seen := newFakeAPI(t, http.StatusOK, `{"objectType":"KalturaMediaListResponse"}`)
	cfg := defaultConfig()
	cfg.Client.ServiceURL = srv.URL + "/api_v3/"
	cfg.Client.ClientTag = "tests"
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := NewBuilder().
		WithConfig(cfg).
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	body, err := client.APIGet(context.Background(), "media", "list", url.Values{"pager[pageSize]": {"5"}})
	if err != nil {
		t.Fatalf("APIGet failed: %v", err)
	}
	if string(body) != `{"objectType":"KalturaMediaListResponse"}` {
		t.Fatalf("unexpected body %s", body)
	}

	req := <-seen
	if req.path != "/service/media/action/list" {
		t.Fatalf("unexpected path %s", req.path)
	}
	if req.query.Get("ks") != client.Spec().KS || req.query.Get("format") != "1" {
		t.Fatalf("unexpected query %v", req.query)
	}
	if req.query.Get("clientTag") != "tests" || req.query.Get("pager[pageSize]") != "5" {
		t.Fatalf("unexpected query %v", req.query)
	}
	if req.header.Get("User-Agent") != "goKaltura/"+Version {
		t.Fatalf("unexpected user agent %q", req.header.Get("User-Agent"))
	}
	if req.header.Get("Content-Type") != "application/json" || req.header.Get("X-Request-Id") == "" {
		t.Fatalf("unexpected headers %v", req.header)
	}

	snap := client.MetricsSnapshot()
	if snap.Counters[MetricAPIRequest] != 1 || snap.Counters[MetricAPIFailure] != 0 {
		t.Fatalf("unexpected api counters %v", snap.Counters)
	}
	var total uint64
	for _, v := range snap.Histograms[MetricAPILatency] {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one latency sample, got %d", total)
	}
}

func TestClientAPIGetWithoutCredential(t *testing.T) {
	srv, seen := newFakeAPI(t, http.StatusOK, `{}`)
	client, err := NewBuilder().WithServiceURL(srv.URL + "/api_v3").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	if _, err := client.APIGet(context.Background(), "system", "ping", nil); err != nil {
		t.Fatalf("APIGet failed: %v", err)
	}
	req := <-seen
	if _, ok := req.query["ks"]; ok {
		t.Fatal("ks must be omitted without a credential")
	}
}

func TestClientAPIGetNon2xx(t *testing.T) {
	srv, _ := newFakeAPI(t, http.StatusServiceUnavailable, `{"code":"SERVICE_FORBIDDEN"}`)
	cfg := defaultConfig()
	cfg.Client.ServiceURL = srv.URL + "/api_v3"
	cfg.Metrics.Enabled = true

	client, err := NewBuilder().WithConfig(cfg).WithAdminSecret(testSecret).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	body, err := client.APIGet(context.Background(), "media", "get", nil)
	if !errors.Is(err, ErrAPIStatus) {
		t.Fatalf("expected ErrAPIStatus, got %v", err)
	}
	if string(body) != `{"code":"SERVICE_FORBIDDEN"}` {
		t.Fatalf("expected error body to be returned, got %s", body)
	}
	if client.MetricsSnapshot().Counters[MetricAPIFailure] != 1 {
		t.Fatal("expected api failure to be counted")
	}

	if _, err := client.APIGet(context.Background(), "", "get", nil); err == nil {
		t.Fatal("expected error for empty service")
	}
}

func TestClientConcurrentKS(t *testing.T) {
	client, err := NewBuilder().
		WithAdminSecret(testSecret).
		WithPartnerID(testPartner).
		WithFormat(ks.V2).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	want := client.Spec().KS
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := client.KS(context.Background())
			if err != nil || got != want {
				t.Errorf("unexpected KS %q err=%v", got, err)
			}
		}()
	}
	wg.Wait()
}

func TestNilClientNotReady(t *testing.T) {
	var c *Client
	if _, err := c.KS(context.Background()); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if _, err := c.Get(context.Background(), "x", nil); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	c.Close()
	if c.AuditDropped() != 0 || len(c.MetricsSnapshot().Counters) != 0 {
		t.Fatal("nil client should be inert")
	}
}
