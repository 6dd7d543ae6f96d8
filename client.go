package goKaltura

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goKaltura/internal"
	"github.com/MrEthical07/goKaltura/ks"
	"github.com/MrEthical07/goKaltura/session"
	"go.uber.org/zap"
)

// Version is the library version reported in the default User-Agent.
const Version = "0.1.0"

// maxResponseBytes caps the body read by Get.
const maxResponseBytes = 32 << 20

// Client holds one session and sends raw API requests with it. It is safe for
// concurrent use; the KS is regenerated in place when it nears expiry.
type Client struct {
	config Config

	mu          sync.Mutex
	spec        session.Spec
	published   bool
	generator   *ks.Generator
	store       *session.Store
	fingerprint string

	metrics *Metrics
	audit   *auditDispatcher
	logger  *zap.Logger
	http    *http.Client
}

// Spec returns a copy of the current session with the secret cleared.
func (c *Client) Spec() session.Spec {
	if c == nil {
		return session.Spec{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	spec := c.spec
	spec.Secret = ""
	return spec
}

// KS returns the token to send with requests.
//
// A caller-supplied KS is returned as is. A generated KS is regenerated once the clock
// passes its expiry minus the refresh margin. With the cache enabled, a fresh token
// issued by another process for the same session attributes is adopted instead of
// generating a new one, and locally generated tokens are published to the cache.
// Cache failures are logged and never fail KS.
func (c *Client) KS(ctx context.Context) (string, error) {
	if c == nil {
		return "", ErrClientNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.spec.Authenticated() {
		return "", ErrNoCredential
	}
	if c.spec.Secret == "" || c.spec.IssuedAt.IsZero() {
		return c.spec.KS, nil
	}

	if c.store != nil && !c.published {
		if c.adoptCached(ctx) {
			c.published = true
		} else {
			c.publish(ctx)
		}
	}

	if c.stale(c.spec, c.generator.Now()) {
		if err := c.refreshLocked(ctx, true); err != nil {
			return "", err
		}
	}
	return c.spec.KS, nil
}

// Refresh generates a new KS unconditionally, bypassing the cache lookup, and publishes
// it when the cache is enabled.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	if c == nil {
		return "", ErrClientNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.spec.Secret == "" {
		return "", ErrNoCredential
	}
	if err := c.refreshLocked(ctx, false); err != nil {
		return "", err
	}
	return c.spec.KS, nil
}

// InvalidateCache drops every cached KS of the client's partner, e.g. after the admin
// secret was rotated. It returns the number of cached sessions removed.
func (c *Client) InvalidateCache(ctx context.Context) (int, error) {
	if c == nil {
		return 0, ErrClientNotReady
	}
	if c.store == nil {
		return 0, ErrCacheUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.store.InvalidatePartner(ctx, int64(c.spec.PartnerID))
	c.emitAudit(ctx, auditEventCacheCleared, c.spec, err, func() map[string]string {
		return map[string]string{"removed": strconv.Itoa(n)}
	})
	if err != nil {
		c.metrics.Inc(MetricKSCacheError)
		return 0, err
	}
	c.published = false
	return n, nil
}

// stale reports whether spec has entered its refresh window at now. A token with a
// non-positive lifetime is never stale; only Refresh replaces it.
func (c *Client) stale(spec session.Spec, now time.Time) bool {
	if ks.NormalizeExpiry(spec.ExpirySeconds) <= 0 {
		return false
	}
	expiresAt := spec.ExpiresAt()
	if expiresAt.IsZero() {
		return false
	}
	return !now.Before(expiresAt.Add(-c.refreshMargin()))
}

// refreshMargin is the configured margin capped at half the lifetime.
func (c *Client) refreshMargin() time.Duration {
	margin := c.config.Cache.RefreshMargin
	lifetime := time.Duration(ks.NormalizeExpiry(c.spec.ExpirySeconds)) * time.Second
	if half := lifetime / 2; margin > half {
		margin = half
	}
	if margin < 0 {
		return 0
	}
	return margin
}

func (c *Client) refreshLocked(ctx context.Context, tryCache bool) error {
	if tryCache && c.store != nil && c.adoptCached(ctx) {
		return nil
	}

	spec, err := session.Issue(c.generator, c.spec)
	c.recordIssue(ctx, c.spec, err)
	if err != nil {
		return fmt.Errorf("refresh ks: %w", err)
	}
	c.spec = spec
	c.logger.Debug("ks regenerated",
		zap.Int("partner_id", spec.PartnerID),
		zap.Time("expires_at", spec.ExpiresAt()),
	)

	if c.store != nil {
		c.publish(ctx)
	}
	return nil
}

// adoptCached replaces the local KS with a cached one that is still outside the
// refresh window. It reports whether it did.
func (c *Client) adoptCached(ctx context.Context) bool {
	rec, err := c.store.Get(ctx, c.fingerprint)
	switch {
	case errors.Is(err, session.ErrRecordNotFound):
		c.metrics.Inc(MetricKSCacheMiss)
		return false
	case err != nil:
		c.metrics.Inc(MetricKSCacheError)
		c.logger.Warn("ks cache read failed", zap.Int("partner_id", c.spec.PartnerID), zap.Error(err))
		return false
	}

	if rec.Format != c.spec.Format || rec.PartnerID != int64(c.spec.PartnerID) || rec.UserID != c.spec.UserID {
		c.metrics.Inc(MetricKSCacheMiss)
		return false
	}
	candidate := c.spec
	candidate.KS = rec.KS
	candidate.IssuedAt = time.Unix(rec.IssuedAt, 0)
	if c.stale(candidate, c.generator.Now()) {
		c.metrics.Inc(MetricKSCacheMiss)
		return false
	}

	c.spec = candidate
	c.metrics.Inc(MetricKSCacheHit)
	c.emitAudit(ctx, auditEventKSCacheHit, candidate, nil, nil)
	return true
}

// publish stores the local KS so other processes can adopt it.
func (c *Client) publish(ctx context.Context) {
	expiresAt := c.spec.ExpiresAt()
	rec := &session.Record{
		Format:    c.spec.Format,
		PartnerID: int64(c.spec.PartnerID),
		UserID:    c.spec.UserID,
		KS:        c.spec.KS,
		IssuedAt:  c.spec.IssuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	ttl := expiresAt.Sub(c.generator.Now())
	if err := c.store.Put(ctx, c.fingerprint, rec, ttl); err != nil {
		c.metrics.Inc(MetricKSCacheError)
		c.logger.Warn("ks cache write failed", zap.Int("partner_id", c.spec.PartnerID), zap.Error(err))
		return
	}
	c.published = true
}

// APIGet calls {ServiceURL}/service/{service}/action/{action}.
func (c *Client) APIGet(ctx context.Context, service, action string, params url.Values) ([]byte, error) {
	if strings.TrimSpace(service) == "" || strings.TrimSpace(action) == "" {
		return nil, errors.New("api get: service and action are required")
	}
	path := "service/" + url.PathEscape(service) + "/action/" + url.PathEscape(action)
	return c.Get(ctx, path, params)
}

// Get sends a GET request to path below the service URL and returns the raw body.
// The current KS (when one exists), format=1 and the configured client tag are added
// to params. A non-2xx answer returns the body together with an error wrapping
// ErrAPIStatus.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c == nil || c.http == nil {
		return nil, ErrClientNotReady
	}

	token, err := c.KS(ctx)
	if err != nil && !errors.Is(err, ErrNoCredential) {
		return nil, err
	}

	query := url.Values{}
	for k, vs := range params {
		query[k] = append([]string(nil), vs...)
	}
	if token != "" {
		query.Set("ks", token)
	}
	query.Set("format", "1")
	if c.config.Client.ClientTag != "" {
		query.Set("clientTag", c.config.Client.ClientTag)
	}

	endpoint := strings.TrimRight(c.config.Client.ServiceURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("api get: %w", err)
	}
	requestID := internal.NewRequestID()
	req.Header.Set("User-Agent", c.config.Client.UserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	spec := c.Spec()
	c.metrics.Inc(MetricAPIRequest)
	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.Observe(MetricAPILatency, time.Since(start))
	if err != nil {
		c.metrics.Inc(MetricAPIFailure)
		c.emitAudit(ctx, auditEventAPIRequest, spec, err, func() map[string]string {
			return map[string]string{"path": path, "request_id": requestID}
		})
		return nil, fmt.Errorf("api get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		err = fmt.Errorf("%w: %d %s", ErrAPIStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if err != nil {
		c.metrics.Inc(MetricAPIFailure)
	}
	c.emitAudit(ctx, auditEventAPIRequest, spec, err, func() map[string]string {
		return map[string]string{
			"path":       path,
			"status":     strconv.Itoa(resp.StatusCode),
			"request_id": requestID,
		}
	})
	if err != nil {
		c.logger.Debug("api request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return body, err
	}
	return body, nil
}

// MetricsSnapshot returns a copy of the client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events that never reached the sink.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// AuditDroppedByType returns the non-zero audit drop counts keyed by event type
// (ks_issued, ks_issue_failed, ks_cache_hit, ks_cache_invalidated, api_request, other).
func (c *Client) AuditDroppedByType() map[string]uint64 {
	if c == nil {
		return map[string]uint64{}
	}
	return c.audit.DroppedByType()
}

// Shutdown flushes pending audit events until ctx ends. Events still queued at that
// point are counted as dropped and ctx's error is returned. The Redis and HTTP clients
// belong to the caller.
func (c *Client) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.audit.Close(ctx)
}

// Close is Shutdown without a deadline.
func (c *Client) Close() {
	_ = c.Shutdown(context.Background())
}
