package goKaltura

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goKaltura/internal"
	"github.com/MrEthical07/goKaltura/ks"
	"github.com/MrEthical07/goKaltura/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a Client. It is a value: every With method returns a modified copy,
// so one partially configured Builder can seed several clients.
type Builder struct {
	config Config

	redis      redis.UniversalClient
	httpClient *http.Client
	logger     *zap.Logger
	auditSink  AuditSink
	generator  *ks.Generator
}

// NewBuilder returns a Builder seeded with DefaultConfig.
func NewBuilder() Builder {
	return Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b Builder) WithConfig(cfg Config) Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b Builder) WithServiceURL(serviceURL string) Builder {
	b.config.Client.ServiceURL = serviceURL
	return b
}

func (b Builder) WithAdminSecret(secret string) Builder {
	b.config.Session.AdminSecret = secret
	return b
}

func (b Builder) WithPartnerID(partnerID int) Builder {
	b.config.Session.PartnerID = partnerID
	return b
}

func (b Builder) WithUserID(userID string) Builder {
	b.config.Session.UserID = userID
	return b
}

// WithPrivileges sets the raw privilege string, e.g. "disableentitlement,sview:0_x".
func (b Builder) WithPrivileges(privileges string) Builder {
	b.config.Session.Privileges = privileges
	return b
}

// WithExpiry sets the KS lifetime in seconds. 0 selects ks.DefaultExpiry.
func (b Builder) WithExpiry(seconds int) Builder {
	b.config.Session.ExpirySeconds = seconds
	return b
}

func (b Builder) WithSessionType(t session.Type) Builder {
	b.config.Session.Type = t.String()
	return b
}

func (b Builder) WithFormat(f ks.Version) Builder {
	b.config.Session.Format = f.String()
	return b
}

// WithKS supplies a token that is used verbatim instead of a generated one.
func (b Builder) WithKS(token string) Builder {
	b.config.Session.KS = token
	return b
}

// WithRedis sets the client backing the KS cache. The Client never closes it.
func (b Builder) WithRedis(client redis.UniversalClient) Builder {
	b.redis = client
	return b
}

// WithCache enables or disables the Redis KS cache.
func (b Builder) WithCache(enabled bool) Builder {
	b.config.Cache.Enabled = enabled
	return b
}

func (b Builder) WithHTTPClient(client *http.Client) Builder {
	b.httpClient = client
	return b
}

func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) WithAuditSink(sink AuditSink) Builder {
	b.auditSink = sink
	return b
}

// WithGenerator overrides the token generator, typically to inject a clock or a
// deterministic random source in tests.
func (b Builder) WithGenerator(g *ks.Generator) Builder {
	b.generator = g
	return b
}

func (b Builder) WithMetricsEnabled(enabled bool) Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b Builder) WithLatencyHistograms(enabled bool) Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client. When a secret is
// configured and no KS was supplied, a KS is generated before Build returns; a
// generation error fails the build.
func (b Builder) Build() (*Client, error) {
	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Cache.Enabled && b.redis == nil {
		return nil, fmt.Errorf("%w: cache enabled without a redis client", ErrCacheUnavailable)
	}

	sessionType, _ := session.ParseType(cfg.Session.Type)
	format, _ := ks.ParseVersion(cfg.Session.Format)

	generator := b.generator
	if generator == nil {
		generator = ks.Default()
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Client.Timeout}
	}

	c := &Client{
		config:    cfg,
		generator: generator,
		metrics:   NewMetrics(cfg.Metrics),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		logger:    logger,
		http:      httpClient,
	}

	spec, err := session.NewSpecBuilder().
		WithSecret(cfg.Session.AdminSecret).
		WithUserID(cfg.Session.UserID).
		WithPartnerID(cfg.Session.PartnerID).
		WithExpiry(cfg.Session.ExpirySeconds).
		WithPrivileges(cfg.Session.Privileges).
		WithType(sessionType).
		WithFormat(format).
		WithKS(cfg.Session.KS).
		WithGenerator(generator).
		RequireUserID(cfg.Session.RequireUserID).
		Build()
	if err != nil {
		c.recordIssue(context.Background(), sessionFromConfig(cfg, sessionType, format), err)
		_ = c.audit.Close(context.Background())
		return nil, fmt.Errorf("build session: %w", err)
	}
	c.spec = spec
	if !spec.IssuedAt.IsZero() {
		c.recordIssue(context.Background(), spec, nil)
	}

	if cfg.Cache.Enabled {
		c.store = session.NewStore(b.redis, cfg.Cache.RedisPrefix)
		c.fingerprint = internal.Fingerprint(internal.FingerprintInput{
			Secret:        spec.Secret,
			PartnerID:     spec.PartnerID,
			UserID:        spec.UserID,
			Privileges:    spec.Privileges,
			SessionType:   int(spec.Type),
			Format:        uint8(spec.Format),
			ExpirySeconds: spec.ExpirySeconds,
		})
	}

	logger.Debug("kaltura client built",
		zap.Int("partner_id", spec.PartnerID),
		zap.String("format", spec.Format.String()),
		zap.String("session_type", spec.Type.String()),
		zap.Bool("authenticated", spec.Authenticated()),
		zap.Bool("cache", cfg.Cache.Enabled),
	)

	return c, nil
}

// sessionFromConfig describes the attempted session for a failed build's audit event.
func sessionFromConfig(cfg Config, t session.Type, f ks.Version) session.Spec {
	return session.Spec{
		UserID:    cfg.Session.UserID,
		PartnerID: cfg.Session.PartnerID,
		Type:      t,
		Format:    f,
	}
}
