package goKaltura

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goKaltura/ks"
	"github.com/MrEthical07/goKaltura/session"
)

// DefaultServiceURL is the public Kaltura API endpoint.
const DefaultServiceURL = "https://www.kaltura.com/api_v3"

// Config groups every tunable of a Client.
//
// Config values are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Session SessionConfig `yaml:"session"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Audit   AuditConfig   `yaml:"audit"`
}

/*
====================================
CLIENT CONFIG
====================================
*/

// ClientConfig controls the HTTP transport used for raw API calls.
type ClientConfig struct {
	ServiceURL string        `yaml:"service_url"`
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	ClientTag  string        `yaml:"client_tag"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig holds the attributes bound into the KS.
//
// AdminSecret and KS are never read from YAML; LoadConfig takes them from the environment.
type SessionConfig struct {
	AdminSecret   string `yaml:"-"`
	PartnerID     int    `yaml:"partner_id"`
	UserID        string `yaml:"user_id"`
	Privileges    string `yaml:"privileges"`
	ExpirySeconds int    `yaml:"expiry_seconds"`
	Type          string `yaml:"type"`   // "user" (default) or "admin"
	Format        string `yaml:"format"` // "v1" (default) or "v2"
	KS            string `yaml:"-"`
	RequireUserID bool   `yaml:"require_user_id"`
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the Redis-backed KS cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RefreshMargin time.Duration `yaml:"refresh_margin"`
}

/*
====================================
METRICS / AUDIT CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and the API latency histogram.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by NewBuilder.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Client: ClientConfig{
			ServiceURL: DefaultServiceURL,
			Timeout:    30 * time.Second,
			UserAgent:  "goKaltura/" + Version,
		},
		Session: SessionConfig{
			ExpirySeconds: ks.DefaultExpiry,
			Type:          session.TypeUser.String(),
			Format:        ks.V1.String(),
		},
		Cache: CacheConfig{
			Enabled:       false,
			RedisPrefix:   "ks",
			RefreshMargin: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	// Client
	u, err := url.Parse(c.Client.ServiceURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: Client ServiceURL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("%w: Client Timeout must be >= 0", ErrInvalidConfig)
	}

	// Session
	if c.Session.PartnerID < 0 {
		return fmt.Errorf("%w: Session PartnerID must be >= 0", ErrInvalidConfig)
	}
	if _, err := session.ParseType(c.Session.Type); err != nil {
		return fmt.Errorf("%w: Session Type: %v", ErrInvalidConfig, err)
	}
	if _, err := ks.ParseVersion(c.Session.Format); err != nil {
		return fmt.Errorf("%w: Session Format: %v", ErrInvalidConfig, err)
	}

	// Cache
	if c.Cache.Enabled {
		if strings.TrimSpace(c.Cache.RedisPrefix) == "" {
			return fmt.Errorf("%w: Cache RedisPrefix must not be blank", ErrInvalidConfig)
		}
		if c.Cache.RefreshMargin < 0 {
			return fmt.Errorf("%w: Cache RefreshMargin must be >= 0", ErrInvalidConfig)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0", ErrInvalidConfig)
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

const maxRecommendedExpiry = 7 * 24 * 60 * 60

// Lint reports settings that are accepted by Validate but likely unintended.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if strings.HasPrefix(c.Client.ServiceURL, "http://") {
		ws = append(ws, LintWarning{Code: "insecure_service_url", Message: "KS values are sent in the query string over plain http"})
	}
	if c.Session.ExpirySeconds < 0 {
		ws = append(ws, LintWarning{Code: "expiry_negative", Message: "negative expiry produces already-expired tokens that KS never regenerates"})
	}
	if c.Session.ExpirySeconds > maxRecommendedExpiry {
		ws = append(ws, LintWarning{Code: "expiry_long", Message: "expiry exceeds 7 days"})
	}
	if c.Session.AdminSecret != "" && c.Session.KS != "" {
		ws = append(ws, LintWarning{Code: "ks_overrides_secret", Message: "a supplied KS is used verbatim; the secret only serves refreshes"})
	}
	if t, err := session.ParseType(c.Session.Type); err == nil && t == session.TypeAdmin && c.Session.UserID == "" {
		ws = append(ws, LintWarning{Code: "admin_without_user", Message: "admin session without a user id"})
	}
	if c.Cache.Enabled {
		expiry := time.Duration(ks.NormalizeExpiry(c.Session.ExpirySeconds)) * time.Second
		if c.Cache.RefreshMargin*2 > expiry {
			ws = append(ws, LintWarning{Code: "refresh_margin_large", Message: "refresh margin exceeds half the expiry and will be capped"})
		}
	}

	return ws
}
