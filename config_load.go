package goKaltura

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig. They override values from the YAML file.
const (
	EnvServiceURL    = "KALTURA_SERVICE_URL"
	EnvAdminSecret   = "KALTURA_ADMIN_SECRET"
	EnvPartnerID     = "KALTURA_PARTNER_ID"
	EnvUserID        = "KALTURA_USER_ID"
	EnvPrivileges    = "KALTURA_PRIVILEGES"
	EnvExpiry        = "KALTURA_EXPIRY"
	EnvSessionType   = "KALTURA_SESSION_TYPE"
	EnvFormat        = "KALTURA_KS_FORMAT"
	EnvKS            = "KALTURA_KS"
	EnvTimeout       = "KALTURA_TIMEOUT"
	EnvRedisAddr     = "KALTURA_REDIS_ADDR"
	EnvCacheEnabled  = "KALTURA_CACHE_ENABLED"
	EnvRefreshMargin = "KALTURA_REFRESH_MARGIN"
)

// LoadConfig builds a Config from defaults, then the YAML file at path (skipped when
// path is empty), then the environment. A .env file in the working directory is loaded
// first when present; variables already set in the process win over it.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		*dst = d
		return nil
	}

	str(EnvServiceURL, &cfg.Client.ServiceURL)
	str(EnvAdminSecret, &cfg.Session.AdminSecret)
	str(EnvUserID, &cfg.Session.UserID)
	str(EnvPrivileges, &cfg.Session.Privileges)
	str(EnvSessionType, &cfg.Session.Type)
	str(EnvFormat, &cfg.Session.Format)
	str(EnvKS, &cfg.Session.KS)
	str(EnvRedisAddr, &cfg.Cache.RedisAddr)

	if err := num(EnvPartnerID, &cfg.Session.PartnerID); err != nil {
		return err
	}
	if err := num(EnvExpiry, &cfg.Session.ExpirySeconds); err != nil {
		return err
	}
	if err := dur(EnvTimeout, &cfg.Client.Timeout); err != nil {
		return err
	}
	if err := dur(EnvRefreshMargin, &cfg.Cache.RefreshMargin); err != nil {
		return err
	}
	if v, ok := lookup(EnvCacheEnabled); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvCacheEnabled, err)
		}
		cfg.Cache.Enabled = enabled
	}
	return nil
}
