// ksgen generates and inspects Kaltura session tokens (KS).
//
// Generate mode (default) builds a KS from a YAML config file, KALTURA_* environment
// variables and flags, in increasing precedence, and prints it. With --cache the token
// is published to Redis (or an in-process miniredis when no address is configured) the
// same way a long-running client would.
//
// Inspect mode (--inspect TOKEN) verifies a token against the admin secret and prints
// its fields.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	goKaltura "github.com/MrEthical07/goKaltura"
	"github.com/MrEthical07/goKaltura/ks"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	secret     string
	partnerID  int
	userID     string
	privileges string
	expiry     int
	sessType   string
	format     string
	inspect    string
	redisAddr  string
	cache      bool
	jsonOut    bool
	verbose    bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("ksgen", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	flagSet.StringVar(&opts.secret, "secret", "", "admin secret (prefer "+goKaltura.EnvAdminSecret+")")
	flagSet.IntVarP(&opts.partnerID, "partner-id", "p", 0, "partner id")
	flagSet.StringVarP(&opts.userID, "user-id", "u", "", "user id bound into the KS")
	flagSet.StringVar(&opts.privileges, "privileges", "", `privileges, e.g. "disableentitlement,sview:0_x"`)
	flagSet.IntVarP(&opts.expiry, "expiry", "e", 0, "lifetime in seconds (0 = 86400)")
	flagSet.StringVarP(&opts.sessType, "type", "t", "", "session type: user or admin")
	flagSet.StringVarP(&opts.format, "format", "f", "", "token format: v1 or v2")
	flagSet.StringVar(&opts.inspect, "inspect", "", "verify and print the fields of TOKEN instead of generating")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", "", "redis address for --cache; empty uses miniredis")
	flagSet.BoolVar(&opts.cache, "cache", false, "publish the KS to the redis cache")
	flagSet.BoolVar(&opts.jsonOut, "json", false, "print JSON")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := goKaltura.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(flagSet, &opts, &cfg)

	if opts.inspect != "" {
		return inspect(stdout, opts, cfg.Session.AdminSecret)
	}
	return generate(stdout, stderr, opts, cfg)
}

// applyFlags overrides cfg with the flags given explicitly on the command line.
func applyFlags(fs *pflag.FlagSet, opts *options, cfg *goKaltura.Config) {
	if fs.Changed("secret") {
		cfg.Session.AdminSecret = opts.secret
	}
	if fs.Changed("partner-id") {
		cfg.Session.PartnerID = opts.partnerID
	}
	if fs.Changed("user-id") {
		cfg.Session.UserID = opts.userID
	}
	if fs.Changed("privileges") {
		cfg.Session.Privileges = opts.privileges
	}
	if fs.Changed("expiry") {
		cfg.Session.ExpirySeconds = opts.expiry
	}
	if fs.Changed("type") {
		cfg.Session.Type = opts.sessType
	}
	if fs.Changed("format") {
		cfg.Session.Format = opts.format
	}
	if fs.Changed("redis-addr") {
		cfg.Cache.RedisAddr = opts.redisAddr
	}
	if fs.Changed("cache") {
		cfg.Cache.Enabled = opts.cache
	}
	// A token given in the environment would make generation a no-op.
	cfg.Session.KS = ""
}

func newLogger(stderr io.Writer, verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(stderr),
		zapcore.DebugLevel,
	)
	return zap.New(core)
}

func generate(stdout, stderr io.Writer, opts options, cfg goKaltura.Config) error {
	if cfg.Session.AdminSecret == "" {
		return fmt.Errorf("admin secret required: set %s or --secret", goKaltura.EnvAdminSecret)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(stderr, opts.verbose)
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Lint() {
		logger.Warn("config lint", zap.String("code", w.Code), zap.String("message", w.Message))
	}

	builder := goKaltura.NewBuilder().WithConfig(cfg).WithLogger(logger)

	if cfg.Cache.Enabled {
		rdb, cleanup, err := openRedis(cfg.Cache.RedisAddr, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		builder = builder.WithRedis(rdb)
	}

	client, err := builder.Build()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	token, err := client.KS(ctx)
	if err != nil {
		return err
	}

	if !opts.jsonOut {
		_, err = fmt.Fprintln(stdout, token)
		return err
	}
	spec := client.Spec()
	return writeJSON(stdout, map[string]any{
		"ks":          token,
		"format":      spec.Format.String(),
		"partner_id":  spec.PartnerID,
		"user_id":     spec.UserID,
		"type":        spec.Type.String(),
		"privileges":  spec.Privileges,
		"expires_at":  spec.ExpiresAt().Unix(),
		"issued_at":   spec.IssuedAt.Unix(),
		"expiry_secs": spec.ExpirySeconds,
	})
}

func openRedis(addr string, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Debug("using miniredis", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	logger.Debug("using redis", zap.String("addr", addr))
	return client, func() { _ = client.Close() }, nil
}

func inspect(stdout io.Writer, opts options, secret string) error {
	if secret == "" {
		return fmt.Errorf("admin secret required to verify a token: set %s or --secret", goKaltura.EnvAdminSecret)
	}
	tok, err := ks.Parse(strings.TrimSpace(opts.inspect), secret)
	if err != nil {
		return err
	}

	privileges := make([]string, len(tok.Privileges))
	for i, p := range tok.Privileges {
		privileges[i] = p.String()
	}

	if opts.jsonOut {
		out := map[string]any{
			"version":    tok.Version.String(),
			"partner_id": tok.PartnerID,
			"user_id":    tok.UserID,
			"privileges": privileges,
		}
		if tok.Version == ks.V1 {
			out["expires_at"] = tok.ExpiresAt
		} else {
			out["duration"] = tok.Duration
		}
		return writeJSON(stdout, out)
	}

	fmt.Fprintf(stdout, "version:    %s\n", tok.Version)
	fmt.Fprintf(stdout, "partner_id: %d\n", tok.PartnerID)
	fmt.Fprintf(stdout, "user_id:    %s\n", tok.UserID)
	if tok.Version == ks.V1 {
		fmt.Fprintf(stdout, "expires_at: %s\n", time.Unix(tok.ExpiresAt, 0).UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintf(stdout, "duration:   %ds\n", tok.Duration)
	}
	_, err = fmt.Fprintf(stdout, "privileges: %s\n", strings.Join(privileges, ","))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
