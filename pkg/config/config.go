// Package config loads the gateway's runtime configuration, adapted
// from the corpus's koanf-based loader: a YAML policy file as the base
// layer, overridable by GATEWAY_-prefixed environment variables. Field
// names keep the corpus's yaml-tag convention even though the document
// shape below is the gateway's own.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/portcall/gateway/internal/errs"
)

// Server holds the gateway's own listen address and timeouts.
type Server struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Redis configures the shared counter store connection.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Postgres configures the route-config persistence connection. DSN
// empty means "use the in-memory store seeded from Routes below" —
// the persistence layer is an optional collaborator, not core (§6).
type Postgres struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// RateLimit holds the global sliding-window duration; each route's own
// request ceiling lives on its RouteConfig instead.
type RateLimit struct {
	WindowSeconds int  `yaml:"window_seconds"`
	FailOpen      bool `yaml:"fail_open"`
}

// Anomaly tunes the adaptive-mitigation detector.
type Anomaly struct {
	Enabled     bool    `yaml:"enabled"`
	BucketMS    int     `yaml:"bucket_ms"`
	EWMAAlpha   float64 `yaml:"ewma_alpha"`
	BurstFactor float64 `yaml:"burst_factor"`
	MinBaseline float64 `yaml:"min_baseline"`
}

// Mitigation tunes the streak-based block/override escalation.
type Mitigation struct {
	OverrideThreshold int `yaml:"override_threshold"`
	BlockThreshold    int `yaml:"block_threshold"`
	BlockForSeconds   int `yaml:"block_for_seconds"`
}

// Admin holds the single operator identity and the CORS allowlist for
// the admin UI's browser client.
type Admin struct {
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RouteSeed is one entry of the boot-time route set, used when Postgres
// isn't configured. URLRewrite is a mapping, so the order of its entries
// is not kept: a seeded route's rewrite rules are tried in an unspecified
// order.
type RouteSeed struct {
	Prefix     string            `yaml:"prefix"`
	TargetURL  string            `yaml:"target_url"`
	RateLimit  int               `yaml:"rate_limit"`
	URLRewrite map[string]string `yaml:"url_rewrite"`
}

// Upstream bounds how long the gateway waits on a forwarded request.
type Upstream struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Config is the gateway's full runtime configuration.
type Config struct {
	Profile    string      `yaml:"profile"`
	Version    string      `yaml:"version"`
	Server     Server      `yaml:"server"`
	Redis      Redis       `yaml:"redis"`
	Postgres   Postgres    `yaml:"postgres"`
	RateLimit  RateLimit   `yaml:"rate_limit"`
	Anomaly    Anomaly     `yaml:"anomaly"`
	Mitigation Mitigation  `yaml:"mitigation"`
	Admin      Admin       `yaml:"admin"`
	Upstream   Upstream    `yaml:"upstream"`
	Routes     []RouteSeed `yaml:"routes"`
}

// Load reads path as YAML and layers GATEWAY_-prefixed environment
// variables on top (e.g. GATEWAY_ADMIN_PASSWORD overrides admin.password).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &errs.ConfigError{Field: path, Err: err}
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "GATEWAY_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, "GATEWAY_")
			key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
			return key, value
		},
	}), nil); err != nil {
		return nil, &errs.ConfigError{Field: "environment", Err: err}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, &errs.ConfigError{Field: "unmarshal", Err: err}
	}
	applyDefaults(&cfg)

	if cfg.Admin.Username == "" || cfg.Admin.Password == "" {
		return nil, &errs.ConfigError{Field: "admin", Err: errNoAdminCredentials}
	}
	return &cfg, nil
}

var errNoAdminCredentials = errors.New("admin.username and admin.password must both be set")

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.Upstream.TimeoutSeconds == 0 {
		cfg.Upstream.TimeoutSeconds = 30
	}
	if cfg.Mitigation.OverrideThreshold == 0 {
		cfg.Mitigation.OverrideThreshold = 3
	}
	if cfg.Mitigation.BlockThreshold == 0 {
		cfg.Mitigation.BlockThreshold = 10
	}
	if cfg.Mitigation.BlockForSeconds == 0 {
		cfg.Mitigation.BlockForSeconds = 300
	}
	if cfg.Anomaly.BucketMS == 0 {
		cfg.Anomaly.BucketMS = 1000
	}
	if cfg.Anomaly.EWMAAlpha == 0 {
		cfg.Anomaly.EWMAAlpha = 0.3
	}
	if cfg.Anomaly.BurstFactor == 0 {
		cfg.Anomaly.BurstFactor = 5
	}
	if cfg.Anomaly.MinBaseline == 0 {
		cfg.Anomaly.MinBaseline = 2
	}
	if cfg.Profile == "" {
		cfg.Profile = "development"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
}
