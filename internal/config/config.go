package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the startup document read when no --config flag is given.
// It is optional; every other path must exist.
const DefaultPath = "statsgateway.yaml"

// EnvPrefix marks environment overrides, e.g. STATSGW_JASAVESTATS__PUSHGATEWAYURL.
const EnvPrefix = "STATSGW_"

type Config struct {
	LogDir          string    `koanf:"JALogDir"`
	DisableWarnings string    `koanf:"JADisableWarnings"`
	ListenAddress   string    `koanf:"JAListenAddress" validate:"required"`
	SaveStats       SaveStats `koanf:"JASaveStats" validate:"required"`
}

type SaveStats struct {
	LogFileName           string `koanf:"LogFileName"`
	Dir                   string `koanf:"Dir"`
	SaveStatsOnWebServer  string `koanf:"SaveStatsOnWebServer"`
	PushGatewayURL        string `koanf:"PushGatewayURL" validate:"required,url"`
	LokiGatewayURL        string `koanf:"LokiGatewayURL" validate:"required,url"`
	NumberOfThreads       int    `koanf:"NumberOfThreads" validate:"min=1"`
	InfluxdbURL           string `koanf:"InfluxdbURL" validate:"omitempty,url"`
	InfluxdbOrg           string `koanf:"InfluxdbOrg"`
	InfluxdbToken         string `koanf:"InfluxdbToken"`
	InfluxdbBucket        string `koanf:"InfluxdbBucket"`
	ZipkinURL             string `koanf:"ZipkinURL" validate:"omitempty,url"`
	BackendTimeoutSeconds int    `koanf:"BackendTimeoutSeconds" validate:"min=1"`
	MetricsPath           string `koanf:"MetricsPath" validate:"omitempty,startswith=/"`
}

var defaults = map[string]any{
	"JAListenAddress":                   ":9060",
	"JASaveStats.LogFileName":           "statsgateway.log",
	"JASaveStats.NumberOfThreads":       100,
	"JASaveStats.BackendTimeoutSeconds": 10,
	"JASaveStats.MetricsPath":           "/metrics",
}

// knownKeys are the keys that may be overridden from the environment.
var knownKeys = []string{
	"JALogDir",
	"JADisableWarnings",
	"JAListenAddress",
	"JASaveStats.LogFileName",
	"JASaveStats.Dir",
	"JASaveStats.SaveStatsOnWebServer",
	"JASaveStats.PushGatewayURL",
	"JASaveStats.LokiGatewayURL",
	"JASaveStats.NumberOfThreads",
	"JASaveStats.InfluxdbURL",
	"JASaveStats.InfluxdbOrg",
	"JASaveStats.InfluxdbToken",
	"JASaveStats.InfluxdbBucket",
	"JASaveStats.ZipkinURL",
	"JASaveStats.BackendTimeoutSeconds",
	"JASaveStats.MetricsPath",
}

// envKey maps STATSGW_JASAVESTATS__DIR to JASaveStats.Dir. Unknown names are dropped.
func envKey(name string) string {
	want := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, k := range knownKeys {
		if strings.ToLower(strings.ReplaceAll(k, ".", "__")) == want {
			return k
		}
	}
	return ""
}

// Load reads defaults, the startup document at path, environment overrides and
// finally overrides (typically command-line flags), then validates the result.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		case errors.Is(statErr, os.ErrNotExist) && path == DefaultPath:
		default:
			return nil, fmt.Errorf("load %s: %w", path, statErr)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}

// WarningsDisabled reports whether JADisableWarnings is set.
func (c *Config) WarningsDisabled() bool { return truthy(c.DisableWarnings) }

// PersistenceDir returns the directory for per-host files, or "" when disabled.
func (c *Config) PersistenceDir() string {
	if d := strings.TrimSpace(c.SaveStats.Dir); d != "None" {
		return d
	}
	return ""
}

// SaveStatsEnabled reports whether metrics documents are persisted.
func (c *Config) SaveStatsEnabled() bool {
	return c.PersistenceDir() != "" && truthy(c.SaveStats.SaveStatsOnWebServer)
}

// BackendTimeout is the deadline for each backend call.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.SaveStats.BackendTimeoutSeconds) * time.Second
}
