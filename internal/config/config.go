// Package config loads server settings from config.yaml and WHENWHY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "WHENWHY_"

// DefaultFile is read when Load is given an empty path. A missing file is
// not an error.
const DefaultFile = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	AI        AIConfig        `koanf:"ai"`
	Auth      AuthConfig      `koanf:"auth"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	StaticDir       string        `koanf:"static_dir"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver        string `koanf:"driver"` // sqlite, memory
	Path          string `koanf:"path"`
	MigrationsDir string `koanf:"migrations_dir"`
}

type AIConfig struct {
	Provider string        `koanf:"provider"` // openai, fixed
	BaseURL  string        `koanf:"base_url"`
	APIKey   string        `koanf:"api_key"`
	Model    string        `koanf:"model"`
	Timeout  time.Duration `koanf:"timeout"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type LogConfig struct {
	Mode string `koanf:"mode"`
	File string `koanf:"file"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.shutdown_timeout": "10s",
	"storage.driver":          "sqlite",
	"storage.path":            "data/whenwhy.db",
	"ai.provider":             "openai",
	"ai.model":                "gpt-3.5-turbo",
	"ai.timeout":              "15s",
	"auth.token_ttl":          "24h",
	"log.mode":                "dev",
	"telemetry.service_name":  "whenwhy",
}

// Load reads path (or DefaultFile), then the environment on top. Nested
// keys use a double underscore: WHENWHY_AI__API_KEY sets ai.api_key.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envValue(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	if key == "server.cors_origins" {
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return key, origins
	}
	return key, value
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.AI.Provider {
	case "openai", "fixed":
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.AI.Timeout <= 0 {
		return errors.New("ai.timeout must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	return nil
}
