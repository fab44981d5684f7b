// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package config loads tribunal configuration from defaults, an optional
// YAML file, the environment and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/xdg"
)

// EnvPrefix prefixes every environment override, e.g. TRIBUNAL_HTTP_ADDR.
const EnvPrefix = "TRIBUNAL_"

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the full tribunal configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" json:"http,omitempty"`
	Metrics  AddrConfig     `koanf:"metrics" json:"metrics,omitempty"`
	Control  ControlConfig  `koanf:"control" json:"control,omitempty"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty"`
	Store    StoreConfig    `koanf:"store" json:"store,omitempty"`
	Auth     AuthConfig     `koanf:"auth" json:"auth,omitempty"`
	Upload   UploadConfig   `koanf:"upload" json:"upload,omitempty"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty"`
	Client   ClientConfig   `koanf:"client" json:"client,omitempty"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=API listen address (host:port)"`
}

// AddrConfig is a listener that can be disabled with an empty address.
type AddrConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=listen address; empty disables"`
}

// ControlConfig configures the gRPC health listener. With TLS on, a local
// CA and server certificate are kept in CertsDir.
type ControlConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=listen address; empty disables"`
	TLS      bool   `koanf:"tls" json:"tls,omitempty"`
	CertsDir string `koanf:"certs_dir" json:"certs_dir,omitempty"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url" json:"url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
}

// StoreConfig selects the account store.
type StoreConfig struct {
	Kind string `koanf:"kind" json:"kind,omitempty" jsonschema:"enum=postgres,enum=memory"`
}

// AuthConfig configures tokens and the account lifecycle.
type AuthConfig struct {
	JWTSecret       string        `koanf:"jwt_secret" json:"jwt_secret,omitempty" jsonschema:"minLength=32"`
	Issuer          string        `koanf:"issuer" json:"issuer,omitempty"`
	TokenTTL        time.Duration `koanf:"token_ttl" json:"token_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
	LicenseAttempts int           `koanf:"license_attempts" json:"license_attempts,omitempty" jsonschema:"minimum=1,maximum=50"`
	PhoneRegion     string        `koanf:"phone_region" json:"phone_region,omitempty" jsonschema:"pattern=^[A-Z]{2}$"`
}

// UploadConfig configures document upload presigning.
type UploadConfig struct {
	Enabled       bool   `koanf:"enabled" json:"enabled,omitempty"`
	Bucket        string `koanf:"bucket" json:"bucket,omitempty"`
	Region        string `koanf:"region" json:"region,omitempty"`
	Endpoint      string `koanf:"endpoint" json:"endpoint,omitempty"`
	PublicBaseURL string `koanf:"public_base_url" json:"public_base_url,omitempty"`
	AccessKey     string `koanf:"access_key" json:"access_key,omitempty"`
	SecretKey     string `koanf:"secret_key" json:"secret_key,omitempty"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ClientConfig configures the CLI client.
type ClientConfig struct {
	ServerURL string        `koanf:"server_url" json:"server_url,omitempty"`
	SessionDB string        `koanf:"session_db" json:"session_db,omitempty"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout,omitempty" jsonschema:"oneof_type=string;integer"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
		Metrics: AddrConfig{Addr: "127.0.0.1:9100"},
		Control: ControlConfig{Addr: "127.0.0.1:9101", TLS: true, CertsDir: xdg.CertsDir()},
		Store:   StoreConfig{Kind: StorePostgres},
		Auth: AuthConfig{
			Issuer:          "tribunal",
			TokenTTL:        auth.DefaultSessionTTL,
			LicenseAttempts: auth.DefaultLicenseAttempts,
			PhoneRegion:     auth.DefaultPhoneRegion,
		},
		Upload: UploadConfig{Region: "us-east-1"},
		Log:    LogConfig{Format: "json", Level: "info"},
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:8080",
			SessionDB: xdg.SessionDB(),
			Timeout:   15 * time.Second,
		},
	}
}

// Load builds a Config. path names a YAML file; when empty the XDG default
// is used if it exists. flags may be nil. Only flags whose names appear in
// flagKeys contribute, and only when explicitly set or not otherwise
// configured.
func Load(path string, flags *pflag.FlagSet, flagKeys map[string]string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}

	plainURL := env.ProviderWithValue("DATABASE_URL", ".", func(name, value string) (string, interface{}) {
		if name != "DATABASE_URL" || value == "" {
			return "", nil
		}
		return "database.url", value
	})
	if err := k.Load(plainURL, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}
	prefixed := env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return envKey(name), value
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// envKey maps TRIBUNAL_AUTH_JWT_SECRET to auth.jwt_secret. Every key has
// exactly one section, so only the first underscore separates.
func envKey(name string) string {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, key, ok := strings.Cut(rest, "_")
	if !ok {
		return rest
	}
	return section + "." + key
}

// ValidateServer checks the settings `tribunal serve` depends on.
func (c *Config) ValidateServer() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "is required for the postgres store")
		}
	default:
		return invalid("store.kind", "must be postgres or memory")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return invalid("auth.jwt_secret", "must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return invalid("auth.token_ttl", "must be positive")
	}
	if c.Auth.LicenseAttempts < 1 {
		return invalid("auth.license_attempts", "must be at least 1")
	}
	if c.Control.Addr != "" && c.Control.TLS && c.Control.CertsDir == "" {
		return invalid("control.certs_dir", "is required when control TLS is on")
	}
	if c.Upload.Enabled && c.Upload.Bucket == "" {
		return invalid("upload.bucket", "is required when uploads are enabled")
	}
	return c.validateLog()
}

// ValidateClient checks the settings CLI client commands depend on.
func (c *Config) ValidateClient() error {
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("client.server_url", "must be an http(s) URL")
	}
	if c.Client.SessionDB == "" {
		return invalid("client.session_db", "is required")
	}
	if c.Client.Timeout <= 0 {
		return invalid("client.timeout", "must be positive")
	}
	return c.validateLog()
}

func (c *Config) validateLog() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "must be json or text")
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, msg)
}
