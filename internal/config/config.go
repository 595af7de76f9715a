// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/policy"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultDispatchTimeout = 30
	DefaultDedupeTTL       = "10m"
	DefaultDedupeMaxSize   = 512
	DefaultSkillsDir       = "skills"

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "DALO_CONFIG"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig       `toml:"log"`
	Server   ServerConfig    `toml:"server"`
	Auth     AuthConfig      `toml:"auth"`
	Dispatch DispatchConfig  `toml:"dispatch"`
	Dedupe   DedupeConfig    `toml:"dedupe"`
	Skills   SkillsConfig    `toml:"skills"`
	Accounts []AccountConfig `toml:"accounts"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds the JWT secret for the admin API.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// DispatchConfig holds the reply dispatcher endpoint.
type DispatchConfig struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DedupeConfig holds duplicate-delivery cache bounds. TTL is a duration
// string; accounts may override either field.
type DedupeConfig struct {
	TTL     string `toml:"ttl"`
	MaxSize *int   `toml:"max_size"`
}

// SkillsConfig holds the skill document directory.
type SkillsConfig struct {
	Dir string `toml:"dir"`
}

// AccountConfig is one [[accounts]] block. Credentials is the free-form
// provider credential table validated by the adapter.
type AccountConfig struct {
	ID          string         `toml:"id"`
	Channel     string         `toml:"channel"`
	Name        string         `toml:"name"`
	Enabled     *bool          `toml:"enabled"`
	BotID       string         `toml:"bot_id"`
	DMPolicy    string         `toml:"dm_policy"`
	AllowFrom   []string       `toml:"allow_from"`
	PreserveCc  bool           `toml:"preserve_cc"`
	Dedupe      DedupeConfig   `toml:"dedupe"`
	Credentials map[string]any `toml:"credentials"`
}

// ResolvePath picks the config file path: explicit flag value, then the
// DALO_CONFIG environment variable, then the default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Dispatch: DispatchConfig{
			TimeoutSeconds: DefaultDispatchTimeout,
		},
		Dedupe: DedupeConfig{
			TTL: DefaultDedupeTTL,
		},
		Skills: SkillsConfig{
			Dir: DefaultSkillsDir,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// DedupeDefaults resolves the root dedupe section into cache bounds.
func (c Config) DedupeDefaults() (channel.DedupeConfig, error) {
	return resolveDedupe(c.Dedupe, channel.DedupeConfig{
		TTL:     mustDuration(DefaultDedupeTTL),
		MaxSize: DefaultDedupeMaxSize,
	})
}

// BuildAccounts validates every account block against the adapter
// registry and returns the normalized channel configs, in file order.
// Account dedupe settings inherit the root defaults.
func BuildAccounts(cfg Config, registry *channel.Registry) ([]channel.Config, error) {
	defaults, err := cfg.DedupeDefaults()
	if err != nil {
		return nil, fmt.Errorf("dedupe: %w", err)
	}

	seen := map[string]struct{}{}
	out := make([]channel.Config, 0, len(cfg.Accounts))
	for i, account := range cfg.Accounts {
		built, err := buildAccount(account, registry, defaults)
		if err != nil {
			label := account.ID
			if label == "" {
				label = fmt.Sprintf("#%d", i+1)
			}
			return nil, fmt.Errorf("account %s: %w", label, err)
		}
		if _, dup := seen[built.ID]; dup {
			return nil, fmt.Errorf("account %s: duplicate id", built.ID)
		}
		seen[built.ID] = struct{}{}
		out = append(out, built)
	}
	return out, nil
}

func buildAccount(account AccountConfig, registry *channel.Registry, defaults channel.DedupeConfig) (channel.Config, error) {
	if strings.TrimSpace(account.ID) == "" {
		return channel.Config{}, fmt.Errorf("id is required")
	}
	channelType, err := registry.ParseType(account.Channel)
	if err != nil {
		return channel.Config{}, err
	}
	if _, err := policy.ParseDMPolicy(account.DMPolicy); err != nil {
		return channel.Config{}, err
	}
	dedupe, err := resolveDedupe(account.Dedupe, defaults)
	if err != nil {
		return channel.Config{}, fmt.Errorf("dedupe: %w", err)
	}

	built := channel.Config{
		ID:          strings.TrimSpace(account.ID),
		Type:        channelType,
		Name:        account.Name,
		BotID:       account.BotID,
		Enabled:     account.Enabled == nil || *account.Enabled,
		DMPolicy:    account.DMPolicy,
		AllowFrom:   account.AllowFrom,
		PreserveCc:  account.PreserveCc,
		Dedupe:      dedupe,
		Credentials: account.Credentials,
	}
	if err := registry.NormalizeConfig(&built); err != nil {
		return channel.Config{}, err
	}
	return built, nil
}

// resolveDedupe layers an override on top of base settings. An empty TTL
// string inherits; "0" disables age expiry. A nil MaxSize inherits; an
// explicit 0 disables the cache.
func resolveDedupe(override DedupeConfig, base channel.DedupeConfig) (channel.DedupeConfig, error) {
	out := base
	if strings.TrimSpace(override.TTL) != "" {
		ttl, err := time.ParseDuration(override.TTL)
		if err != nil {
			return channel.DedupeConfig{}, fmt.Errorf("invalid ttl %q: %w", override.TTL, err)
		}
		if ttl < 0 {
			return channel.DedupeConfig{}, fmt.Errorf("invalid ttl %q: negative", override.TTL)
		}
		out.TTL = ttl
	}
	if override.MaxSize != nil {
		if *override.MaxSize < 0 {
			return channel.DedupeConfig{}, fmt.Errorf("invalid max_size %d: negative", *override.MaxSize)
		}
		out.MaxSize = *override.MaxSize
	}
	return out, nil
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}
