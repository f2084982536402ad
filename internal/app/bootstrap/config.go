package bootstrap

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the dashboard auth core.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int

	DatabaseURL string
	RedisURL    string

	PublicBaseURL    string
	DefaultRemoteURL string
	PKCEEnabled      bool

	EncryptionKey []byte
	CSRFSecret    []byte

	SessionTTL     time.Duration
	PendingAuthTTL time.Duration

	ThrottleThreshold int
	ThrottleWindow    time.Duration
	ThrottleBlock     time.Duration

	PermCacheTTL   time.Duration
	ConfigCacheTTL time.Duration

	OAuthHTTPTimeout  time.Duration
	RefreshSkew       time.Duration
	SessionSweepEvery time.Duration
	ThrottleGCEvery   time.Duration
	MaxDBConns        int32
	SecureCookie      bool
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Auth struct {
		PublicBaseURL    string `yaml:"public_base_url"`
		DefaultRemoteURL string `yaml:"default_remote_url"`
		PKCEEnabled      *bool  `yaml:"pkce_enabled"`
		SessionTTLHours  int    `yaml:"session_ttl_hours"`
	} `yaml:"auth"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:         "homedash",
		HTTPPort:          8080,
		PKCEEnabled:       true,
		SessionTTL:        24 * time.Hour,
		PendingAuthTTL:    10 * time.Minute,
		ThrottleThreshold: 5,
		ThrottleWindow:    15 * time.Minute,
		ThrottleBlock:     15 * time.Minute,
		PermCacheTTL:      120 * time.Second,
		ConfigCacheTTL:    60 * time.Second,
		OAuthHTTPTimeout:  10 * time.Second,
		RefreshSkew:       60 * time.Second,
		SessionSweepEvery: time.Hour,
		ThrottleGCEvery:   5 * time.Minute,
		MaxDBConns:        20,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Auth.PublicBaseURL != "" {
			cfg.PublicBaseURL = f.Auth.PublicBaseURL
		}
		if f.Auth.DefaultRemoteURL != "" {
			cfg.DefaultRemoteURL = f.Auth.DefaultRemoteURL
		}
		if f.Auth.PKCEEnabled != nil {
			cfg.PKCEEnabled = *f.Auth.PKCEEnabled
		}
		if f.Auth.SessionTTLHours > 0 {
			cfg.SessionTTL = time.Duration(f.Auth.SessionTTLHours) * time.Hour
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.PublicBaseURL = strings.TrimRight(envOrDefault("PUBLIC_BASE_URL", cfg.PublicBaseURL), "/")
	cfg.DefaultRemoteURL = envOrDefault("DEFAULT_REMOTE_URL", cfg.DefaultRemoteURL)
	cfg.PKCEEnabled = envBool("OAUTH_PKCE_ENABLED", cfg.PKCEEnabled)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.SessionTTL = time.Duration(envInt("SESSION_TTL_HOURS", int(cfg.SessionTTL.Hours()))) * time.Hour
	cfg.PendingAuthTTL = time.Duration(envInt("PENDING_AUTH_TTL_MINUTES", int(cfg.PendingAuthTTL.Minutes()))) * time.Minute
	cfg.ThrottleThreshold = envInt("LOGIN_THROTTLE_THRESHOLD", cfg.ThrottleThreshold)
	cfg.ThrottleWindow = time.Duration(envInt("LOGIN_THROTTLE_WINDOW_MINUTES", int(cfg.ThrottleWindow.Minutes()))) * time.Minute
	cfg.ThrottleBlock = time.Duration(envInt("LOGIN_THROTTLE_BLOCK_MINUTES", int(cfg.ThrottleBlock.Minutes()))) * time.Minute
	cfg.PermCacheTTL = time.Duration(envInt("PERM_CACHE_TTL_SECONDS", int(cfg.PermCacheTTL.Seconds()))) * time.Second
	cfg.ConfigCacheTTL = time.Duration(envInt("CONFIG_CACHE_TTL_SECONDS", int(cfg.ConfigCacheTTL.Seconds()))) * time.Second
	cfg.OAuthHTTPTimeout = time.Duration(envInt("OAUTH_HTTP_TIMEOUT_SECONDS", int(cfg.OAuthHTTPTimeout.Seconds()))) * time.Second
	cfg.RefreshSkew = time.Duration(envInt("TOKEN_REFRESH_SKEW_SECONDS", int(cfg.RefreshSkew.Seconds()))) * time.Second
	cfg.SessionSweepEvery = time.Duration(envInt("SESSION_SWEEP_MINUTES", int(cfg.SessionSweepEvery.Minutes()))) * time.Minute
	cfg.SecureCookie = envBool("SECURE_COOKIE", strings.HasPrefix(cfg.PublicBaseURL, "https://"))

	if keyHex := os.Getenv("CREDENTIAL_ENCRYPTION_KEY"); keyHex != "" {
		key, decodeErr := hex.DecodeString(strings.TrimSpace(keyHex))
		if decodeErr != nil {
			return Config{}, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be hex: %w", decodeErr)
		}
		cfg.EncryptionKey = key
	}
	if secret := os.Getenv("CSRF_SECRET"); secret != "" {
		cfg.CSRFSecret = []byte(secret)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.PublicBaseURL == "" {
		return Config{}, fmt.Errorf("missing PUBLIC_BASE_URL")
	}
	if len(cfg.EncryptionKey) != 32 {
		return Config{}, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must decode to 32 bytes")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses boolean env vars with safe fallback on empty/invalid values.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
