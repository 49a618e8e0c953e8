// Package server provides configuration helpers that define runtime defaults,
// validation, and security parameters for the chat gateway.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// AuthConfig holds the token-signing parameters and the development-mode
// switch. DevMode defaults to off and must be enabled explicitly; it allows
// clients to authenticate with a bare placeholder username and no token.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	DevMode   bool
}

// AuditConfig controls the persistent audit sink.
type AuditConfig struct {
	DBPath    string
	QueueSize int
}

// Credential is one entry of the fixed, externally configured account list.
type Credential struct {
	Username    string
	Password    string
	DisplayName string
}

// Config holds the gateway configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	Auth           AuthConfig
	Audit          AuditConfig
	AESSecret      string
	Accounts       []Credential
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultAccounts() []Credential {
	return []Credential{
		{Username: "admin", Password: "admin123", DisplayName: "Administrador"},
		{Username: "usuario1", Password: "pass123", DisplayName: "Usuario Uno"},
		{Username: "usuario2", Password: "pass123", DisplayName: "Usuario Dos"},
		{Username: "test", Password: "test", DisplayName: "Usuario Test"},
		{Username: "matias", Password: "123456", DisplayName: "Matías"},
		{Username: "ana", Password: "abcdef", DisplayName: "Ana"},
	}
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: "",
			TokenTTL:  2 * time.Hour,
			DevMode:   false,
		},
		Audit: AuditConfig{
			DBPath:    "data/audit.db",
			QueueSize: 256,
		},
		AESSecret: "",
		Accounts:  defaultAccounts(),
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 2 * time.Hour
	}

	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 256
	}

	if len(cfg.Accounts) == 0 {
		cfg.Accounts = defaultAccounts()
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:           cfg.Port,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit:      cfg.RateLimit,
		Auth:           cfg.Auth,
		Audit:          cfg.Audit,
		AESSecret:      cfg.AESSecret,
		Accounts:       append([]Credential(nil), cfg.Accounts...),
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.Accounts = append([]Credential(nil), cfg.Accounts...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if ttl := os.Getenv("JWT_TTL"); ttl != "" {
		cfg.Auth.TokenTTL = parseDuration(ttl, cfg.Auth.TokenTTL)
	}

	if dev := os.Getenv("DEV_AUTH_ENABLED"); dev != "" {
		cfg.Auth.DevMode = parseBool(dev, cfg.Auth.DevMode)
	}

	if users := os.Getenv("DEV_USERS"); users != "" {
		if parsed := parseAccounts(users); len(parsed) > 0 {
			cfg.Accounts = parsed
		}
	}

	if secret := os.Getenv("AES_SECRET"); secret != "" {
		cfg.AESSecret = secret
	}

	if path := os.Getenv("AUDIT_DB_PATH"); path != "" {
		cfg.Audit.DBPath = path
	}

	if size := os.Getenv("AUDIT_QUEUE_SIZE"); size != "" {
		cfg.Audit.QueueSize = parseIntValue(size, cfg.Audit.QueueSize)
	}

	return &cfg
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseAccounts parses the DEV_USERS format "user:pass:display,user:pass,...".
// The display name is optional and defaults to the username.
func parseAccounts(value string) []Credential {
	var accounts []Credential
	for _, entry := range strings.Split(value, ",") {
		fields := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			continue
		}
		cred := Credential{Username: fields[0], Password: fields[1], DisplayName: fields[0]}
		if len(fields) == 3 && fields[2] != "" {
			cred.DisplayName = fields[2]
		}
		accounts = append(accounts, cred)
	}
	return accounts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}
