// Package config builds the gateway configuration from environment variables
// so main stays lean. Every recognized key is enumerated here; nothing reads
// the environment anywhere else.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	stringsx "scorpius-gateway/pkg/platform/strings"
)

// DevJWTSecret is the development fallback signing secret. Startup logs a
// warning whenever the process runs on it.
const DevJWTSecret = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string
	AllowedHosts []string // empty means any Host header is accepted
	CORSOrigins  []string
	DevTokens    bool // enables POST /auth/token minting for local development
}

// JWT configures bearer credential verification and (dev-only) issuance.
type JWT struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
}

// RateLimit configures the sliding window: at most Requests admitted per
// client key within any trailing Window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Redis configures the shared counter store. An empty URL disables Redis and
// the gateway runs on the in-process limiter only.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Audit configures the durable audit sinks. The structured log sink is always
// on; the others are enabled by their connection settings.
type Audit struct {
	RetentionDays int
	QueueSize     int
	PostgresDSN   string
	KafkaBrokers  []string
	KafkaTopic    string
}

// Proxy configures the backend forward step.
type Proxy struct {
	Timeout        time.Duration
	ProbeTimeout   time.Duration
	PublicServices []string // proxied without authentication
}

// Config is the root configuration assembled by FromEnv.
type Config struct {
	Server      Server
	JWT         JWT
	RateLimit   RateLimit
	Redis       Redis
	Audit       Audit
	Proxy       Proxy
	ServiceURLs map[string]string // logical service name -> base URL override
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:         getenv("GATEWAY_ADDR", ":8000"),
			AllowedHosts: splitList(os.Getenv("GATEWAY_ALLOWED_HOSTS")),
			CORSOrigins:  splitListDefault(os.Getenv("GATEWAY_CORS_ORIGINS"), []string{"*"}),
			DevTokens:    getenvBool("GATEWAY_DEV_TOKENS", false),
		},
		JWT: JWT{
			Secret:   getenv("JWT_SECRET", DevJWTSecret),
			TTL:      getenvDuration("JWT_TTL", time.Hour),
			Issuer:   getenv("JWT_ISSUER", "scorpius-gateway"),
			Audience: getenv("JWT_AUDIENCE", "scorpius"),
		},
		RateLimit: RateLimit{
			Requests: getenvInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getenvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Audit: Audit{
			RetentionDays: getenvInt("AUDIT_RETENTION_DAYS", 30),
			QueueSize:     getenvInt("AUDIT_QUEUE_SIZE", 1024),
			PostgresDSN:   os.Getenv("AUDIT_POSTGRES_DSN"),
			KafkaBrokers:  splitList(os.Getenv("AUDIT_KAFKA_BROKERS")),
			KafkaTopic:    getenv("AUDIT_KAFKA_TOPIC", "scorpius.gateway.audit"),
		},
		Proxy: Proxy{
			Timeout:        getenvDuration("PROXY_TIMEOUT", 30*time.Second),
			ProbeTimeout:   getenvDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),
			PublicServices: splitListDefault(os.Getenv("GATEWAY_PUBLIC_SERVICES"), []string{"auth-service"}),
		},
		ServiceURLs: serviceURLOverrides(),
	}
}

// serviceURLOverrides collects SERVICE_URL_<NAME> overrides, e.g.
// SERVICE_URL_WALLET_GUARD=http://wallet-guard:8085 for service "wallet-guard".
func serviceURLOverrides() map[string]string {
	overrides := make(map[string]string)
	const prefix = "SERVICE_URL_"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, prefix), "_", "-"))
		if name != "" {
			overrides[name] = value
		}
	}
	return overrides
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return stringsx.DedupeAndTrim(strings.Split(v, ","))
}

func splitListDefault(v string, def []string) []string {
	if list := splitList(v); len(list) > 0 {
		return list
	}
	return def
}
