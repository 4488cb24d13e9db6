package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"credregistry/pkg/secrets"
)

// Server captures process level configuration for the registry API.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	// TrustedProxies may set X-Forwarded-For (TRUSTED_PROXIES, comma separated CIDRs).
	TrustedProxies []netip.Prefix

	// DatabaseURL selects the Postgres store; empty runs the in-memory store.
	DatabaseURL string
	// RedisURL selects the Redis result cache; empty uses an in-memory cache.
	RedisURL string

	// KafkaBrokers enables the outbox worker; empty leaves events unpublished.
	KafkaBrokers       string
	KafkaRegistryTopic string
	OutboxPollInterval time.Duration

	JWTSigningKey string
	JWTIssuer     string

	RegistryOwner             string
	RegistryOwnerOrganization string

	OracleURL                       string
	OracleTimeout                   time.Duration
	VerificationSimilarityThreshold float64
	VerificationCacheTTL            time.Duration
}

const (
	DefaultAddr                            = ":8080"
	DefaultKafkaRegistryTopic              = "registry.events"
	DefaultOutboxPollInterval              = 100 * time.Millisecond
	DefaultJWTIssuer                       = "credregistry"
	DefaultRegistryOwnerOrganization       = "Registry Owner"
	DefaultOracleTimeout                   = 5 * time.Second
	DefaultVerificationSimilarityThreshold = 85.0
	DefaultVerificationCacheTTL            = 5 * time.Minute

	// DevSigningKey signs tokens outside production when JWT_SIGNING_KEY is unset.
	DevSigningKey = "dev-secret-key-change-in-production"
)

// IsProduction reports whether the process runs with production safeguards.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed values fail instead of silently falling back.
func FromEnv() (Server, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Server, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := Server{
		Addr:                      get("ADDR", DefaultAddr),
		Environment:               get("ENVIRONMENT", "development"),
		LogLevel:                  get("LOG_LEVEL", "info"),
		DatabaseURL:               get("DATABASE_URL", ""),
		RedisURL:                  get("REDIS_URL", ""),
		KafkaBrokers:              get("KAFKA_BROKERS", ""),
		KafkaRegistryTopic:        get("KAFKA_REGISTRY_TOPIC", DefaultKafkaRegistryTopic),
		JWTSigningKey:             get("JWT_SIGNING_KEY", ""),
		JWTIssuer:                 get("JWT_ISSUER", DefaultJWTIssuer),
		RegistryOwner:             get("REGISTRY_OWNER", ""),
		RegistryOwnerOrganization: get("REGISTRY_OWNER_ORGANIZATION", DefaultRegistryOwnerOrganization),
		OracleURL:                 get("ORACLE_URL", ""),
	}

	var err error
	if cfg.OutboxPollInterval, err = parseDuration(get("OUTBOX_POLL_INTERVAL", ""), DefaultOutboxPollInterval, "OUTBOX_POLL_INTERVAL"); err != nil {
		return Server{}, err
	}
	if cfg.OracleTimeout, err = parseDuration(get("ORACLE_TIMEOUT", ""), DefaultOracleTimeout, "ORACLE_TIMEOUT"); err != nil {
		return Server{}, err
	}
	if cfg.VerificationCacheTTL, err = parseDuration(get("VERIFICATION_CACHE_TTL", ""), DefaultVerificationCacheTTL, "VERIFICATION_CACHE_TTL"); err != nil {
		return Server{}, err
	}

	if cfg.TrustedProxies, err = parsePrefixes(get("TRUSTED_PROXIES", "")); err != nil {
		return Server{}, err
	}

	cfg.VerificationSimilarityThreshold = DefaultVerificationSimilarityThreshold
	if raw := get("VERIFICATION_SIMILARITY_THRESHOLD", ""); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 || threshold > 100 {
			return Server{}, fmt.Errorf("VERIFICATION_SIMILARITY_THRESHOLD must be a number between 0 and 100, got %q", raw)
		}
		cfg.VerificationSimilarityThreshold = threshold
	}

	if cfg.JWTSigningKey == "" {
		if cfg.IsProduction() {
			return Server{}, fmt.Errorf("JWT_SIGNING_KEY is required in production")
		}
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = DevSigningKey
	}
	if cfg.IsProduction() {
		if err := secrets.CheckSigningKey(cfg.JWTSigningKey); err != nil {
			return Server{}, fmt.Errorf("JWT_SIGNING_KEY: %w", err)
		}
	}
	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration, key string) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func parsePrefixes(raw string) ([]netip.Prefix, error) {
	if raw == "" {
		return nil, nil
	}
	var prefixes []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES must be comma separated CIDR prefixes, got %q", part)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}
