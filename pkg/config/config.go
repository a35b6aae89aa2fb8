package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	ProxiedBy = "FluxGate/2.1"
	ProxyMode = "Streaming"
)

// Config is built once at start-up and shared read-only by every handler.
// Nothing in the request path may modify it.
type Config struct {
	Port    string
	Prefork bool

	RulesetPath           string
	AllowedDomains        []string
	AllowedDomainsRuleset bool

	UserAgent    string
	ForwardedFor string
	Timeout      time.Duration
	MaxBodyBytes int64

	// ExtractHops bounds client-side redirect following on extraction
	// endpoints, PassthroughHops on /api/proxy.
	ExtractHops     int
	PassthroughHops int

	CORS Headers

	LogURLs  bool
	LogLevel string
}

// Headers is an ordered header table.
type Headers []Header

type Header struct {
	Key   string
	Value string
}

// Default returns the built-in configuration with no environment applied.
func Default() Config {
	return Config{
		Port:            "8080",
		UserAgent:       DefaultUserAgent,
		Timeout:         15 * time.Second,
		MaxBodyBytes:    10 * 1024 * 1024,
		ExtractHops:     2,
		PassthroughHops: 3,
		CORS: Headers{
			{Key: "Access-Control-Allow-Origin", Value: "*"},
			{Key: "Access-Control-Allow-Methods", Value: "GET, POST, OPTIONS"},
			{Key: "Access-Control-Allow-Headers", Value: "Content-Type, Authorization"},
		},
		LogLevel: "info",
	}
}

// FromEnv layers environment variables over Default.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg.Port = get("PORT", cfg.Port)
	cfg.Prefork = get("PREFORK", "") == "true"
	cfg.RulesetPath = get("RULESET", "")
	cfg.UserAgent = get("USER_AGENT", cfg.UserAgent)
	cfg.ForwardedFor = get("X_FORWARDED_FOR", "")
	cfg.AllowedDomainsRuleset = get("ALLOWED_DOMAINS_RULESET", "") == "true"
	cfg.LogURLs = get("LOG_URLS", "") == "true"
	cfg.LogLevel = strings.ToLower(get("LOG_LEVEL", cfg.LogLevel))

	for _, d := range strings.Split(get("ALLOWED_DOMAINS", ""), ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			cfg.AllowedDomains = append(cfg.AllowedDomains, d)
		}
	}

	if s := get("HTTP_TIMEOUT", ""); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("HTTP_TIMEOUT must be a positive number of seconds, got %q", s)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	if s := get("MAX_BODY_BYTES", ""); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("MAX_BODY_BYTES must be a positive integer, got %q", s)
		}
		cfg.MaxBodyBytes = n
	}

	return cfg, cfg.Validate()
}

// Validate checks the invariants the handlers rely on.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must be set")
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("user agent must be set")
	}
	if c.ExtractHops < 0 || c.PassthroughHops < 0 {
		return fmt.Errorf("hop limits must be >= 0 (extract=%d, passthrough=%d)", c.ExtractHops, c.PassthroughHops)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be > 0 (got %d)", c.MaxBodyBytes)
	}
	return nil
}

// DomainAllowed reports whether host may be fetched. An empty allow-list
// permits everything; entries match the host itself or any subdomain.
func (c *Config) DomainAllowed(host string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range c.AllowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
