// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"gopkg.in/yaml.v3"
)

// DefaultBackendURL is the WordPress host used when none is configured.
const DefaultBackendURL = "https://api.shopwice.com"

// Config holds all proxy configuration.
// Environment determines whether WooCommerce credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretName string

	Upstream UpstreamConfig
}

// UpstreamConfig locates the WordPress backend. Empty URLs are derived from
// BackendURL.
type UpstreamConfig struct {
	BackendURL      string `json:"backend_url" yaml:"backend_url"`
	GraphQLURL      string `json:"graphql_url" yaml:"graphql_url"`
	StoreAPIURL     string `json:"store_api_url" yaml:"store_api_url"`
	RESTAPIURL      string `json:"rest_api_url" yaml:"rest_api_url"`
	WordPressAPIURL string `json:"wordpress_api_url" yaml:"wordpress_api_url"`

	// WooCommerce REST credentials for the product routes.
	ConsumerKey    string `json:"consumer_key" yaml:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret" yaml:"consumer_secret"`

	ChromeTLS bool          `json:"chrome_tls" yaml:"chrome_tls"`
	Timeout   time.Duration `json:"-" yaml:"-"`
}

// credentials is the Secret Manager payload.
type credentials struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		SecretName:  envOrDefault("SECRET_NAME", "storefront-proxy"),
		Upstream: UpstreamConfig{
			BackendURL:      envOrDefault("BACKEND_URL", DefaultBackendURL),
			GraphQLURL:      os.Getenv("GRAPHQL_URL"),
			StoreAPIURL:     os.Getenv("STORE_API_URL"),
			RESTAPIURL:      os.Getenv("REST_API_URL"),
			WordPressAPIURL: os.Getenv("WORDPRESS_API_URL"),
		},
	}

	var err error
	if cfg.Upstream.ChromeTLS, err = envBool("CHROME_TLS", true); err != nil {
		return nil, err
	}
	if cfg.Upstream.Timeout, err = envDuration("UPSTREAM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.Upstream.ConsumerKey = os.Getenv("WC_CONSUMER_KEY")
		cfg.Upstream.ConsumerSecret = os.Getenv("WC_CONSUMER_SECRET")
	}
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	cfg.Upstream.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig is the CONFIG_FILE layout, JSON or YAML.
type fileConfig struct {
	Port            string         `json:"port" yaml:"port"`
	Environment     string         `json:"environment" yaml:"environment"`
	LogLevel        string         `json:"log_level" yaml:"log_level"`
	UpstreamTimeout string         `json:"upstream_timeout" yaml:"upstream_timeout"`
	Upstream        UpstreamConfig `json:"upstream" yaml:"upstream"`
}

// loadFromFile reads all configuration from a JSON or YAML file, chosen by
// extension. Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := unmarshalByExt(path, data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fc.Port, "8080"),
		Environment: withDefault(fc.Environment, "development"),
		LogLevel:    withDefault(fc.LogLevel, "info"),
		Upstream:    fc.Upstream,
	}
	cfg.Upstream.Timeout = 30 * time.Second
	if fc.UpstreamTimeout != "" {
		d, err := time.ParseDuration(fc.UpstreamTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream_timeout: %w", err)
		}
		cfg.Upstream.Timeout = d
	}

	cfg.Upstream.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshalByExt(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// loadFromSecretManager fetches WooCommerce credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	var creds credentials
	if err := json.Unmarshal(result.Payload.Data, &creds); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.Upstream.ConsumerKey = creds.ConsumerKey
	c.Upstream.ConsumerSecret = creds.ConsumerSecret
	return nil
}

func (u *UpstreamConfig) applyDefaults() {
	u.BackendURL = strings.TrimSuffix(withDefault(u.BackendURL, DefaultBackendURL), "/")
	u.GraphQLURL = strings.TrimSuffix(withDefault(u.GraphQLURL, u.BackendURL+"/graphql"), "/")
	u.StoreAPIURL = strings.TrimSuffix(withDefault(u.StoreAPIURL, u.BackendURL+"/api"), "/")
	u.WordPressAPIURL = strings.TrimSuffix(withDefault(u.WordPressAPIURL, u.BackendURL+"/api"), "/")
	u.RESTAPIURL = strings.TrimSuffix(u.RESTAPIURL, "/")
	if u.Timeout <= 0 {
		u.Timeout = 30 * time.Second
	}
}

// HasCredentials reports whether both WooCommerce REST credentials are set.
func (u UpstreamConfig) HasCredentials() bool {
	return u.ConsumerKey != "" && u.ConsumerSecret != ""
}

// NonceCandidates lists the base URLs the nonce endpoint tries, in order:
// the Store API URL, the backend's /api root, then the REST API URL.
// Duplicates and empty entries are dropped.
func (u UpstreamConfig) NonceCandidates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, base := range []string{u.StoreAPIURL, u.BackendURL + "/api", u.RESTAPIURL} {
		base = strings.TrimSuffix(base, "/")
		if base == "" || base == "/api" || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
	}
	return out
}

// validate checks that every upstream URL is an absolute http(s) URL.
func (c *Config) validate() error {
	urls := []struct{ name, value string }{
		{"backend_url", c.Upstream.BackendURL},
		{"graphql_url", c.Upstream.GraphQLURL},
		{"store_api_url", c.Upstream.StoreAPIURL},
		{"wordpress_api_url", c.Upstream.WordPressAPIURL},
	}
	if c.Upstream.RESTAPIURL != "" {
		urls = append(urls, struct{ name, value string }{"rest_api_url", c.Upstream.RESTAPIURL})
	}
	for _, u := range urls {
		if err := validateURL(u.value); err != nil {
			return fmt.Errorf("invalid %s: %w", u.name, err)
		}
	}
	if (c.Upstream.ConsumerKey == "") != (c.Upstream.ConsumerSecret == "") {
		return fmt.Errorf("consumer_key and consumer_secret must be set together")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
