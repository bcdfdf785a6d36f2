package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backend names accepted by ClientConfig.Backend.
const (
	BackendGraphQL  = "graphql"
	BackendStoreAPI = "storeapi"
)

// ClientConfig configures cartctl. Fields left empty take defaults; flags
// override whatever the file sets.
type ClientConfig struct {
	ProxyURL         string `json:"proxy_url" yaml:"proxy_url"`
	Backend          string `json:"backend" yaml:"backend"`
	StatePath        string `json:"state_path" yaml:"state_path"`
	PlaceholderImage string `json:"placeholder_image" yaml:"placeholder_image"`
	Timeout          string `json:"timeout" yaml:"timeout"`
	LogLevel         string `json:"log_level" yaml:"log_level"`
}

// DefaultClientConfig returns the settings used without a config file.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ProxyURL:  "http://localhost:8080",
		Backend:   BackendGraphQL,
		StatePath: defaultStatePath(),
		Timeout:   "30s",
		LogLevel:  "warn",
	}
}

// LoadClient reads a JSON or YAML client config over the defaults. An empty
// path returns the defaults.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ClientConfig{}, fmt.Errorf("reading client config: %w", err)
		}
		var fc ClientConfig
		if err := unmarshalByExt(path, data, &fc); err != nil {
			return ClientConfig{}, fmt.Errorf("parsing client config: %w", err)
		}
		cfg = cfg.merge(fc)
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// merge returns c with every non-empty field of o applied.
func (c ClientConfig) merge(o ClientConfig) ClientConfig {
	c.ProxyURL = withDefault(o.ProxyURL, c.ProxyURL)
	c.Backend = withDefault(o.Backend, c.Backend)
	c.StatePath = withDefault(o.StatePath, c.StatePath)
	c.PlaceholderImage = withDefault(o.PlaceholderImage, c.PlaceholderImage)
	c.Timeout = withDefault(o.Timeout, c.Timeout)
	c.LogLevel = withDefault(o.LogLevel, c.LogLevel)
	return c
}

// Validate checks the backend name, proxy URL and timeout.
func (c ClientConfig) Validate() error {
	if c.Backend != BackendGraphQL && c.Backend != BackendStoreAPI {
		return fmt.Errorf("backend must be %q or %q, got %q", BackendGraphQL, BackendStoreAPI, c.Backend)
	}
	if err := validateURL(c.ProxyURL); err != nil {
		return fmt.Errorf("invalid proxy_url: %w", err)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses Timeout.
func (c ClientConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	return d, nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".cartctl-state.json"
	}
	return filepath.Join(dir, "cartctl", "state.json")
}
