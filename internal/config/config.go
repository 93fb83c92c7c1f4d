package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the file form of a verification run
type Config struct {
	Provider        string   `toml:"provider" yaml:"provider"`
	Consumer        string   `toml:"consumer" yaml:"consumer"`
	ProviderVersion string   `toml:"provider_version" yaml:"providerVersion"`
	PactURLs        []string `toml:"pact_urls" yaml:"pactUrls"`
	Fixtures        string   `toml:"fixtures" yaml:"fixtures"`
	LogLevel        string   `toml:"log_level" yaml:"logLevel"`
	MetricsAddr     string   `toml:"metrics_addr" yaml:"metricsAddr"`

	Broker   BrokerConfig   `toml:"broker" yaml:"broker"`
	Proxy    ProxyConfig    `toml:"proxy" yaml:"proxy"`
	Verifier VerifierConfig `toml:"verifier" yaml:"verifier"`
}

type BrokerConfig struct {
	URL                 string   `toml:"url" yaml:"url"`
	Username            string   `toml:"username" yaml:"username"`
	Password            string   `toml:"password" yaml:"password"`
	Token               string   `toml:"token" yaml:"token"`
	PublishResults      bool     `toml:"publish_results" yaml:"publishResults"`
	Tags                []string `toml:"tags" yaml:"tags"`
	ConsumerVersionTags []string `toml:"consumer_version_tags" yaml:"consumerVersionTags"`
}

type ProxyConfig struct {
	Host            string        `toml:"host" yaml:"host"`
	Port            int           `toml:"port" yaml:"port"`
	ReadyTimeout    time.Duration `toml:"ready_timeout" yaml:"readyTimeout"`
	ProducerTimeout time.Duration `toml:"producer_timeout" yaml:"producerTimeout"`
}

type VerifierConfig struct {
	Binary     string        `toml:"binary" yaml:"binary"`
	MinVersion string        `toml:"min_version" yaml:"minVersion"`
	Timeout    time.Duration `toml:"timeout" yaml:"timeout"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		LogLevel: "info",
		Proxy: ProxyConfig{
			Host:         "127.0.0.1",
			ReadyTimeout: 10 * time.Second,
		},
		Verifier: VerifierConfig{
			Binary: "pact-provider-verifier",
		},
	}
}

// Load reads a TOML or YAML config file, chosen by extension, on top of
// Default
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config load failed (%s): unsupported format %q", path, filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides broker settings from PACT_BROKER_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	override := func(target *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*target = v
		}
	}
	override(&c.Broker.URL, "PACT_BROKER_BASE_URL")
	override(&c.Broker.Username, "PACT_BROKER_USERNAME")
	override(&c.Broker.Password, "PACT_BROKER_PASSWORD")
	override(&c.Broker.Token, "PACT_BROKER_TOKEN")
}

// Validate checks values a run cannot start with
func Validate(cfg Config) error {
	if cfg.Proxy.Port < 0 || cfg.Proxy.Port > 65535 {
		return fmt.Errorf("proxy port %d out of range", cfg.Proxy.Port)
	}
	if cfg.Proxy.ReadyTimeout < 0 || cfg.Proxy.ProducerTimeout < 0 || cfg.Verifier.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if cfg.Broker.PublishResults && strings.TrimSpace(cfg.Broker.URL) == "" {
		return fmt.Errorf("broker url is required to publish results")
	}
	if cfg.Broker.PublishResults && strings.TrimSpace(cfg.ProviderVersion) == "" {
		return fmt.Errorf("provider version is required to publish results")
	}
	return nil
}
