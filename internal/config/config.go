package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models opsdeck.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret   string `yaml:"jwt_secret"`
		TokenTTLMin int    `yaml:"token_ttl_minutes"`
	} `yaml:"auth"`
	Secrets struct {
		EncryptionKey string `yaml:"encryption_key"`
	} `yaml:"secrets"`
	Aggregation struct {
		AdapterTimeoutSeconds int `yaml:"adapter_timeout_seconds"`
		OuterDeadlineSeconds  int `yaml:"outer_deadline_seconds"`
		MaxItems              int `yaml:"max_items"`
	} `yaml:"aggregation"`
	Bootstrap struct {
		AdminUsername string `yaml:"admin_username"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"bootstrap"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with opsdeck config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Secrets.EncryptionKey == "" {
		return fmt.Errorf("config.secrets.encryption_key is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config.auth.jwt_secret is required")
	}
	if c.Aggregation.AdapterTimeoutSeconds < 0 || c.Aggregation.OuterDeadlineSeconds < 0 {
		return fmt.Errorf("config.aggregation timeouts must not be negative")
	}
	if c.Aggregation.OuterDeadlineSeconds > 0 && c.Aggregation.AdapterTimeoutSeconds > 0 &&
		c.Aggregation.OuterDeadlineSeconds <= c.Aggregation.AdapterTimeoutSeconds {
		return fmt.Errorf("config.aggregation.outer_deadline_seconds must exceed adapter_timeout_seconds")
	}
	return nil
}

// AdapterTimeout is the per-request HTTP client timeout inside an adapter.
func (c *Config) AdapterTimeout() time.Duration {
	if c.Aggregation.AdapterTimeoutSeconds > 0 {
		return time.Duration(c.Aggregation.AdapterTimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// OuterDeadline is the orchestrator-level ceiling per service, always wider
// than the adapter timeout.
func (c *Config) OuterDeadline() time.Duration {
	if c.Aggregation.OuterDeadlineSeconds > 0 {
		return time.Duration(c.Aggregation.OuterDeadlineSeconds) * time.Second
	}
	return 15 * time.Second
}

// MaxItems bounds each widget's item list.
func (c *Config) MaxItems() int {
	if c.Aggregation.MaxItems > 0 {
		return c.Aggregation.MaxItems
	}
	return 50
}

func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLMin > 0 {
		return time.Duration(c.Auth.TokenTTLMin) * time.Minute
	}
	return 12 * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "opsdeck.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: ":8085"
  base_path: /v0

auth:
  jwt_secret: change-me-in-production
  token_ttl_minutes: 720

secrets:
  encryption_key: change-me-in-production

aggregation:
  adapter_timeout_seconds: 10
  outer_deadline_seconds: 15
  max_items: 50

bootstrap:
  admin_username: admin
  admin_password: admin
`
