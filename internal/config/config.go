package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fdc.yml.
type Config struct {
	Service struct {
		ID       string `yaml:"id"`
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"service"`
	Auth struct {
		JWTSecretEnv     string `yaml:"jwt_secret_env"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"auth"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	Remote struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"remote"`
	Solver struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"solver"`
	Relay struct {
		IntervalSeconds int       `yaml:"interval_seconds"`
		Webhooks        []Webhook `yaml:"webhooks"`
	} `yaml:"relay"`
	Refresh struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"refresh"`
}

// Webhook receives mission events from the relay.
type Webhook struct {
	ID             string   `yaml:"id"`
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fdc config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.ID == "" {
		return fmt.Errorf("config.service.id is required")
	}
	if c.Service.BasePath != "" && !strings.HasPrefix(c.Service.BasePath, "/") {
		return fmt.Errorf("config.service.base_path must start with /")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("config.log rotation limits must not be negative")
	}
	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.remote.base_url %q is not an absolute URL", c.Remote.BaseURL)
		}
	}
	if c.Solver.CacheSize < 0 {
		return fmt.Errorf("config.solver.cache_size must not be negative")
	}
	if c.Refresh.IntervalSeconds < 0 || c.Relay.IntervalSeconds < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	seen := map[string]bool{}
	for i, wh := range c.Relay.Webhooks {
		if wh.ID == "" {
			return fmt.Errorf("config.relay.webhooks[%d].id is required", i)
		}
		if seen[wh.ID] {
			return fmt.Errorf("duplicate webhook id %s", wh.ID)
		}
		seen[wh.ID] = true
		u, err := url.Parse(wh.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhook %s url %q must be http or https", wh.ID, wh.URL)
		}
		if len(wh.Events) == 0 {
			return fmt.Errorf("webhook %s has no events", wh.ID)
		}
	}
	return nil
}

// RefreshInterval is the polling period for mission projections.
func (c *Config) RefreshInterval() time.Duration {
	return seconds(c.Refresh.IntervalSeconds, 2)
}

// RelayInterval is the polling period for the webhook relay.
func (c *Config) RelayInterval() time.Duration {
	return seconds(c.Relay.IntervalSeconds, 2)
}

// RemoteTimeout bounds each call to a remote mission service.
func (c *Config) RemoteTimeout() time.Duration {
	return seconds(c.Remote.TimeoutSeconds, 10)
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fdc.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(serviceID string) string {
	return fmt.Sprintf(defaultTemplate, serviceID)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("fdc"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `service:
  id: %s
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret_env: FDC_JWT_SECRET
  allow_actor_header: false

log:
  level: info
  file: ""
  max_size_mb: 20
  max_backups: 3

remote:
  base_url: ""
  timeout_seconds: 10

solver:
  cache_size: 512

relay:
  interval_seconds: 2
  webhooks: []

refresh:
  interval_seconds: 2
`
