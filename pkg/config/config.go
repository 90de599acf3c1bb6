package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rahul/relay/internal/summarize"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	App        AppConfig                 `json:"app" yaml:"app"`
	Gateways   map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers  map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Log        LogConfig                 `json:"log" yaml:"log"`
	Summarizer SummarizerConfig          `json:"summarizer" yaml:"summarizer"`
	Engine     EngineConfig              `json:"engine" yaml:"engine"`
	Audit      AuditConfig               `json:"audit" yaml:"audit"`
	Metrics    MetricsConfig             `json:"metrics" yaml:"metrics"`
	Tracing    TracingConfig             `json:"tracing" yaml:"tracing"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace" yaml:"workspace"`
	Prompts   string `json:"prompts" yaml:"prompts"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// SummarizerConfig bounds digests forwarded between steps. Lengths are in
// characters.
type SummarizerConfig struct {
	Threshold int      `json:"threshold" yaml:"threshold"`
	Budget    int      `json:"budget" yaml:"budget"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
	// Model overrides the provider model for compression.
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

type EngineConfig struct {
	StepTimeout Duration `json:"step_timeout" yaml:"step_timeout"`
	MaxParallel int      `json:"max_parallel" yaml:"max_parallel"`
	MaxSteps    int      `json:"max_steps" yaml:"max_steps"`
}

type AuditConfig struct {
	DBPath     string `json:"db_path" yaml:"db_path"`
	EventsPath string `json:"events_path" yaml:"events_path"`
	MaxBytes   int64  `json:"max_bytes" yaml:"max_bytes"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type TracingConfig struct {
	Endpoint string            `json:"endpoint" yaml:"endpoint"`
	Insecure bool              `json:"insecure" yaml:"insecure"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Duration accepts "20s" style strings or a number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	case int:
		d.Duration = time.Duration(val) * time.Second
	case nil:
		d.Duration = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "relay",
			Workspace: "./workspace",
			Prompts:   "./prompts",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Summarizer: SummarizerConfig{
			Threshold: summarize.DefaultThreshold,
			Budget:    summarize.DefaultBudget,
			Timeout:   Duration{summarize.DefaultTimeout},
		},
		Engine: EngineConfig{
			StepTimeout: Duration{5 * time.Minute},
			MaxSteps:    10,
		},
		Audit: AuditConfig{
			DBPath:     "relay.db",
			EventsPath: filepath.Join("logs", "events.jsonl"),
			MaxBytes:   10 * 1024 * 1024,
		},
	}
}

// LoadConfig reads a JSON or YAML file, chosen by extension, over the
// defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the summarizer and engine bounds.
func (c *Config) Validate() error {
	s := c.Summarizer
	switch {
	case s.Threshold <= 0:
		return fmt.Errorf("%w: summarizer.threshold must be positive", ErrInvalidConfig)
	case s.Budget < summarize.MinBudget:
		return fmt.Errorf("%w: summarizer.budget must be at least %d", ErrInvalidConfig, summarize.MinBudget)
	case s.Budget > s.Threshold:
		return fmt.Errorf("%w: summarizer.budget %d exceeds threshold %d", ErrInvalidConfig, s.Budget, s.Threshold)
	case s.Timeout.Duration < 0:
		return fmt.Errorf("%w: summarizer.timeout is negative", ErrInvalidConfig)
	case c.Engine.StepTimeout.Duration < 0:
		return fmt.Errorf("%w: engine.step_timeout is negative", ErrInvalidConfig)
	case c.Engine.MaxParallel < 0:
		return fmt.Errorf("%w: engine.max_parallel is negative", ErrInvalidConfig)
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	var names []string
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", ProviderConfig{}
	}
	best := names[0]
	for _, n := range names[1:] {
		if n < best {
			best = n
		}
	}
	return best, c.Providers[best]
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled && tg.Token != "" {
		return tg, true
	}
	return GatewayConfig{}, false
}
