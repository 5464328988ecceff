// Package config loads the bridge configuration: built-in defaults, then an
// optional YAML file, then AGENTRELAY_* environment variables. Provider
// credentials are never part of the configuration; they are read from the
// environment at the start of every run.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "AGENTRELAY_"

// Config is the top-level bridge configuration.
type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Provider            string   `yaml:"provider"`
	Model               string   `yaml:"model"`
	BaseURL             string   `yaml:"base_url"`
	SystemPrompt        string   `yaml:"system_prompt"`
	MaxTokens           int64    `yaml:"max_tokens"`
	Temperature         *float64 `yaml:"temperature"`
	MaxIterations       int      `yaml:"max_iterations"`
	MaxImages           int      `yaml:"max_images"`
	ForwardRawResponses bool     `yaml:"forward_raw_responses"`

	// ScreenshotCommand, when set, registers a screenshot tool that runs the
	// command and reads a PNG from its stdout.
	ScreenshotCommand []string `yaml:"screenshot_command"`

	ArtifactDir        string `yaml:"artifact_dir"`
	SurfaceToolOutput  bool   `yaml:"surface_tool_output"`
	DetachOnDisconnect bool   `yaml:"detach_on_disconnect"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json, text or console
	AddSource bool   `yaml:"add_source"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:5000",
		ShutdownTimeout: 10 * time.Second,
		Provider:        ProviderAnthropic,
		MaxTokens:       4096,
		MaxIterations:   25,
		MaxImages:       10,
		ArtifactDir:     "screenshots",
		Log:             LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and environment overrides, then validates it.
// Environment variables referenced as ${VAR} in the YAML are expanded.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator-provided configuration
		if err != nil {
			return Config{}, fmt.Errorf("config: load: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from path. A missing file is
// ignored so that .env files remain optional. Variables already set in the
// environment win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("PROVIDER", &c.Provider)
	str("MODEL", &c.Model)
	str("BASE_URL", &c.BaseURL)
	str("SYSTEM_PROMPT", &c.SystemPrompt)
	str("ARTIFACT_DIR", &c.ArtifactDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "SCREENSHOT_COMMAND"); ok && v != "" {
		c.ScreenshotCommand = strings.Fields(v)
	}
	if v, ok := lookup(EnvPrefix + "MAX_TOKENS"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %sMAX_TOKENS: %w", EnvPrefix, err)
		}
		c.MaxTokens = n
	}
	if v, ok := lookup(EnvPrefix + "MAX_ITERATIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sMAX_ITERATIONS: %w", EnvPrefix, err)
		}
		c.MaxIterations = n
	}
	if v, ok := lookup(EnvPrefix + "TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %sTEMPERATURE: %w", EnvPrefix, err)
		}
		c.Temperature = &f
	}

	flags := map[string]*bool{
		"FORWARD_RAW_RESPONSES": &c.ForwardRawResponses,
		"SURFACE_TOOL_OUTPUT":   &c.SurfaceToolOutput,
		"DETACH_ON_DISCONNECT":  &c.DetachOnDisconnect,
	}
	for key, dst := range flags {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("config: addr is required")
	}
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("config: unknown provider %q (want %s or %s)", c.Provider, ProviderAnthropic, ProviderOpenAI)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("config: max_iterations must be positive")
	}
	if c.MaxImages < 0 {
		return fmt.Errorf("config: max_images must not be negative")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("config: temperature must be within [0, 2]")
	}
	if strings.TrimSpace(c.ArtifactDir) == "" {
		return fmt.Errorf("config: artifact_dir is required")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: shutdown_timeout must not be negative")
	}
	switch c.Log.Format {
	case "json", "text", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// CredentialEnv names the environment variable holding the provider API key.
func (c Config) CredentialEnv() string {
	if c.Provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}
