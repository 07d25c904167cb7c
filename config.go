// config.go loads settings: built-in defaults, then the YAML file, then
// environment variables.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// appName names the config directory and the default database.
const appName = "llamarename"

// Config is the full application configuration.
type Config struct {
	Provider    string        `yaml:"provider"` // ollama or openai
	Ollama      OllamaConfig  `yaml:"ollama"`
	OpenAI      OpenAIConfig  `yaml:"openai"`
	Vision      VisionConfig  `yaml:"vision"`
	Naming      NamingConfig  `yaml:"naming"`
	Files       FilesConfig   `yaml:"files"`
	Concurrency int           `yaml:"concurrency"`
	History     HistoryConfig `yaml:"history"`
	MCP         MCPConfig     `yaml:"mcp"`
	HTTP        HTTPConfig    `yaml:"http"`
	Logging     LoggingConfig `yaml:"logging"`
}

type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// VisionConfig enables naming images with a vision model. Empty fields fall
// back to the text provider's settings.
type VisionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // openai only
	APIKey  string `yaml:"api_key"`  // openai only
}

type NamingConfig struct {
	Style       string `yaml:"style"`
	IncludeDate bool   `yaml:"include_date"`
	Template    string `yaml:"template"`
	CustomRules string `yaml:"custom_rules"`
	MaxChars    int    `yaml:"max_chars"` // extracted text sent to the model
}

type FilesConfig struct {
	Extensions         []string `yaml:"extensions"`
	DefaultDestination string   `yaml:"default_destination"` // empty keeps files in their folder
	AutoCategorize     bool     `yaml:"auto_categorize"`
}

type HistoryConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`    // file path for sqlite
}

// MCPConfig controls the MCP server on stdin/stdout.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderOllama,
		Ollama:   OllamaConfig{URL: DefaultOllamaURL, Model: "llama3.2"},
		OpenAI:   OpenAIConfig{BaseURL: DefaultOpenAIBaseURL, Model: "gpt-4o-mini"},
		Naming:   NamingConfig{Style: StyleKebab, MaxChars: DefaultMaxChars},
		Files:    FilesConfig{Extensions: slices.Clone(DefaultExtensions)},

		Concurrency: DefaultConcurrency,
		History:     HistoryConfig{Driver: HistoryDriverSQLite, DSN: filepath.Join(configDir(), "history.db")},
		MCP:         MCPConfig{Enabled: true},
		HTTP:        HTTPConfig{Addr: "127.0.0.1:7431"},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
	}
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, appName)
}

// DefaultConfigPath is where the config file is looked for when neither
// -config nor LLAMARENAME_CONFIG is set.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// LoadConfig reads path over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("LLAMARENAME_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		c.Ollama.URL = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := getenv("LLAMARENAME_MODEL"); v != "" {
		if c.Provider == ProviderOpenAI {
			c.OpenAI.Model = v
		} else {
			c.Ollama.Model = v
		}
	}
	if v := getenv("LLAMARENAME_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := getenv("LLAMARENAME_HISTORY_DRIVER"); v != "" {
		c.History.Driver = v
	}
	if v := getenv("LLAMARENAME_HISTORY_DSN"); v != "" {
		c.History.DSN = v
	}
	if v := getenv("LLAMARENAME_HTTP_ADDR"); v != "" {
		c.HTTP.Enabled = true
		c.HTTP.Addr = v
	}
	if v := getenv("LLAMARENAME_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderOllama:
		if c.Ollama.Model == "" {
			errs = append(errs, errors.New("ollama.model is required"))
		}
	case ProviderOpenAI:
		if c.OpenAI.Model == "" {
			errs = append(errs, errors.New("openai.model is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q (want ollama or openai)", c.Provider))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Naming.Style != "" && !slices.Contains(NamingStyles, c.Naming.Style) {
		errs = append(errs, fmt.Errorf("unknown naming style %q", c.Naming.Style))
	}
	switch c.History.Driver {
	case HistoryDriverSQLite, HistoryDriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown history driver %q (want sqlite or postgres)", c.History.Driver))
	}
	if c.History.DSN == "" {
		errs = append(errs, errors.New("history.dsn is required"))
	}
	if !c.MCP.Enabled && !c.HTTP.Enabled {
		errs = append(errs, errors.New("nothing to serve: enable mcp or http"))
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required when http is enabled"))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// NamingOptions returns the prompt settings.
func (c *Config) NamingOptions() NamingOptions {
	return NamingOptions{
		Style:       c.Naming.Style,
		IncludeDate: c.Naming.IncludeDate,
		Template:    c.Naming.Template,
		CustomRules: c.Naming.CustomRules,
	}
}

// textModel returns the model name of the active provider.
func (c *Config) textModel() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAI.Model
	}
	return c.Ollama.Model
}
