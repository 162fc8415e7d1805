package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

type Backend string

const (
	BackendMock   Backend = "mock"
	BackendGemini Backend = "gemini"
	BackendVertex Backend = "vertex"
)

type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	LLM      LLMConfig      `yaml:"llm"`
	Sessions SessionsConfig `yaml:"sessions"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"
}

type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

type LLMConfig struct {
	Backend     Backend       `yaml:"backend"`
	APIKey      string        `yaml:"api_key"`
	GCPProject  string        `yaml:"gcp_project"`
	GCPLocation string        `yaml:"gcp_location"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

type SessionsConfig struct {
	MaxLive int `yaml:"max_live"` // 0 = unlimited
}

// Addr is the listen address for http.Server.
func (l ListenConfig) Addr() string {
	return l.Address + ":" + strconv.Itoa(l.Port)
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			Backend:     BackendMock,
			GCPLocation: "us-central1",
			CallTimeout: 60 * time.Second,
		},
		Sessions:  SessionsConfig{MaxLive: 1000},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// DefaultSearchPaths returns the config file locations checked in order.
func DefaultSearchPaths() []string {
	paths := []string{"advisor.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "carbon-advisor", "advisor.yaml"))
	}
	return append(paths, "/etc/carbon-advisor/advisor.yaml")
}

// FindConfig returns explicit if it exists, otherwise the first existing
// default path. An empty result without error means "no file, use
// defaults and environment".
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load builds the config: defaults, then the YAML file at path (if any,
// with ${VAR} expansion), then ADVISOR_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := getEnv("ADVISOR_PORT", os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", v, err)
		}
		c.Listen.Port = port
	}
	c.Listen.Address = getEnv("ADVISOR_ADDRESS", c.Listen.Address)

	c.LLM.Backend = Backend(getEnv("ADVISOR_LLM_BACKEND", string(c.LLM.Backend)))
	c.LLM.APIKey = getEnv("ADVISOR_API_KEY", getEnv("GEMINI_API_KEY", c.LLM.APIKey))
	c.LLM.GCPProject = getEnv("ADVISOR_GCP_PROJECT", c.LLM.GCPProject)
	c.LLM.GCPLocation = getEnv("ADVISOR_GCP_LOCATION", c.LLM.GCPLocation)
	if v := os.Getenv("ADVISOR_CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ADVISOR_CALL_TIMEOUT %q: %w", v, err)
		}
		c.LLM.CallTimeout = d
	}
	// true = use mock even when credentials are configured
	if getBoolEnv("ADVISOR_USE_MOCK_LLM", false) {
		c.LLM.Backend = BackendMock
	}

	c.LogLevel = getEnv("ADVISOR_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("ADVISOR_LOG_FORMAT", c.LogFormat)
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port out of range: %d", c.Listen.Port)
	}
	switch c.LLM.Backend {
	case BackendMock:
	case BackendGemini:
		if c.LLM.APIKey == "" {
			return errors.New("llm.api_key (or ADVISOR_API_KEY) must be set for the gemini backend")
		}
	case BackendVertex:
		if c.LLM.GCPProject == "" || c.LLM.GCPLocation == "" {
			return errors.New("llm.gcp_project and llm.gcp_location must be set for the vertex backend")
		}
	default:
		return fmt.Errorf("unknown llm.backend %q (valid: mock, gemini, vertex)", c.LLM.Backend)
	}
	if c.LLM.CallTimeout < 0 {
		return fmt.Errorf("llm.call_timeout must not be negative: %s", c.LLM.CallTimeout)
	}
	if c.Sessions.MaxLive < 0 {
		return fmt.Errorf("sessions.max_live must not be negative: %d", c.Sessions.MaxLive)
	}
	if _, err := observability.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}
