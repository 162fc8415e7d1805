package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "ADVISOR_PORT", "ADVISOR_ADDRESS", "ADVISOR_LLM_BACKEND",
		"ADVISOR_API_KEY", "GEMINI_API_KEY", "ADVISOR_GCP_PROJECT",
		"ADVISOR_GCP_LOCATION", "ADVISOR_CALL_TIMEOUT", "ADVISOR_USE_MOCK_LLM",
		"ADVISOR_LOG_LEVEL", "ADVISOR_LOG_FORMAT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.LLM.Backend != BackendMock {
		t.Fatalf("backend = %q, want mock", cfg.LLM.Backend)
	}
	if cfg.LLM.CallTimeout != 60*time.Second {
		t.Fatalf("call timeout = %s", cfg.LLM.CallTimeout)
	}
	if cfg.Listen.Addr() != ":8080" {
		t.Fatalf("addr = %q", cfg.Listen.Addr())
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_GEMINI_KEY", "from-env")

	path := writeConfig(t, `
listen:
  address: 127.0.0.1
  port: 9090
llm:
  backend: gemini
  api_key: ${TEST_GEMINI_KEY}
  call_timeout: 15s
sessions:
  max_live: 10
log_level: debug
log_format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", cfg.Listen.Addr())
	}
	if cfg.LLM.Backend != BackendGemini || cfg.LLM.APIKey != "from-env" {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.CallTimeout != 15*time.Second {
		t.Fatalf("call timeout = %s", cfg.LLM.CallTimeout)
	}
	if cfg.Sessions.MaxLive != 10 || cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Fatalf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.LLM.GCPLocation != "us-central1" {
		t.Fatalf("gcp location = %q", cfg.LLM.GCPLocation)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "listen:\n  port: 9090\nllm:\n  backend: vertex\n  gcp_project: p\n")

	t.Setenv("ADVISOR_PORT", "7070")
	t.Setenv("ADVISOR_CALL_TIMEOUT", "5s")
	t.Setenv("ADVISOR_USE_MOCK_LLM", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Port != 7070 {
		t.Fatalf("port = %d, want 7070", cfg.Listen.Port)
	}
	if cfg.LLM.CallTimeout != 5*time.Second {
		t.Fatalf("call timeout = %s", cfg.LLM.CallTimeout)
	}
	if cfg.LLM.Backend != BackendMock {
		t.Fatalf("ADVISOR_USE_MOCK_LLM should force mock, got %q", cfg.LLM.Backend)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"gemini without key", func(c *Config) { c.LLM.Backend = BackendGemini }, "api_key"},
		{"vertex without project", func(c *Config) { c.LLM.Backend = BackendVertex }, "gcp_project"},
		{"unknown backend", func(c *Config) { c.LLM.Backend = "openai" }, "unknown llm.backend"},
		{"bad port", func(c *Config) { c.Listen.Port = 0 }, "listen.port"},
		{"negative timeout", func(c *Config) { c.LLM.CallTimeout = -time.Second }, "call_timeout"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want containing %q", tc.name, err, tc.want)
		}
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADVISOR_PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
}

func TestFindConfig(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit path")
	}

	path := writeConfig(t, "log_level: info\n")
	got, err := FindConfig(path)
	if err != nil || got != path {
		t.Fatalf("FindConfig = %q, %v", got, err)
	}
}
