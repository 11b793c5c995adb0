package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
  allowed_origins:
    - "http://kiosk.local"
broadcast:
  echo_to_sender: false
  frame_format: json
input:
  poll_interval: 50ms
  debounce_window: 400ms
  lines:
    - name: red
      pin: GPIO5
      payload: "RED"
    - name: green
      pin: GPIO6
      pull: down
      payload: "GREEN"
      debounce_window: 1s
`)

	cfg, err := Load(cfgPath, false)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://kiosk.local" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Broadcast.EchoToSender {
		t.Error("Broadcast.EchoToSender = true, want false")
	}
	if cfg.Broadcast.FrameFormat != "json" {
		t.Errorf("FrameFormat = %q, want json", cfg.Broadcast.FrameFormat)
	}
	if cfg.Input.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v, want 50ms", cfg.Input.PollInterval)
	}

	if len(cfg.Input.Lines) != 2 {
		t.Fatalf("len(Lines) = %d, want 2 (file replaces default lines)", len(cfg.Input.Lines))
	}
	red, green := cfg.Input.Lines[0], cfg.Input.Lines[1]
	if red.Pull != "up" || red.Active != "low" {
		t.Errorf("red pull/active = %s/%s, want up/low", red.Pull, red.Active)
	}
	if red.DebounceWindow != 400*time.Millisecond {
		t.Errorf("red DebounceWindow = %v, want inherited 400ms", red.DebounceWindow)
	}
	if green.Pull != "down" || green.Active != "high" {
		t.Errorf("green pull/active = %s/%s, want down/high", green.Pull, green.Active)
	}
	if green.DebounceWindow != time.Second {
		t.Errorf("green DebounceWindow = %v, want 1s", green.DebounceWindow)
	}

	// Defaults survive for unspecified fields.
	if cfg.Broadcast.SendBuffer != 64 {
		t.Errorf("SendBuffer = %d, want default 64", cfg.Broadcast.SendBuffer)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 5s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml", false); err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadMissingFileAllowed(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml", true)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want default 8000", cfg.Server.Port)
	}
	if !cfg.Broadcast.EchoToSender {
		t.Error("EchoToSender should default to true")
	}
	if len(cfg.Input.Lines) != 2 {
		t.Errorf("len(Lines) = %d, want 2 default lines", len(cfg.Input.Lines))
	}
	for _, l := range cfg.Input.Lines {
		if l.Active != "low" {
			t.Errorf("line %s Active = %q, want low for pull-up", l.Name, l.Active)
		}
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, ":::not valid yaml"), false); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("KEYCAST_HOST", "10.0.0.2")
	t.Setenv("KEYCAST_INPUT", "off")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"), false)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env 7070", cfg.Server.Port)
	}
	if cfg.Server.Host != "10.0.0.2" {
		t.Errorf("Server.Host = %q, want env host", cfg.Server.Host)
	}
	if cfg.Input.Enabled {
		t.Error("Input.Enabled should be false with KEYCAST_INPUT=off")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"bad frame format", func(c *Config) { c.Broadcast.FrameFormat = "xml" }},
		{"zero send buffer", func(c *Config) { c.Broadcast.SendBuffer = 0 }},
		{"zero write wait", func(c *Config) { c.Broadcast.WriteWait = 0 }},
		{"zero poll interval", func(c *Config) { c.Input.PollInterval = 0 }},
		{"zero debounce", func(c *Config) { c.Input.DebounceWindow = 0 }},
		{"zero event buffer", func(c *Config) { c.Input.EventBuffer = 0 }},
		{"line without name", func(c *Config) { c.Input.Lines[0].Name = "" }},
		{"duplicate line", func(c *Config) { c.Input.Lines[1].Name = c.Input.Lines[0].Name }},
		{"line without pin", func(c *Config) { c.Input.Lines[0].Pin = "" }},
		{"line without payload", func(c *Config) { c.Input.Lines[0].Payload = "" }},
		{"bad pull", func(c *Config) { c.Input.Lines[0].Pull = "sideways" }},
		{"bad active", func(c *Config) { c.Input.Lines[0].Active = "maybe" }},
	}

	base := defaultConfig()
	base.normalize()
	if err := base.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.normalize()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.ServerAddress(); got != "0.0.0.0:8000" {
		t.Errorf("ServerAddress() = %q, want 0.0.0.0:8000", got)
	}
}
