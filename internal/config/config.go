package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Input     InputConfig     `yaml:"input"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	StaticDir       string        `yaml:"static_dir"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type BroadcastConfig struct {
	EchoToSender   bool          `yaml:"echo_to_sender"`
	FrameFormat    string        `yaml:"frame_format"`
	SendBuffer     int           `yaml:"send_buffer"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

type InputConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Simulate       bool          `yaml:"simulate"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
	EventBuffer    int           `yaml:"event_buffer"`
	Lines          []LineConfig  `yaml:"lines"`
}

// LineConfig assigns one physical input line. Pull is "up", "down" or
// "none"; Active is the level that counts as a press ("low" or "high").
type LineConfig struct {
	Name           string        `yaml:"name"`
	Pin            string        `yaml:"pin"`
	Pull           string        `yaml:"pull"`
	Active         string        `yaml:"active"`
	Payload        string        `yaml:"payload"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			Host:            "0.0.0.0",
			ShutdownTimeout: 5 * time.Second,
		},
		Broadcast: BroadcastConfig{
			EchoToSender:   true,
			FrameFormat:    "text",
			SendBuffer:     64,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			MaxMessageSize: 4096,
		},
		Input: InputConfig{
			Enabled:        true,
			PollInterval:   100 * time.Millisecond,
			DebounceWindow: 300 * time.Millisecond,
			EventBuffer:    32,
			Lines: []LineConfig{
				{Name: "button_a", Pin: "GPIO17", Pull: "up", Payload: "A"},
				{Name: "button_b", Pin: "GPIO27", Pull: "up", Payload: "B"},
			},
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. When allowMissing is set a
// non-existent file yields the defaults.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case allowMissing && errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KEYCAST_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("KEYCAST_STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}
	if v := os.Getenv("KEYCAST_INPUT"); strings.EqualFold(v, "off") {
		c.Input.Enabled = false
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// normalize fills per-line defaults that depend on other fields.
func (c *Config) normalize() {
	for i := range c.Input.Lines {
		l := &c.Input.Lines[i]
		if l.Pull == "" {
			l.Pull = "up"
		}
		if l.Active == "" {
			if l.Pull == "up" {
				l.Active = "low"
			} else {
				l.Active = "high"
			}
		}
		if l.DebounceWindow == 0 {
			l.DebounceWindow = c.Input.DebounceWindow
		}
	}
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Server.Port)
	}
	switch c.Broadcast.FrameFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: frame_format %q (want text or json)", ErrInvalid, c.Broadcast.FrameFormat)
	}
	if c.Broadcast.SendBuffer < 1 {
		return fmt.Errorf("%w: send_buffer must be positive", ErrInvalid)
	}
	if c.Broadcast.WriteWait <= 0 || c.Broadcast.PongWait <= 0 {
		return fmt.Errorf("%w: write_wait and pong_wait must be positive", ErrInvalid)
	}
	if c.Input.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if c.Input.DebounceWindow <= 0 {
		return fmt.Errorf("%w: debounce_window must be positive", ErrInvalid)
	}
	if c.Input.EventBuffer < 1 {
		return fmt.Errorf("%w: event_buffer must be positive", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Input.Lines))
	for i, l := range c.Input.Lines {
		if l.Name == "" {
			return fmt.Errorf("%w: input line %d has no name", ErrInvalid, i)
		}
		if seen[l.Name] {
			return fmt.Errorf("%w: duplicate input line %q", ErrInvalid, l.Name)
		}
		seen[l.Name] = true
		if l.Pin == "" {
			return fmt.Errorf("%w: input line %q has no pin", ErrInvalid, l.Name)
		}
		if l.Payload == "" {
			return fmt.Errorf("%w: input line %q has no payload", ErrInvalid, l.Name)
		}
		switch l.Pull {
		case "up", "down", "none":
		default:
			return fmt.Errorf("%w: input line %q pull %q (want up, down or none)", ErrInvalid, l.Name, l.Pull)
		}
		switch l.Active {
		case "low", "high":
		default:
			return fmt.Errorf("%w: input line %q active %q (want low or high)", ErrInvalid, l.Name, l.Active)
		}
		if l.DebounceWindow < 0 {
			return fmt.Errorf("%w: input line %q debounce_window is negative", ErrInvalid, l.Name)
		}
	}
	return nil
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
