package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName = "config.yaml"

	// EnvPrefix namespaces environment overrides, e.g. STATUSSCREEN_LOG_LEVEL.
	EnvPrefix = "STATUSSCREEN_"

	defaultsSource = "<defaults>"
)

// Pause store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config captures the user-adjustable knobs for the kiosk coordinator.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" envPrefix:"PATHS_"`
	Autoscroll AutoscrollConfig `yaml:"autoscroll" envPrefix:"AUTOSCROLL_"`
	Pause      PauseConfig      `yaml:"pause" envPrefix:"PAUSE_"`
	Sequence   SequenceConfig   `yaml:"sequence" envPrefix:"SEQUENCE_"`
	Effect     EffectConfig     `yaml:"effect" envPrefix:"EFFECT_"`
	Browser    BrowserConfig    `yaml:"browser" envPrefix:"BROWSER_"`
	Input      InputConfig      `yaml:"input" envPrefix:"INPUT_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envPrefix:"TELEMETRY_"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-"`
}

// PathsConfig controls filesystem locations used by the daemon.
type PathsConfig struct {
	// RuntimeDir holds the per-session pause state; empty selects $XDG_RUNTIME_DIR.
	RuntimeDir string `yaml:"runtime_dir" env:"RUNTIME_DIR"`
}

// AutoscrollConfig drives the periodic advance loop and the manual pause window.
type AutoscrollConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds" env:"INTERVAL_SECONDS"`
	PauseSeconds      int `yaml:"pause_seconds" env:"PAUSE_SECONDS"`
	StartupMultiplier int `yaml:"startup_multiplier" env:"STARTUP_MULTIPLIER"`
}

// PauseConfig selects the pause state backend.
type PauseConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
}

// SequenceConfig holds the secret code recognised on the gamepad stream.
type SequenceConfig struct {
	Pattern  []string `yaml:"pattern" env:"PATTERN"`
	Alphabet []string `yaml:"alphabet" env:"ALPHABET"`
}

// EffectConfig controls the visual effect shown when the code is entered.
type EffectConfig struct {
	Enabled         bool   `yaml:"enabled" env:"ENABLED"`
	Framebuffer     string `yaml:"framebuffer" env:"FRAMEBUFFER"`
	Command         string `yaml:"command" env:"COMMAND"`
	DurationSeconds int    `yaml:"duration_seconds" env:"DURATION_SECONDS"`
}

// BrowserConfig names the external commands used to drive the browser.
type BrowserConfig struct {
	AdvanceCommand string `yaml:"advance_command" env:"ADVANCE_COMMAND"`
	KeyCommand     string `yaml:"key_command" env:"KEY_COMMAND"`
}

// InputConfig lists the event feeds and what each symbol does downstream.
type InputConfig struct {
	Device   string            `yaml:"device" env:"DEVICE"`
	Feed     string            `yaml:"feed" env:"FEED"`
	Listen   string            `yaml:"listen" env:"LISTEN"`
	Bindings map[string]string `yaml:"bindings"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// DefaultPattern is the Konami code as gamepad symbols.
func DefaultPattern() []string {
	return []string{"U", "U", "D", "D", "L", "R", "L", "R", "B", "A", "S"}
}

// DefaultBindings maps gamepad and page symbols to downstream actions.
//
// Bindings act on every event, including those that spell the code: entering
// DefaultPattern sends Up and Down keys, switches tabs and advances twice,
// then ends on S, which pauses autoscroll so the page under the effect stays
// put for the pause window.
func DefaultBindings() map[string]string {
	return map[string]string{
		"click": "pause",
		"S":     "pause",
		"R":     "advance",
		"RB":    "advance",
		"L":     "key:ctrl+shift+Tab",
		"LB":    "key:ctrl+shift+Tab",
		"U":     "key:Up",
		"D":     "key:Down",
		"E":     "key:ctrl+r",
	}
}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Autoscroll: AutoscrollConfig{
			IntervalSeconds:   20,
			PauseSeconds:      900,
			StartupMultiplier: 2,
		},
		Pause: PauseConfig{Backend: BackendFile},
		Sequence: SequenceConfig{
			Pattern: DefaultPattern(),
		},
		Effect: EffectConfig{
			Enabled:         true,
			Framebuffer:     "/dev/fb0",
			DurationSeconds: 10,
		},
		Browser: BrowserConfig{
			AdvanceCommand: "xdotool key ctrl+Tab",
			KeyCommand:     "xdotool key",
		},
		Input: InputConfig{
			Bindings: DefaultBindings(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "statusscreen",
		},
		Source: defaultsSource,
	}
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./config.yaml but tolerates a missing file.
// Environment variables prefixed with STATUSSCREEN_ override file values.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	file, err := os.Open(candidate)
	switch {
	case err == nil:
		defer file.Close()
		if err := decodeYAML(file, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file %q: %w", candidate, err)
		}
		cfg.Source = candidate
	case errors.Is(err, os.ErrNotExist):
		if explicit {
			return cfg, fmt.Errorf("config file %q not found", candidate)
		}
	default:
		return cfg, fmt.Errorf("open config file %q: %w", candidate, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	// Bindings from the file replace the defaults instead of merging into them.
	defaults := cfg.Input.Bindings
	cfg.Input.Bindings = nil

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		cfg.Input.Bindings = defaults
		return err
	}
	if cfg.Input.Bindings == nil {
		cfg.Input.Bindings = defaults
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	if c.Autoscroll.IntervalSeconds <= 0 {
		return errors.New("autoscroll.interval_seconds must be positive")
	}
	if c.Autoscroll.PauseSeconds <= 0 {
		return errors.New("autoscroll.pause_seconds must be positive")
	}
	if c.Autoscroll.StartupMultiplier < 1 {
		return errors.New("autoscroll.startup_multiplier must be at least 1")
	}

	switch c.Pause.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("pause.backend %q is not one of file, sqlite, memory", c.Pause.Backend)
	}

	if len(c.Sequence.Pattern) == 0 {
		return errors.New("sequence.pattern must not be empty")
	}
	for _, symbol := range c.Sequence.Pattern {
		if strings.TrimSpace(symbol) == "" {
			return errors.New("sequence.pattern must not contain empty symbols")
		}
	}

	if c.Effect.Enabled {
		if c.Effect.DurationSeconds <= 0 {
			return errors.New("effect.duration_seconds must be positive")
		}
		if strings.TrimSpace(c.Effect.Framebuffer) == "" {
			return errors.New("effect.framebuffer must not be empty when the effect is enabled")
		}
	}

	if strings.TrimSpace(c.Browser.AdvanceCommand) == "" {
		return errors.New("browser.advance_command must not be empty")
	}

	for symbol, action := range c.Input.Bindings {
		if err := validateAction(action); err != nil {
			return fmt.Errorf("input.bindings.%s: %w", symbol, err)
		}
	}

	return nil
}

func validateAction(action string) error {
	switch {
	case action == "pause", action == "advance":
		return nil
	case strings.HasPrefix(action, "key:"):
		if strings.TrimSpace(strings.TrimPrefix(action, "key:")) == "" {
			return errors.New("key action needs keys")
		}
		return nil
	case strings.HasPrefix(action, "exec:"):
		if strings.TrimSpace(strings.TrimPrefix(action, "exec:")) == "" {
			return errors.New("exec action needs a command")
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func (c *Config) normalize() {
	defaults := Default()

	if dir := strings.TrimSpace(c.Paths.RuntimeDir); dir != "" {
		c.Paths.RuntimeDir = filepath.Clean(dir)
	}
	c.Pause.Backend = strings.ToLower(strings.TrimSpace(c.Pause.Backend))
	if c.Pause.Backend == "" {
		c.Pause.Backend = defaults.Pause.Backend
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if c.Autoscroll.IntervalSeconds <= 0 {
		c.Autoscroll.IntervalSeconds = defaults.Autoscroll.IntervalSeconds
	}
	if c.Autoscroll.PauseSeconds <= 0 {
		c.Autoscroll.PauseSeconds = defaults.Autoscroll.PauseSeconds
	}
	if c.Autoscroll.StartupMultiplier <= 0 {
		c.Autoscroll.StartupMultiplier = defaults.Autoscroll.StartupMultiplier
	}

	c.Sequence.Pattern = trimList(c.Sequence.Pattern)
	c.Sequence.Alphabet = trimList(c.Sequence.Alphabet)
	if len(c.Sequence.Pattern) == 0 {
		c.Sequence.Pattern = defaults.Sequence.Pattern
	}

	if c.Effect.DurationSeconds <= 0 {
		c.Effect.DurationSeconds = defaults.Effect.DurationSeconds
	}
	if strings.TrimSpace(c.Browser.KeyCommand) == "" {
		c.Browser.KeyCommand = defaults.Browser.KeyCommand
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
