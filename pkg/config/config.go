package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/decision-schema/pkg/admission"
	"github.com/Mindburn-Labs/decision-schema/pkg/registry"
)

// Environment variables read by Load.
const (
	EnvLogLevel         = "LOG_LEVEL"
	EnvKeyMode          = "DSCHEMA_KEY_MODE"
	EnvStrictNamespaces = "DSCHEMA_STRICT_NAMESPACES"
	EnvExpectedMajor    = "DSCHEMA_EXPECTED_MAJOR"
	EnvMinMinor         = "DSCHEMA_MIN_MINOR"
	EnvMaxMinor         = "DSCHEMA_MAX_MINOR"
	EnvOnKeyIssues      = "DSCHEMA_ON_KEY_ISSUES"
	EnvRegistryFile     = "DSCHEMA_REGISTRY_FILE"
)

// Unbounded disables a minor bound when used as DSCHEMA_MIN_MINOR or
// DSCHEMA_MAX_MINOR.
const Unbounded = "*"

// ErrInvalidConfig wraps every configuration parse failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds consumer-side settings: logging, the admission policy and an
// optional external registry table.
type Config struct {
	LogLevel         string   `yaml:"log_level"`
	KeyMode          string   `yaml:"key_mode"`
	StrictNamespaces []string `yaml:"strict_namespaces"`
	ExpectedMajor    int      `yaml:"expected_major"`
	MinMinor         *int     `yaml:"min_minor"`
	MaxMinor         *int     `yaml:"max_minor"`
	OnKeyIssues      string   `yaml:"on_key_issues"`
	RegistryFile     string   `yaml:"registry_file"`
}

// Defaults mirrors admission.DefaultPolicy with INFO logging and the
// embedded registry.
func Defaults() *Config {
	p := admission.DefaultPolicy()
	return &Config{
		LogLevel:      "INFO",
		KeyMode:       string(p.Mode),
		ExpectedMajor: p.ExpectedMajor,
		MinMinor:      p.MinMinor,
		MaxMinor:      p.MaxMinor,
		OnKeyIssues:   string(p.OnKeyIssues),
	}
}

// Load loads configuration from environment variables over Defaults.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config over Defaults, then applies environment
// overrides. Unknown YAML fields are rejected.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	cfg := Defaults()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvKeyMode); v != "" {
		c.KeyMode = v
	}
	if v := os.Getenv(EnvOnKeyIssues); v != "" {
		c.OnKeyIssues = v
	}
	if v := os.Getenv(EnvRegistryFile); v != "" {
		c.RegistryFile = v
	}
	if v := os.Getenv(EnvStrictNamespaces); v != "" {
		c.StrictNamespaces = splitList(v)
	}
	if v := os.Getenv(EnvExpectedMajor); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvExpectedMajor, v, err)
		}
		c.ExpectedMajor = n
	}
	var err error
	if c.MinMinor, err = envBound(EnvMinMinor, c.MinMinor); err != nil {
		return err
	}
	if c.MaxMinor, err = envBound(EnvMaxMinor, c.MaxMinor); err != nil {
		return err
	}
	return nil
}

func envBound(name string, current *int) (*int, error) {
	v := os.Getenv(name)
	switch v {
	case "":
		return current, nil
	case Unbounded:
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, name, v, err)
	}
	return &n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Policy builds the admission policy described by c.
func (c *Config) Policy() (admission.Policy, error) {
	mode, err := registry.ParseMode(c.KeyMode)
	if err != nil {
		return admission.Policy{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	onKeyIssues, err := admission.ParseKeyIssueAction(c.OnKeyIssues)
	if err != nil {
		return admission.Policy{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	p := admission.Policy{
		ExpectedMajor:    c.ExpectedMajor,
		MinMinor:         c.MinMinor,
		MaxMinor:         c.MaxMinor,
		Mode:             mode,
		StrictNamespaces: c.StrictNamespaces,
		OnKeyIssues:      onKeyIssues,
	}
	if err := p.Validate(); err != nil {
		return admission.Policy{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return p, nil
}

// Registry returns the table named by RegistryFile, or the embedded default.
func (c *Config) Registry() (*registry.Registry, error) {
	if c.RegistryFile == "" {
		return registry.Default(), nil
	}
	return registry.LoadFile(c.RegistryFile)
}

// Level parses LogLevel. Unrecognised values fall back to INFO.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}
