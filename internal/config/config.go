// Package config loads keyreplay settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/designs/keyreplay/internal/account"
	"github.com/szaher/designs/keyreplay/internal/automation"
	"github.com/szaher/designs/keyreplay/internal/script"
	"github.com/szaher/designs/keyreplay/internal/session"
)

// Environment variables that override file settings.
const (
	EnvBaseDir      = "BASE_DIR"
	EnvListen       = "KEYREPLAY_LISTEN"
	EnvGPGHome      = "KEYREPLAY_GPG_HOME"
	EnvAgeIdentity  = "KEYREPLAY_AGE_IDENTITY"
	EnvSessionFile  = "KEYREPLAY_SESSION_FILE"
	EnvDefaultDelay = "KEYREPLAY_GO_DELAY"
)

// Config is the complete keyreplay configuration.
type Config struct {
	BaseDir         string           `yaml:"base_dir"`
	Listen          string           `yaml:"listen"`
	SecretExtension string           `yaml:"secret_extension"`
	DefaultScript   string           `yaml:"default_script,omitempty"`
	GoDelay         Duration         `yaml:"go_delay"`
	TypeDelay       Duration         `yaml:"type_delay"`
	GPG             GPGConfig        `yaml:"gpg"`
	Age             AgeConfig        `yaml:"age"`
	Automation      AutomationConfig `yaml:"automation"`
	Session         SessionConfig    `yaml:"session"`
}

// GPGConfig configures the gpg decryption backend.
type GPGConfig struct {
	Binary  string   `yaml:"binary"`
	Home    string   `yaml:"home"`
	Timeout Duration `yaml:"timeout"`
}

// AgeConfig configures the age decryption backend. It is enabled when an
// identity file is set.
type AgeConfig struct {
	IdentityFile string `yaml:"identity_file"`
}

// AutomationConfig configures the input automation commands.
type AutomationConfig struct {
	Xdotool         string   `yaml:"xdotool"`
	NotifySend      string   `yaml:"notify_send"`
	NotifyDuration  Duration `yaml:"notify_duration"`
	AllowedCommands []string `yaml:"allowed_commands"`
}

// SessionConfig configures where the selected account is remembered.
type SessionConfig struct {
	File   string   `yaml:"file"`
	Expiry Duration `yaml:"expiry"`
}

// Duration is a time.Duration that reads "500ms"-style strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:          "127.0.0.1:8765",
		SecretExtension: account.DefaultSecretExtension,
		GoDelay:         Duration(500 * time.Millisecond),
		TypeDelay:       Duration(script.DefaultTypeDelay),
		GPG: GPGConfig{
			Binary:  "gpg",
			Timeout: Duration(2 * time.Minute),
		},
		Automation: AutomationConfig{
			Xdotool:         "xdotool",
			NotifySend:      "notify-send",
			NotifyDuration:  Duration(automation.DefaultNotifyDuration),
			AllowedCommands: []string{"gpg", "gpg2", "xdotool", "notify-send"},
		},
		Session: SessionConfig{
			File: session.DefaultFilePath(),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "keyreplay", "config.yaml")
}

// Load reads path on top of Default, then applies environment overrides. A
// missing file is not an error when path is the default location.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath():
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.expandHome()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseDir); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvGPGHome); v != "" {
		c.GPG.Home = v
	}
	if v := os.Getenv(EnvAgeIdentity); v != "" {
		c.Age.IdentityFile = v
	}
	if v := os.Getenv(EnvSessionFile); v != "" {
		c.Session.File = v
	}
	if v := os.Getenv(EnvDefaultDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", EnvDefaultDelay, v)
		}
		c.GoDelay = Duration(d)
	}
	return nil
}

func (c *Config) expandHome() {
	c.BaseDir = expandHome(c.BaseDir)
	c.GPG.Home = expandHome(c.GPG.Home)
	c.Age.IdentityFile = expandHome(c.Age.IdentityFile)
	c.Session.File = expandHome(c.Session.File)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base directory for account storage is not set (use --base-dir, base_dir in the config file, or %s)", EnvBaseDir)
	}
	info, err := os.Stat(c.BaseDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("base directory %s does not exist or is not readable", c.BaseDir)
	}
	if !strings.HasPrefix(c.SecretExtension, ".") {
		return fmt.Errorf("secret_extension %q must start with '.'", c.SecretExtension)
	}
	if c.DefaultScript != "" {
		if _, ok := script.Standard[c.DefaultScript]; !ok {
			return fmt.Errorf("default_script %q is not a standard script", c.DefaultScript)
		}
	}
	if c.GoDelay < 0 || c.TypeDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}
