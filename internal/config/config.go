package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/actionlib/internal/yandex"
)

const (
	DefaultTokenURL      = yandex.DefaultTokenURL
	DefaultCompletionURL = yandex.DefaultCompletionURL
	DefaultModelURI      = yandex.DefaultModelURI
)

type Config struct {
	Paths   PathsConfig   `yaml:"paths" validate:"required"`
	API     APIConfig     `yaml:"api" validate:"required"`
	Refresh RefreshConfig `yaml:"refresh" validate:"required"`
	Log     LogConfig     `yaml:"log" validate:"required"`

	// OAuthToken seeds the settings store when it has no token yet.
	// Only ever read from the environment.
	OAuthToken string `yaml:"-"`
}

type PathsConfig struct {
	DataDir      string `yaml:"data_dir" validate:"required"`
	SettingsFile string `yaml:"settings_file" validate:"required,relpath"`
	ActionsFile  string `yaml:"actions_file" validate:"required,relpath"`
}

type APIConfig struct {
	TokenURL      string          `yaml:"token_url" validate:"required,url"`
	CompletionURL string          `yaml:"completion_url" validate:"required,url"`
	ModelURI      string          `yaml:"model_uri" validate:"required,startswith=gpt://"`
	Timeout       time.Duration   `yaml:"timeout" validate:"required,min=1s,max=10m"`
	MaxRetries    int             `yaml:"max_retries" validate:"min=0,max=10"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=text json"`
}

// Default returns a configuration usable without any config file
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:      defaultDataDir(),
			SettingsFile: "settings.json",
			ActionsFile:  "actions.json",
		},
		API:     DefaultAPI(),
		Refresh: DefaultRefresh(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file found via ACTIONLIB_CONFIG or the XDG config
// directory. A missing file yields the defaults.
func Load() (*Config, error) {
	return LoadFile(getConfigPath())
}

// LoadFile reads the config at path, applies environment overrides and validates.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Path returns the config file location Load would read
func Path() string {
	return getConfigPath()
}

func getConfigPath() string {
	// 1. Explicit config path via environment variable
	if path := os.Getenv("ACTIONLIB_CONFIG"); path != "" {
		return path
	}

	// 2. XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "actionlib", "config.yaml")
	}

	// 3. ~/.config/actionlib/config.yaml
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "actionlib", "config.yaml")
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "actionlib")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "actionlib")
}

func (c *Config) applyEnv() {
	if dir := os.Getenv("ACTIONLIB_DATA_DIR"); dir != "" {
		c.Paths.DataDir = dir
	}
	if uri := os.Getenv("ACTIONLIB_MODEL_URI"); uri != "" {
		c.API.ModelURI = uri
	}
	if level := os.Getenv("ACTIONLIB_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
	c.OAuthToken = strings.TrimSpace(os.Getenv("ACTIONLIB_OAUTH_TOKEN"))
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) validate() error {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = defaultDataDir()
	} else {
		c.Paths.DataDir = expandTilde(c.Paths.DataDir)
	}

	validate := validator.New()

	// Store files resolve under the data directory
	validate.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		if p == "" || filepath.IsAbs(p) {
			return false
		}
		return !strings.Contains(filepath.Clean(p), "..")
	})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Write stores cfg as YAML at path, creating the directory if needed
func Write(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
