// Package config loads the bua-chat settings. Values are layered, lowest
// precedence first: built-in defaults, an optional YAML file, .env files,
// environment variables, and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anxuanzi/bua-chat"
)

// EnvPrefix prefixes every environment variable, e.g. BUACHAT_MODEL.
const EnvPrefix = "BUACHAT"

// Config is the flat, file-friendly form of bua.Config.
type Config struct {
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	Model          string        `mapstructure:"model" yaml:"model"`
	Temperature    float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	HistoryTokens  int           `mapstructure:"history_tokens" yaml:"history_tokens"`
	Persona        string        `mapstructure:"persona" yaml:"persona,omitempty"`
	DisplayName    string        `mapstructure:"display_name" yaml:"display_name"`
	ProfileDir     string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	ProfileName    string        `mapstructure:"profile_name" yaml:"profile_name"`
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	Stealth        bool          `mapstructure:"stealth" yaml:"stealth"`
	Highlight      bool          `mapstructure:"highlight" yaml:"highlight"`
	HighlightDelay time.Duration `mapstructure:"highlight_delay" yaml:"highlight_delay"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	HistorySize    int           `mapstructure:"history_size" yaml:"history_size"`
	LoginTimeout   time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	WhatsAppURL    string        `mapstructure:"whatsapp_url" yaml:"whatsapp_url,omitempty"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile        string        `mapstructure:"log_file" yaml:"log_file,omitempty"`
	ScreenshotDir  string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir,omitempty"`
	Debug          bool          `mapstructure:"debug" yaml:"debug"`
}

// Options controls where Load looks for settings.
type Options struct {
	// File is an explicit YAML config file. When empty, bua-chat.yaml is
	// searched in the working directory and ~/.bua-chat; a missing file is fine.
	File string

	// EnvFiles are loaded into the environment first. Existing variables win.
	// Defaults to ".env"; missing files are ignored.
	EnvFiles []string

	// Flags, when set, are bound to the keys of the same name with dashes,
	// e.g. --profile-dir sets profile_dir. Only flags the user changed override.
	Flags *pflag.FlagSet
}

// aliases are accepted in addition to BUACHAT_<KEY>.
var aliases = map[string][]string{
	"api_key":      {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"display_name": {"SIGNUP_MY_NAME"},
	"profile_dir":  {"CHROME_PROFILE_PATH"},
	"log_level":    {"LOG_LEVEL"},
	"log_file":     {"LOG_FILE"},
}

func defaults() map[string]any {
	return map[string]any{
		"api_key":         "",
		"model":           "gemini-2.5-flash",
		"temperature":     0.7,
		"max_tokens":      1000,
		"history_tokens":  2000,
		"persona":         "",
		"display_name":    "",
		"profile_dir":     "",
		"profile_name":    "whatsapp",
		"headless":        false,
		"stealth":         true,
		"highlight":       true,
		"highlight_delay": "300ms",
		"poll_interval":   "1s",
		"history_size":    10,
		"login_timeout":   "2m",
		"whatsapp_url":    "",
		"log_level":       "info",
		"log_file":        "",
		"screenshot_dir":  "",
		"debug":           false,
	}
}

// Load reads the layered configuration and validates it.
func Load(opts Options) (Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(key)}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	v.SetConfigType("yaml")
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("bua-chat")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bua-chat")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for key := range defaults() {
			if f := opts.Flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. Credentials are checked only by
// the commands that need them.
func (c Config) Validate() error {
	var errs []error
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens))
	}
	if c.HistoryTokens < 0 {
		errs = append(errs, fmt.Errorf("history_tokens must not be negative, got %d", c.HistoryTokens))
	}
	if c.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("poll_interval must be at least 100ms, got %s", c.PollInterval))
	}
	if c.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("history_size must be at least 1, got %d", c.HistorySize))
	}
	if c.HighlightDelay < 0 || c.HighlightDelay > 10*time.Second {
		errs = append(errs, fmt.Errorf("highlight_delay must be between 0 and 10s, got %s", c.HighlightDelay))
	}
	if c.LoginTimeout < 0 {
		errs = append(errs, fmt.Errorf("login_timeout must not be negative, got %s", c.LoginTimeout))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if strings.ContainsAny(c.ProfileName, `/\`) {
		errs = append(errs, fmt.Errorf("profile_name must not contain path separators, got %q", c.ProfileName))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ToBua converts the settings to the value handed to bua.New.
func (c Config) ToBua() bua.Config {
	temperature := c.Temperature
	return bua.Config{
		APIKey:         c.APIKey,
		Model:          c.Model,
		Temperature:    &temperature,
		MaxTokens:      c.MaxTokens,
		HistoryTokens:  c.HistoryTokens,
		Persona:        c.Persona,
		DisplayName:    c.DisplayName,
		ProfileName:    c.ProfileName,
		ProfileDir:     c.ProfileDir,
		Headless:       c.Headless,
		Stealth:        c.Stealth,
		Highlight:      c.Highlight,
		HighlightDelay: c.HighlightDelay,
		PollInterval:   c.PollInterval,
		HistorySize:    c.HistorySize,
		LoginTimeout:   c.LoginTimeout,
		WhatsAppURL:    c.WhatsAppURL,
		ScreenshotDir:  c.ScreenshotDir,
		LogLevel:       c.LogLevel,
		LogFile:        c.LogFile,
		Debug:          c.Debug,
	}
}

// Masked returns a copy with secrets shortened for display.
func (c Config) Masked() Config {
	c.APIKey = mask(c.APIKey)
	return c
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// YAML renders the configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Masked())
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return out, nil
}
