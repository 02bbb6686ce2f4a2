package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at an empty directory and blanks every variable Load
// reads, so the developer's environment does not leak into the tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for key, names := range aliases {
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(key), "")
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
	for key := range defaults() {
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(key), "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 2000, cfg.HistoryTokens)
	assert.Equal(t, "whatsapp", cfg.ProfileName)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.HistorySize)
	assert.Equal(t, 2*time.Minute, cfg.LoginTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Stealth)
	assert.True(t, cfg.Highlight)
	assert.Equal(t, 300*time.Millisecond, cfg.HighlightDelay)
	assert.False(t, cfg.Headless)
	assert.Empty(t, cfg.APIKey)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeFile(t, "bua-chat.yaml", `
model: gemini-2.5-pro
display_name: Carl
poll_interval: 3s
history_size: 20
headless: true
log_level: DEBUG
`)

	cfg, err := Load(Options{File: path, EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, "Carl", cfg.DisplayName)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 20, cfg.HistorySize)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_ZeroTemperature(t *testing.T) {
	isolate(t)
	t.Setenv("BUACHAT_TEMPERATURE", "0")

	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)
	assert.Zero(t, cfg.Temperature)
	assert.Zero(t, *cfg.ToBua().Temperature)
}

func TestLoad_MissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml"), EnvFiles: []string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.yaml")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "bua-chat.yaml", "model: from-file\ndisplay_name: Carl\n")

	t.Setenv("BUACHAT_MODEL", "from-env")
	t.Setenv("BUACHAT_HISTORY_SIZE", "4")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := Load(Options{File: path, EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, "Carl", cfg.DisplayName)
	assert.Equal(t, 4, cfg.HistorySize)
	assert.Equal(t, "google-key", cfg.APIKey)
}

func TestLoad_Aliases(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("SIGNUP_MY_NAME", "Alice")
	t.Setenv("CHROME_PROFILE_PATH", "/tmp/profiles")

	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, "gemini-key", cfg.APIKey)
	assert.Equal(t, "Alice", cfg.DisplayName)
	assert.Equal(t, "/tmp/profiles", cfg.ProfileDir)
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	// godotenv never overrides a variable that exists, even when empty.
	require.NoError(t, os.Unsetenv("BUACHAT_DISPLAY_NAME"))
	require.NoError(t, os.Unsetenv("BUACHAT_POLL_INTERVAL"))

	envFile := writeFile(t, ".env", "BUACHAT_DISPLAY_NAME=Dora\nBUACHAT_POLL_INTERVAL=250ms\n")

	cfg, err := Load(Options{EnvFiles: []string{envFile, filepath.Join(t.TempDir(), "missing.env")}})
	require.NoError(t, err)

	assert.Equal(t, "Dora", cfg.DisplayName)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
}

func TestLoad_Flags(t *testing.T) {
	isolate(t)
	path := writeFile(t, "bua-chat.yaml", "profile_dir: /from/file\nlog_level: warn\n")
	t.Setenv("BUACHAT_LOG_LEVEL", "error")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("profile-dir", "", "")
	fs.Bool("headless", false, "")
	fs.Duration("poll-interval", time.Second, "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse([]string{"--headless", "--poll-interval=2s", "--log-level=debug"}))

	cfg, err := Load(Options{File: path, EnvFiles: []string{}, Flags: fs})
	require.NoError(t, err)

	assert.True(t, cfg.Headless)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "debug", cfg.LogLevel, "a changed flag beats env and file")
	assert.Equal(t, "/from/file", cfg.ProfileDir, "an unchanged flag does not override the file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Temperature:  0.7,
			PollInterval: time.Second,
			HistorySize:  10,
			LogLevel:     "info",
			ProfileName:  "whatsapp",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"temperature", func(c *Config) { c.Temperature = 3 }, "temperature"},
		{"negative max tokens", func(c *Config) { c.MaxTokens = -1 }, "max_tokens"},
		{"long highlight", func(c *Config) { c.HighlightDelay = time.Minute }, "highlight_delay"},
		{"fast poll", func(c *Config) { c.PollInterval = time.Millisecond }, "poll_interval"},
		{"no history", func(c *Config) { c.HistorySize = 0 }, "history_size"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"profile path", func(c *Config) { c.ProfileName = "../other" }, "profile_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	isolate(t)
	path := writeFile(t, "bua-chat.yaml", "history_size: 0\n")

	_, err := Load(Options{File: path, EnvFiles: []string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history_size")
}

func TestToBua(t *testing.T) {
	c := Config{
		APIKey:       "key",
		Model:        "m",
		DisplayName:  "Carl",
		ProfileDir:   "/p",
		ProfileName:  "work",
		Headless:     true,
		PollInterval: 2 * time.Second,
		HistorySize:  7,
		LogLevel:     "warn",
		WhatsAppURL:  "http://localhost:8080",
	}
	c.HighlightDelay = time.Second
	b := c.ToBua()

	assert.Equal(t, "key", b.APIKey)
	assert.Equal(t, "Carl", b.DisplayName)
	assert.Equal(t, "/p", b.ProfileDir)
	assert.Equal(t, "work", b.ProfileName)
	assert.True(t, b.Headless)
	assert.Equal(t, 2*time.Second, b.PollInterval)
	assert.Equal(t, 7, b.HistorySize)
	assert.Equal(t, "warn", b.LogLevel)
	assert.Equal(t, "http://localhost:8080", b.WhatsAppURL)
	assert.Equal(t, time.Second, b.HighlightDelay)
	require.NotNil(t, b.Temperature)
	assert.Zero(t, *b.Temperature, "temperature 0 is passed through, not defaulted")
}

func TestYAML_MasksSecrets(t *testing.T) {
	c := Config{APIKey: "AIzaSyExampleKey1234", Model: "gemini-2.5-flash", PollInterval: time.Second}

	out, err := c.YAML()
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "api_key: AIza****1234")
	assert.NotContains(t, s, "AIzaSyExampleKey1234")
	assert.Contains(t, s, "poll_interval: 1s")
	assert.Equal(t, "AIzaSyExampleKey1234", c.APIKey, "Masked must not modify the receiver")

	assert.Equal(t, "****", mask("short"))
	assert.Equal(t, "", mask(""))
}
