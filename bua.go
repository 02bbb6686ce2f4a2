// Package bua automates a personal WhatsApp Web session through a real
// browser. It reads the newest messages of a chat and either drafts replies
// with Gemini or fills the first empty slot of a numbered signup list.
package bua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/anxuanzi/bua-chat/agent"
	"github.com/anxuanzi/bua-chat/browser"
	"github.com/anxuanzi/bua-chat/memory"
	"github.com/anxuanzi/bua-chat/screenshot"
	"github.com/anxuanzi/bua-chat/whatsapp"
)

// Config holds the configuration for creating a new Agent. It is loaded once
// at startup and not changed afterwards; the Agent keeps its own copy.
type Config struct {
	// APIKey is the Gemini API key. Only needed for auto-reply.
	APIKey string

	// Model is the model ID to use (e.g., "gemini-2.5-flash").
	Model string

	// Temperature for reply generation. Nil uses 0.7; zero is a valid setting.
	Temperature *float32

	// MaxTokens bounds a reply in output tokens. Default 1000.
	MaxTokens int

	// HistoryTokens bounds the estimated size of the history sent to the model.
	HistoryTokens int

	// Persona is the system instruction for replies. {name} is replaced with
	// DisplayName. Empty uses agent.DefaultPersona.
	Persona string

	// DisplayName is your name: inserted into signup lists and used by the persona.
	DisplayName string

	// ProfileName is the name of the browser profile holding the WhatsApp login.
	// Defaults to "whatsapp".
	ProfileName string

	// ProfileDir is the base directory for storing browser profiles.
	// Defaults to ~/.bua-chat/profiles if empty.
	ProfileDir string

	// Headless determines whether the browser runs in headless mode. Logging
	// in headless works through the saved QR screenshot.
	Headless bool

	// Stealth hides common automation fingerprints from the web client.
	Stealth bool

	// Highlight shows the compose box bracket and a status pill in the browser.
	Highlight bool

	// HighlightDelay is how long the compose box bracket shows before a send.
	// Zero keeps the browser default of 300ms.
	HighlightDelay time.Duration

	// Viewport sets the browser viewport size.
	// Defaults to DesktopViewport if nil.
	Viewport *Viewport

	// PollInterval is the default delay between poll cycles. Default 1s.
	PollInterval time.Duration

	// HistorySize is the default number of recent messages read per cycle. Default 10.
	HistorySize int

	// MemoryLimit bounds the remembered message keys. Default memory.DefaultLimit.
	MemoryLimit int

	// LoginTimeout bounds the QR-code wait of Login. Default 2 minutes.
	LoginTimeout time.Duration

	// ReadyTimeout bounds the wait for the chat list at Start. Default 60s.
	ReadyTimeout time.Duration

	// WhatsAppURL overrides the web client address, e.g. for a local fixture.
	WhatsAppURL string

	// ScreenshotDir stores QR codes and failure snapshots.
	// Defaults to <ProfileDir>/../screenshots.
	ScreenshotDir string

	// LogLevel is "debug", "info", "warn" or "error". Default "info".
	LogLevel string

	// LogFile, when set, receives every log record as a JSON line.
	LogFile string

	// Debug forces debug logging and saves a screenshot on every failed cycle.
	Debug bool
}

// Viewport defines browser viewport dimensions.
type Viewport = browser.Viewport

// Common viewport presets.
var (
	// DesktopViewport is a safe default that fits most laptop screens
	DesktopViewport = &Viewport{Width: 1280, Height: 800}
	// LargeDesktopViewport for full HD displays
	LargeDesktopViewport = &Viewport{Width: 1920, Height: 1080}
)

// ChatClient is the chat surface the poll loops work against.
// *whatsapp.Client implements it.
type ChatClient interface {
	OpenChat(ctx context.Context, name string) error
	RecentMessages(ctx context.Context, k int) ([]whatsapp.Message, error)
	Send(ctx context.Context, text string) error
}

// Composer drafts a reply to the newest incoming message of a history.
// *agent.Composer implements it.
type Composer interface {
	Compose(ctx context.Context, history []whatsapp.Message) (string, error)
}

// Agent owns the browser session and runs the poll loops.
type Agent struct {
	config Config

	browser     *browser.Browser
	client      *whatsapp.Client
	chat        ChatClient
	composer    Composer
	logger      *agent.Logger
	screenshots *screenshot.Manager

	mu     sync.Mutex
	closed bool
}

// New creates an agent with the given configuration. The browser is not
// launched until Start or Login.
func New(cfg Config) (*Agent, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	logger := agent.NewLogger(true)
	level := agent.ParseLogLevel(cfg.LogLevel)
	if cfg.Debug {
		level = agent.LogDebug
	}
	logger.SetLevel(level)
	if cfg.LogFile != "" {
		if err := logger.OpenFile(cfg.LogFile); err != nil {
			return nil, err
		}
	}

	return &Agent{
		config: cfg,
		logger: logger,
		screenshots: screenshot.NewManager(&screenshot.Config{
			StorageDir:     cfg.ScreenshotDir,
			MaxScreenshots: 50,
		}),
	}, nil
}

// newWithClients creates an agent over existing chat and composer
// implementations, without a browser.
func newWithClients(cfg Config, chat ChatClient, composer Composer) (*Agent, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	a.chat = chat
	a.composer = composer
	return a, nil
}

func (c *Config) applyDefaults() error {
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.Temperature != nil {
		t := *c.Temperature
		c.Temperature = &t
	}
	if c.ProfileName == "" {
		c.ProfileName = "whatsapp"
	}
	if c.ProfileDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.ProfileDir = filepath.Join(home, ".bua-chat", "profiles")
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = filepath.Join(c.ProfileDir, "..", "screenshots")
	}
	if c.Viewport == nil {
		c.Viewport = DesktopViewport
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 10
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = memory.DefaultLimit
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 2 * time.Minute
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 60 * time.Second
	}
	return nil
}

// Config returns a copy of the effective configuration.
func (a *Agent) Config() Config {
	cfg := a.config
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		cfg.Temperature = &t
	}
	return cfg
}

// Logger returns the agent's logger.
func (a *Agent) Logger() *agent.Logger {
	return a.logger
}

// launchLocked starts the browser and the WhatsApp client (must hold lock).
func (a *Agent) launchLocked(ctx context.Context) error {
	if a.closed {
		return fmt.Errorf("agent is closed")
	}
	if a.browser != nil {
		return nil
	}

	b, err := browser.Launch(ctx, browser.Config{
		Viewport:    a.config.Viewport,
		UserDataDir: filepath.Join(a.config.ProfileDir, a.config.ProfileName),
		Headless:    a.config.Headless,
		Stealth:     a.config.Stealth,
		Highlight:   a.config.Highlight,
	})
	if err != nil {
		return err
	}

	if a.config.HighlightDelay > 0 {
		b.SetHighlightDelay(a.config.HighlightDelay)
	}
	a.browser = b
	a.client = whatsapp.New(b, whatsapp.Config{
		URL:          a.config.WhatsAppURL,
		ReadyTimeout: a.config.ReadyTimeout,
	})
	if a.chat == nil {
		a.chat = a.client
	}
	return nil
}

// Start launches the browser with the persisted profile and waits for the
// chat list. A logged-out profile gives whatsapp.ErrSessionLost.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.launchLocked(ctx); err != nil {
		return err
	}
	if err := a.client.Connect(ctx); err != nil {
		if errors.Is(err, whatsapp.ErrSessionLost) {
			a.logger.SessionLost(err)
		}
		return err
	}
	a.logger.Debug("connected to %s (%s)", a.browser.GetURL(), a.browser.GetTitle())
	return nil
}

// Login opens the web client and waits for the QR code to be scanned. Each
// new QR code is saved as a screenshot so headless logins work too. The
// login persists in the browser profile.
func (a *Agent) Login(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.launchLocked(ctx); err != nil {
		return err
	}

	a.logger.Debug("QR codes are saved in %s", a.screenshots.Dir())
	err := a.client.Login(ctx, a.config.LoginTimeout, func(png []byte) {
		path, err := a.screenshots.Save(png, "login_qr")
		if err != nil {
			a.logger.Error("save QR code", err)
			a.logger.Login("")
			return
		}
		a.logger.Login(path)
	})
	if err != nil {
		return err
	}
	a.logger.Done(true, "Logged in; the session is saved in profile "+a.config.ProfileName)
	return nil
}

// ClearScreenshots removes saved QR codes and failure snapshots.
func (a *Agent) ClearScreenshots() error {
	if err := a.screenshots.Clear(); err != nil {
		return err
	}
	a.logger.Debug("cleared screenshots in %s", a.screenshots.Dir())
	return nil
}

// OpenChat opens the chat with the given display name.
func (a *Agent) OpenChat(ctx context.Context, name string) error {
	chat, err := a.chatClient()
	if err != nil {
		return err
	}
	return chat.OpenChat(ctx, name)
}

// Messages returns up to limit of the newest messages of the named chat.
func (a *Agent) Messages(ctx context.Context, name string, limit int) ([]whatsapp.Message, error) {
	chat, err := a.chatClient()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = a.config.HistorySize
	}
	if err := chat.OpenChat(ctx, name); err != nil {
		return nil, err
	}
	return chat.RecentMessages(ctx, limit)
}

// Send opens the named chat and sends text.
func (a *Agent) Send(ctx context.Context, name, text string) error {
	chat, err := a.chatClient()
	if err != nil {
		return err
	}
	if err := chat.OpenChat(ctx, name); err != nil {
		return err
	}
	if err := chat.Send(ctx, text); err != nil {
		return err
	}
	a.logger.Sent(name, text)
	return nil
}

func (a *Agent) chatClient() (ChatClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("agent is closed")
	}
	if a.chat == nil {
		return nil, fmt.Errorf("agent not started: call Start first")
	}
	return a.chat, nil
}

// replyComposer returns the composer, creating the Gemini one on first use.
func (a *Agent) replyComposer(ctx context.Context) (Composer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.composer != nil {
		return a.composer, nil
	}
	c, err := agent.NewComposer(ctx, a.composerConfig())
	if err != nil {
		return nil, err
	}
	a.composer = c
	return c, nil
}

func (a *Agent) composerConfig() agent.Config {
	return agent.Config{
		APIKey:        a.config.APIKey,
		Model:         a.config.Model,
		Temperature:   a.config.Temperature,
		MaxTokens:     a.config.MaxTokens,
		HistoryTokens: a.config.HistoryTokens,
		Persona:       a.config.Persona,
		DisplayName:   a.config.DisplayName,
	}
}

// NewComposer creates a standalone Gemini composer from the configuration,
// for drafting replies without a browser.
func (a *Agent) NewComposer(ctx context.Context) (*agent.Composer, error) {
	return agent.NewComposer(ctx, a.composerConfig())
}

// snapshot saves a screenshot of the page for diagnosis. Errors are logged
// and otherwise ignored.
func (a *Agent) snapshot(ctx context.Context, name string) {
	a.mu.Lock()
	b := a.browser
	a.mu.Unlock()
	if b == nil || b.Page() == nil {
		return
	}
	data, err := b.Screenshot(ctx)
	if err != nil {
		a.logger.Debug("screenshot failed: %v", err)
		return
	}
	path, err := a.screenshots.Save(data, name)
	if err != nil {
		a.logger.Debug("screenshot not saved: %v", err)
		return
	}
	a.logger.Screenshot(path)
}

// Close closes the browser. The profile, and with it the login, is kept.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if err := a.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
	}
	return errors.Join(errs...)
}

// Page returns the current page for low-level access.
// Use with caution as this bypasses the agent's abstractions.
func (a *Agent) Page() *rod.Page {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser == nil {
		return nil
	}
	return a.browser.Page()
}
