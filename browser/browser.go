// Package browser provides the browser automation layer using go-rod.
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Viewport defines browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Config holds browser configuration.
type Config struct {
	// Viewport sets the window and device-metrics size.
	Viewport *Viewport

	// UserDataDir is the persisted Chromium profile holding the chat login.
	// Empty means a throwaway profile.
	UserDataDir string

	// Headless hides the window. Logging in by QR code needs a saved
	// screenshot when headless.
	Headless bool

	// Stealth patches common automation fingerprints on the page.
	Stealth bool

	// Highlight shows visual feedback before writes.
	Highlight bool

	// Bin is an explicit Chromium binary. Empty lets rod find or download one.
	Bin string
}

// Browser wraps a rod browser and the single page a run works on.
type Browser struct {
	rod      *rod.Browser
	launcher *launcher.Launcher
	config   Config

	page *rod.Page

	highlighter    *Highlighter
	highlightDelay time.Duration

	mu sync.RWMutex
}

// New creates a new browser wrapper around an already connected rod browser.
func New(rodBrowser *rod.Browser, cfg Config) *Browser {
	return &Browser{
		rod:            rodBrowser,
		config:         cfg,
		highlightDelay: 300 * time.Millisecond,
	}
}

// Launch starts Chromium with the configured profile and connects to it.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	if cfg.Viewport == nil {
		cfg.Viewport = &Viewport{Width: 1280, Height: 800}
	}
	if cfg.UserDataDir != "" {
		if err := os.MkdirAll(cfg.UserDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
	}

	l := launcher.New().
		Context(ctx).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-background-networking").
		Set("disable-client-side-phishing-detection").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-popup-blocking").
		Set("disable-sync").
		Set("disable-translate").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)).
		Headless(cfg.Headless)

	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	rodBrowser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := rodBrowser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	b := New(rodBrowser, cfg)
	b.launcher = l
	return b, nil
}

// waitForStableWithTimeout waits for the page to stabilize with an overall timeout.
// Chat apps animate constantly, so stability is best-effort.
func waitForStableWithTimeout(page *rod.Page, stabilityDuration, maxWait time.Duration) {
	if page == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = page.WaitStable(stabilityDuration)
	}()

	select {
	case <-done:
	case <-time.After(maxWait):
	}
}

// Navigate loads url in the page, creating the page on first use.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		page, err := b.createPageLocked(url)
		if err != nil {
			return err
		}
		b.page = page
	} else if err := b.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	if err := b.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}

	waitForStableWithTimeout(b.page, 300*time.Millisecond, 5*time.Second)
	return nil
}

// createPageLocked opens the page (must hold lock).
func (b *Browser) createPageLocked(url string) (*rod.Page, error) {
	if b.rod == nil {
		return nil, fmt.Errorf("browser not connected")
	}

	var (
		page *rod.Page
		err  error
	)
	if b.config.Stealth {
		page, err = stealth.Page(b.rod)
		if err == nil {
			err = page.Navigate(url)
		}
	} else {
		page, err = b.rod.Page(proto.TargetCreateTarget{URL: url})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if b.config.Viewport != nil {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.config.Viewport.Width,
			Height:            b.config.Viewport.Height,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}
	return page, nil
}

// Page returns the underlying rod.Page, or nil before Navigate.
func (b *Browser) Page() *rod.Page {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.page
}

// Highlighter returns the highlighter bound to the current page.
func (b *Browser) Highlighter() *Highlighter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return nil
	}
	if b.highlighter == nil || b.highlighter.page != b.page {
		b.highlighter = NewHighlighter(b.page, b.config.Highlight)
		b.highlighter.SetDelay(b.highlightDelay)
	}
	return b.highlighter
}

// SetHighlightDelay sets how long highlights are shown before writes.
func (b *Browser) SetHighlightDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlightDelay = d
	if b.highlighter != nil {
		b.highlighter.SetDelay(d)
	}
}

// Screenshot takes a viewport screenshot of the page as PNG.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.page == nil {
		return nil, fmt.Errorf("no active page")
	}

	data, err := b.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

// WaitForStable waits briefly for the page to stop changing.
func (b *Browser) WaitForStable(ctx context.Context) {
	b.mu.RLock()
	page := b.page
	b.mu.RUnlock()

	if page != nil {
		waitForStableWithTimeout(page.Context(ctx), 200*time.Millisecond, 2*time.Second)
	}
}

// GetURL returns the current page URL.
func (b *Browser) GetURL() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.page == nil {
		return ""
	}
	info, err := b.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// GetTitle returns the current page title.
func (b *Browser) GetTitle() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.page == nil {
		return ""
	}
	info, err := b.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

// Close closes the page and the browser. Profile data on disk is kept; a
// throwaway profile is removed.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil {
		_ = b.page.Close()
		b.page = nil
	}
	b.highlighter = nil

	var err error
	if b.rod != nil {
		err = b.rod.Close()
		b.rod = nil
	}
	if b.launcher != nil {
		if b.config.UserDataDir == "" {
			b.launcher.Cleanup()
		} else {
			b.launcher.Kill()
		}
		b.launcher = nil
	}
	return err
}
