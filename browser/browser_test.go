// Package browser provides tests for the browser automation layer.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// TestConfig tests Config defaults.
func TestConfig(t *testing.T) {
	cfg := Config{}
	if cfg.Viewport != nil {
		t.Error("Viewport should be nil by default")
	}
	if cfg.Headless || cfg.Stealth || cfg.Highlight {
		t.Error("feature flags should be off by default")
	}
}

// TestNewBrowser tests browser creation without starting.
func TestNewBrowser(t *testing.T) {
	t.Run("with nil rod browser", func(t *testing.T) {
		b := New(nil, Config{})
		if b == nil {
			t.Fatal("New() returned nil")
		}
		if b.Page() != nil {
			t.Error("Page() should be nil before Navigate")
		}
		if b.Highlighter() != nil {
			t.Error("Highlighter() should be nil before Navigate")
		}
		if b.GetURL() != "" || b.GetTitle() != "" {
			t.Error("URL and title should be empty without a page")
		}
	})

	t.Run("navigate without connection", func(t *testing.T) {
		b := New(nil, Config{})
		if err := b.Navigate(context.Background(), "about:blank"); err == nil {
			t.Error("Navigate should fail without a connected browser")
		}
	})

	t.Run("screenshot without page", func(t *testing.T) {
		b := New(nil, Config{})
		if _, err := b.Screenshot(context.Background()); err == nil {
			t.Error("Screenshot should fail without a page")
		}
	})

	t.Run("close twice", func(t *testing.T) {
		b := New(nil, Config{})
		if err := b.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		if err := b.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})
}

// TestHighlighterDisabled tests that a disabled highlighter is a no-op.
func TestHighlighterDisabled(t *testing.T) {
	var nilHighlighter *Highlighter
	if nilHighlighter.Enabled() {
		t.Error("nil highlighter should not be enabled")
	}

	h := NewHighlighter(nil, true)
	if h.Enabled() {
		t.Error("highlighter without a page should not be enabled")
	}
	if err := h.HighlightBox(nil, "x"); err != nil {
		t.Errorf("HighlightBox() error = %v", err)
	}
	if err := h.ShowStatus("watching"); err != nil {
		t.Errorf("ShowStatus() error = %v", err)
	}
	if err := h.RemoveHighlights(); err != nil {
		t.Errorf("RemoveHighlights() error = %v", err)
	}
}

// Integration tests - require a real browser
// These are skipped in short mode

func skipIfShort(t testing.TB) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

func skipIfCI(t testing.TB) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping browser test in CI environment")
	}
}

const fixturePage = `<!DOCTYPE html>
<html><head><title>Fixture</title></head>
<body><div id="box" style="width:200px;height:100px">box</div></body></html>`

func fixtureServer(t testing.TB) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, fixturePage)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupBrowser launches a headless browser for integration tests.
func setupBrowser(t testing.TB, cfg Config) *Browser {
	t.Helper()

	cfg.Headless = true
	b, err := Launch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to launch browser: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBrowserIntegration_Navigate(t *testing.T) {
	skipIfShort(t)
	skipIfCI(t)

	srv := fixtureServer(t)
	b := setupBrowser(t, Config{Viewport: &Viewport{Width: 1280, Height: 720}})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if b.GetTitle() != "Fixture" {
		t.Errorf("GetTitle() = %q, want %q", b.GetTitle(), "Fixture")
	}
	if b.GetURL() == "" {
		t.Error("GetURL() should not be empty")
	}

	// Second navigation reuses the page.
	page := b.Page()
	if err := b.Navigate(ctx, srv.URL+"/again"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if b.Page() != page {
		t.Error("Navigate should reuse the existing page")
	}
}

func TestBrowserIntegration_Stealth(t *testing.T) {
	skipIfShort(t)
	skipIfCI(t)

	srv := fixtureServer(t)
	b := setupBrowser(t, Config{Stealth: true})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	res, err := b.Page().Eval(`() => navigator.webdriver === true`)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if res.Value.Bool() {
		t.Error("navigator.webdriver should be hidden with stealth enabled")
	}
}

func TestBrowserIntegration_Screenshot(t *testing.T) {
	skipIfShort(t)
	skipIfCI(t)

	srv := fixtureServer(t)
	b := setupBrowser(t, Config{})

	ctx := context.Background()
	if err := b.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	data, err := b.Screenshot(ctx)
	if err != nil {
		t.Fatalf("Screenshot() error = %v", err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Error("Screenshot should return PNG data")
	}
}

func TestBrowserIntegration_Highlight(t *testing.T) {
	skipIfShort(t)
	skipIfCI(t)

	srv := fixtureServer(t)
	b := setupBrowser(t, Config{Highlight: true})
	b.SetHighlightDelay(0)

	ctx := context.Background()
	if err := b.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	h := b.Highlighter()
	el, err := b.Page().Element("#box")
	if err != nil {
		t.Fatalf("Element() error = %v", err)
	}
	if err := h.HighlightElement(el, "compose"); err != nil {
		t.Fatalf("HighlightElement() error = %v", err)
	}

	count := func(sel string) int {
		res, err := b.Page().Eval(`(s) => document.querySelectorAll(s).length`, sel)
		if err != nil {
			t.Fatalf("Eval() error = %v", err)
		}
		return res.Value.Int()
	}
	if got := count(".bua-chat-corner"); got != 4 {
		t.Errorf("corners = %d, want 4", got)
	}
	if got := count(".bua-chat-label"); got != 1 {
		t.Errorf("labels = %d, want 1", got)
	}

	if err := h.ShowStatus("watching"); err != nil {
		t.Fatalf("ShowStatus() error = %v", err)
	}
	if err := h.RemoveHighlights(); err != nil {
		t.Fatalf("RemoveHighlights() error = %v", err)
	}
	if got := count(".bua-chat-corner"); got != 0 {
		t.Errorf("corners after remove = %d, want 0", got)
	}
	if got := count(".bua-chat-status"); got != 1 {
		t.Errorf("status pill should survive RemoveHighlights, got %d", got)
	}
}

func TestBrowserIntegration_WaitForStable(t *testing.T) {
	skipIfShort(t)
	skipIfCI(t)

	srv := fixtureServer(t)
	b := setupBrowser(t, Config{})

	ctx := context.Background()
	if err := b.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	start := time.Now()
	b.WaitForStable(ctx)
	if time.Since(start) > 5*time.Second {
		t.Error("WaitForStable should be bounded")
	}
}

func BenchmarkScreenshot(b *testing.B) {
	skipIfShort(b)
	skipIfCI(b)

	srv := fixtureServer(b)
	br := setupBrowser(b, Config{})
	ctx := context.Background()
	if err := br.Navigate(ctx, srv.URL); err != nil {
		b.Fatalf("Navigate() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := br.Screenshot(ctx); err != nil {
			b.Fatalf("Screenshot failed: %v", err)
		}
	}
}
