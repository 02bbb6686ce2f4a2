// Package whatsapp drives the WhatsApp Web client through a browser page:
// login detection, opening a chat by name, reading recent messages and
// sending text.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/anxuanzi/bua-chat/browser"
)

// DefaultURL is the web client's address.
const DefaultURL = "https://web.whatsapp.com/"

// Selectors used against the web client's markup. They change whenever the
// client ships a redesign, so every lookup has fallbacks.
var (
	chatListSelectors = []string{`div[aria-label*="Chat list"]`, `#pane-side`}
	qrSelectors       = []string{`canvas[aria-label*="Scan"]`, `div[data-ref] canvas`, `div[data-ref]`}
	searchSelector    = `div[contenteditable="true"][data-tab="3"]`
	searchButtons     = []string{`button[data-testid="chat-list-search"]`, `span[data-icon="search"]`}
	composeSelectors  = []string{
		`footer div[contenteditable="true"][data-tab="10"]`,
		`div[contenteditable="true"][data-tab="10"]`,
		`div[contenteditable="true"][aria-label*="Type a message"]`,
		`div[contenteditable="true"][aria-label*="type a message"]`,
		`footer div[contenteditable="true"][role="textbox"]`,
		`div[data-testid="conversation-compose-box-input"]`,
	}
	rowSelectors = []string{
		`#main div[role="row"]`,
		`#main [data-testid="msg-container"]`,
		`#main div.message-in, #main div.message-out`,
	}
)

// State is the coarse state of the web client.
type State string

const (
	StateLoading  State = "loading"
	StateLoggedIn State = "logged_in"
	StateQR       State = "qr"
)

// Config configures the client.
type Config struct {
	// URL of the web client. Defaults to DefaultURL.
	URL string

	// ReadyTimeout bounds the wait for the chat list after navigation.
	ReadyTimeout time.Duration

	// OpenTimeout bounds the wait for a chat header to show the opened chat.
	OpenTimeout time.Duration

	// Location for message timestamps. Defaults to time.Local.
	Location *time.Location
}

// Client is the WhatsApp Web adapter over a browser page.
type Client struct {
	browser *browser.Browser
	config  Config
}

// New creates a client on top of b. Nothing is loaded until Connect.
func New(b *browser.Browser, cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 60 * time.Second
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 5 * time.Second
	}
	return &Client{browser: b, config: cfg}
}

// Browser returns the underlying browser.
func (c *Client) Browser() *browser.Browser {
	return c.browser
}

func (c *Client) page() (*rod.Page, error) {
	page := c.browser.Page()
	if page == nil {
		return nil, ErrNotReady
	}
	return page, nil
}

// Connect loads the web client and waits until the chat list shows. If the
// profile is logged out it returns ErrSessionLost without waiting.
func (c *Client) Connect(ctx context.Context) error {
	if !strings.HasPrefix(c.browser.GetURL(), c.config.URL) {
		if err := c.browser.Navigate(ctx, c.config.URL); err != nil {
			return fmt.Errorf("failed to open %s: %w", c.config.URL, err)
		}
	}

	state, err := c.waitState(ctx, c.config.ReadyTimeout, StateLoggedIn, StateQR)
	if err != nil {
		return err
	}
	if state == StateQR {
		return ErrSessionLost
	}
	return nil
}

// Login loads the web client and waits up to timeout for the operator to scan
// the QR code. onQR is called with a PNG of the QR code each time a new one is
// rendered; the client rotates it roughly every 20 seconds.
func (c *Client) Login(ctx context.Context, timeout time.Duration, onQR func(png []byte)) error {
	if err := c.browser.Navigate(ctx, c.config.URL); err != nil {
		return fmt.Errorf("failed to open %s: %w", c.config.URL, err)
	}

	deadline := time.Now().Add(timeout)
	lastRef := ""
	for {
		state, err := c.State(ctx)
		if err != nil {
			return err
		}
		if state == StateLoggedIn {
			return nil
		}
		if state == StateQR && onQR != nil {
			if ref := c.qrRef(); ref != lastRef {
				lastRef = ref
				if png, err := c.qrScreenshot(); err == nil {
					onQR(png)
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("login not completed within %s: %w", timeout, ErrNotReady)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// State reports whether the chat list or the QR landing page is showing.
func (c *Client) State(ctx context.Context) (State, error) {
	page, err := c.page()
	if err != nil {
		return StateLoading, err
	}
	res, err := page.Context(ctx).Eval(`(chatList, qr) => {
		const any = (sels) => sels.some((s) => document.querySelector(s));
		if (any(chatList)) return 'logged_in';
		if (any(qr)) return 'qr';
		return 'loading';
	}`, chatListSelectors, qrSelectors)
	if err != nil {
		return StateLoading, fmt.Errorf("failed to read client state: %w", err)
	}
	return State(res.Value.Str()), nil
}

// CheckSession returns ErrSessionLost when the client shows its login page.
func (c *Client) CheckSession(ctx context.Context) error {
	state, err := c.State(ctx)
	if err != nil {
		return err
	}
	if state == StateQR {
		return ErrSessionLost
	}
	return nil
}

func (c *Client) waitState(ctx context.Context, timeout time.Duration, want ...State) (State, error) {
	deadline := time.Now().Add(timeout)
	for {
		state, err := c.State(ctx)
		if err != nil && !errors.Is(err, ErrNotReady) {
			return state, err
		}
		for _, w := range want {
			if state == w {
				return state, nil
			}
		}
		if time.Now().After(deadline) {
			return state, ErrNotReady
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (c *Client) qrRef() string {
	page, err := c.page()
	if err != nil {
		return ""
	}
	res, err := page.Eval(`() => {
		const el = document.querySelector('div[data-ref]');
		return el ? el.getAttribute('data-ref') : '';
	}`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (c *Client) qrScreenshot() ([]byte, error) {
	page, err := c.page()
	if err != nil {
		return nil, err
	}
	for _, sel := range qrSelectors {
		has, el, err := page.Has(sel)
		if err != nil || !has {
			continue
		}
		return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	}
	return page.Screenshot(false, nil)
}

// CurrentChat returns the display name in the conversation header, or "".
func (c *Client) CurrentChat(ctx context.Context) string {
	page, err := c.page()
	if err != nil {
		return ""
	}
	res, err := page.Context(ctx).Eval(`() => {
		const el = document.querySelector('#main header span[title]') ||
			document.querySelector('header span[title]');
		return el ? (el.getAttribute('title') || el.textContent || '') : '';
	}`)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Value.Str())
}

func sameChat(header, name string) bool {
	return header != "" && strings.EqualFold(strings.TrimSpace(header), strings.TrimSpace(name))
}

// OpenChat opens the chat with the given display name. The sidebar entry is
// clicked when it is in view; otherwise the name is typed into the search box.
// It is a no-op when the chat is already open.
func (c *Client) OpenChat(ctx context.Context, name string) error {
	if err := c.CheckSession(ctx); err != nil {
		return err
	}
	if sameChat(c.CurrentChat(ctx), name) {
		return nil
	}
	page, err := c.page()
	if err != nil {
		return err
	}

	clicked, err := page.Context(ctx).Eval(`(name) => {
		const want = name.trim().toLowerCase();
		const spans = document.querySelectorAll('#pane-side span[title]');
		for (const span of spans) {
			if ((span.getAttribute('title') || '').trim().toLowerCase() !== want) continue;
			const item = span.closest('div[role="listitem"], div[role="row"]') || span;
			item.scrollIntoView({block: 'center'});
			for (const type of ['mousedown', 'mouseup', 'click']) {
				item.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
			}
			return true;
		}
		return false;
	}`, name)
	if err != nil {
		return fmt.Errorf("failed to search sidebar: %w", err)
	}
	if clicked.Value.Bool() && c.waitChat(ctx, name) {
		return nil
	}

	if err := c.searchChat(ctx, page, name); err != nil {
		return err
	}
	if c.waitChat(ctx, name) {
		return nil
	}

	// The highlighted result may not be the first; try the next one.
	if err := page.Keyboard.Type(input.ArrowDown, input.Enter); err != nil {
		return chatNotFound(name, fmt.Errorf("select next result: %w", err))
	}
	if c.waitChat(ctx, name) {
		return nil
	}
	return chatNotFound(name, nil)
}

// chatNotFound wraps ErrChatNotFound and, when set, the error that stopped
// the search.
func chatNotFound(name string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %q", ErrChatNotFound, name)
	}
	return fmt.Errorf("%w: %q: %w", ErrChatNotFound, name, cause)
}

func (c *Client) searchChat(ctx context.Context, page *rod.Page, name string) error {
	has, box, err := page.Has(searchSelector)
	if err != nil {
		return fmt.Errorf("failed to find search box: %w", err)
	}
	if !has {
		for _, sel := range searchButtons {
			if ok, btn, _ := page.Has(sel); ok {
				_ = btn.Click(proto.InputMouseButtonLeft, 1)
				break
			}
		}
		c.browser.WaitForStable(ctx)
		has, box, err = page.Has(searchSelector)
		if err != nil || !has {
			return fmt.Errorf("%w: search box missing", ErrChatNotFound)
		}
	}

	if err := box.Focus(); err != nil {
		return fmt.Errorf("failed to focus search box: %w", err)
	}
	if err := clearFocused(page); err != nil {
		return err
	}
	if err := page.InsertText(name); err != nil {
		return fmt.Errorf("failed to type chat name: %w", err)
	}
	sleep(ctx, time.Second)
	if err := page.Keyboard.Type(input.Enter); err != nil {
		return fmt.Errorf("failed to open search result: %w", err)
	}
	return nil
}

// waitChat polls the header until it shows name or OpenTimeout passes.
func (c *Client) waitChat(ctx context.Context, name string) bool {
	deadline := time.Now().Add(c.config.OpenTimeout)
	for {
		if sameChat(c.CurrentChat(ctx), name) && c.hasCompose() {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		sleep(ctx, 250*time.Millisecond)
	}
}

// rowsResult is what the row-collection script returns.
type rowsResult struct {
	Chat string   `json:"chat"`
	Rows []string `json:"rows"`
}

// RecentMessages returns up to k of the newest text messages in the open chat,
// oldest first. All rows are fetched in one evaluation and parsed offline.
// An empty result is not an error.
func (c *Client) RecentMessages(ctx context.Context, k int) ([]Message, error) {
	if err := c.CheckSession(ctx); err != nil {
		return nil, err
	}
	page, err := c.page()
	if err != nil {
		return nil, err
	}

	res, err := page.Context(ctx).Eval(`(selectors) => {
		const header = document.querySelector('#main header span[title]');
		let rows = [];
		for (const sel of selectors) {
			rows = Array.from(document.querySelectorAll(sel));
			if (rows.length) break;
		}
		return {
			chat: header ? (header.getAttribute('title') || header.textContent || '') : '',
			rows: rows.map((r) => r.outerHTML),
		};
	}`, rowSelectors)
	if err != nil {
		return nil, fmt.Errorf("failed to read message rows: %w", err)
	}

	var out rowsResult
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("failed to decode message rows: %w", err)
	}

	parser := RowParser{
		Chat:     strings.TrimSpace(out.Chat),
		Now:      time.Now(),
		Location: c.config.Location,
	}
	msgs := parser.ParseRows(out.Rows)
	if k > 0 && len(msgs) > k {
		msgs = msgs[len(msgs)-k:]
	}
	return msgs, nil
}

// findCompose returns the visible compose box of the open chat.
func (c *Client) findCompose() (*rod.Element, error) {
	page, err := c.page()
	if err != nil {
		return nil, err
	}
	for _, sel := range composeSelectors {
		els, err := page.Elements(sel)
		if err != nil {
			continue
		}
		// The compose box is the last match; the search box is earlier in the DOM.
		for i := len(els) - 1; i >= 0; i-- {
			if visible, err := els[i].Visible(); err == nil && visible {
				return els[i], nil
			}
		}
	}
	return nil, ErrComposeNotFound
}

func (c *Client) hasCompose() bool {
	_, err := c.findCompose()
	return err == nil
}

// Send writes text into the compose box in one insert per line and presses
// Enter. Lines are joined with Shift+Enter so multi-line text stays one message.
// Delivery is not confirmed.
func (c *Client) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("refusing to send an empty message")
	}
	if err := c.CheckSession(ctx); err != nil {
		return err
	}
	page, err := c.page()
	if err != nil {
		return err
	}
	page = page.Context(ctx)

	box, err := c.findCompose()
	if err != nil {
		return err
	}

	if h := c.browser.Highlighter(); h.Enabled() {
		_ = h.HighlightElement(box, "send")
		defer h.RemoveHighlights()
	}

	if err := box.Focus(); err != nil {
		return fmt.Errorf("failed to focus compose box: %w", err)
	}
	if err := clearFocused(page); err != nil {
		return err
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if i > 0 {
			if err := page.KeyActions().Press(input.ShiftLeft).Type(input.Enter).Do(); err != nil {
				return fmt.Errorf("failed to insert line break: %w", err)
			}
		}
		if line == "" {
			continue
		}
		if err := page.InsertText(line); err != nil {
			return fmt.Errorf("failed to insert text: %w", err)
		}
	}

	if err := page.Keyboard.Type(input.Enter); err != nil {
		return fmt.Errorf("failed to press send: %w", err)
	}
	sleep(ctx, 500*time.Millisecond)
	return nil
}

// Status shows text in the highlight status pill when highlighting is on.
func (c *Client) Status(text string) {
	if h := c.browser.Highlighter(); h.Enabled() {
		_ = h.ShowStatus(text)
	}
}

// Screenshot captures the page, e.g. after a failed cycle.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	return c.browser.Screenshot(ctx)
}

// clearFocused selects everything in the focused field and deletes it.
func clearFocused(page *rod.Page) error {
	if err := page.KeyActions().Press(input.ControlLeft).Type(input.KeyA).Do(); err != nil {
		return fmt.Errorf("failed to select text: %w", err)
	}
	if err := page.Keyboard.Type(input.Backspace); err != nil {
		return fmt.Errorf("failed to clear text: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
