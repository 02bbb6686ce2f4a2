// Package browser provides the browser automation layer using go-rod.
package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Highlighter gives the operator watching the browser visual feedback: a
// bracket around the element about to be written to, and a status pill in the
// corner while a poll loop is running.
type Highlighter struct {
	page    *rod.Page
	enabled bool
	delay   time.Duration // How long to show highlight before action
}

// NewHighlighter creates a new highlighter for the given page.
func NewHighlighter(page *rod.Page, enabled bool) *Highlighter {
	return &Highlighter{
		page:    page,
		enabled: enabled,
		delay:   300 * time.Millisecond,
	}
}

// SetDelay sets how long the highlight is shown before action execution.
func (h *Highlighter) SetDelay(d time.Duration) {
	h.delay = d
}

// Enabled reports whether highlighting is on.
func (h *Highlighter) Enabled() bool {
	return h != nil && h.enabled && h.page != nil
}

// injectStyles injects the CSS for highlights if not already present.
func (h *Highlighter) injectStyles() error {
	_, err := h.page.Eval(`() => {
		if (document.getElementById('bua-chat-styles')) return;

		const style = document.createElement('style');
		style.id = 'bua-chat-styles';
		style.textContent = ` + "`" + `
			.bua-chat-corner {
				position: fixed;
				pointer-events: none;
				z-index: 999999;
				border-color: #25d366;
				border-style: solid;
				border-width: 0;
			}
			.bua-chat-corner-tl { border-top-width: 3px; border-left-width: 3px; }
			.bua-chat-corner-tr { border-top-width: 3px; border-right-width: 3px; }
			.bua-chat-corner-bl { border-bottom-width: 3px; border-left-width: 3px; }
			.bua-chat-corner-br { border-bottom-width: 3px; border-right-width: 3px; }

			.bua-chat-label, .bua-chat-status {
				position: fixed;
				pointer-events: none;
				z-index: 999999;
				background: #25d366;
				color: #111b21;
				padding: 2px 8px;
				font-size: 11px;
				font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
				font-weight: 600;
				border-radius: 10px;
				white-space: nowrap;
			}
			.bua-chat-status { right: 12px; bottom: 12px; opacity: 0.85; }
		` + "`" + `;
		document.head.appendChild(style);
	}`)
	return err
}

// HighlightBox shows corner brackets around a rectangle in viewport
// coordinates, then pauses for the configured delay.
func (h *Highlighter) HighlightBox(box *proto.DOMRect, label string) error {
	if !h.Enabled() || box == nil {
		return nil
	}
	if err := h.injectStyles(); err != nil {
		return err
	}

	js := fmt.Sprintf(`() => {
		document.querySelectorAll('.bua-chat-corner, .bua-chat-label').forEach(el => el.remove());

		const x = %f, y = %f, w = %f, h = %f;
		const size = 16, pad = 4;
		const label = %q;

		[
			['tl', x - pad, y - pad],
			['tr', x + w + pad - size, y - pad],
			['bl', x - pad, y + h + pad - size],
			['br', x + w + pad - size, y + h + pad - size],
		].forEach(([cls, left, top]) => {
			const el = document.createElement('div');
			el.className = 'bua-chat-corner bua-chat-corner-' + cls;
			el.style.left = left + 'px';
			el.style.top = top + 'px';
			el.style.width = size + 'px';
			el.style.height = size + 'px';
			document.body.appendChild(el);
		});

		if (label) {
			const el = document.createElement('div');
			el.className = 'bua-chat-label';
			el.textContent = label;
			el.style.left = (x - pad) + 'px';
			el.style.top = (y - pad - 22) + 'px';
			document.body.appendChild(el);
		}
	}`, box.X, box.Y, box.Width, box.Height, label)

	if _, err := h.page.Eval(js); err != nil {
		return fmt.Errorf("failed to show element highlight: %w", err)
	}

	time.Sleep(h.delay)
	return nil
}

// HighlightElement highlights an element by its on-screen box.
func (h *Highlighter) HighlightElement(el *rod.Element, label string) error {
	if !h.Enabled() || el == nil {
		return nil
	}
	shape, err := el.Shape()
	if err != nil {
		return fmt.Errorf("failed to get element shape: %w", err)
	}
	return h.HighlightBox(shape.Box(), label)
}

// ShowStatus shows or updates the status pill. An empty text removes it.
func (h *Highlighter) ShowStatus(text string) error {
	if !h.Enabled() {
		return nil
	}
	if err := h.injectStyles(); err != nil {
		return err
	}

	_, err := h.page.Eval(`(text) => {
		let el = document.querySelector('.bua-chat-status');
		if (!text) { if (el) el.remove(); return; }
		if (!el) {
			el = document.createElement('div');
			el.className = 'bua-chat-status';
			document.body.appendChild(el);
		}
		el.textContent = text;
	}`, text)
	if err != nil {
		return fmt.Errorf("failed to show status: %w", err)
	}
	return nil
}

// RemoveHighlights removes element highlights. The status pill stays.
func (h *Highlighter) RemoveHighlights() error {
	if h == nil || h.page == nil {
		return nil
	}

	_, err := h.page.Eval(`() => {
		document.querySelectorAll('.bua-chat-corner, .bua-chat-label').forEach(el => el.remove());
	}`)
	return err
}
