package whatsapp

import (
	"fmt"
	"strings"
	"time"
)

// YouSender is the sender name given to outgoing messages.
const YouSender = "You"

// Message is one text message scraped from the open chat.
type Message struct {
	// ID is the row's data-id attribute. Empty when the markup has none.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Sender string `json:"sender" yaml:"sender"`
	Text   string `json:"text" yaml:"text"`

	// Timestamp comes from the row metadata; minute precision at best.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Approximate is set when the metadata was missing or unparseable and
	// Timestamp is the time the row was read instead.
	Approximate bool `json:"approximate,omitempty" yaml:"approximate,omitempty"`

	Outgoing bool   `json:"outgoing" yaml:"outgoing"`
	Chat     string `json:"chat" yaml:"chat"`
}

// Key identifies the message across poll cycles. It is the row ID when there
// is one, otherwise it is derived from the content.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	ts := ""
	if !m.Approximate {
		ts = m.Timestamp.Format("200601021504")
	}
	dir := "in"
	if m.Outgoing {
		dir = "out"
	}
	return strings.Join([]string{dir, m.Chat, m.Sender, ts, m.Text}, "\x00")
}

// String formats the message for logs.
func (m Message) String() string {
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), m.Sender, m.Text)
}

// Incoming filters messages written by other participants.
func Incoming(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if !m.Outgoing {
			out = append(out, m)
		}
	}
	return out
}

// AfterLastOutgoing returns the messages that arrived after our last message.
// With no outgoing message in view every message is returned.
func AfterLastOutgoing(msgs []Message) []Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Outgoing {
			return msgs[i+1:]
		}
	}
	return msgs
}

// FromSender reports whether the message was written by sender. The match is
// case-insensitive on the display name, and an empty sender matches everyone.
func (m Message) FromSender(sender string) bool {
	if sender == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.Sender), strings.ToLower(strings.TrimSpace(sender)))
}
