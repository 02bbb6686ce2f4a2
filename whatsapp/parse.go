package whatsapp

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// metaRe matches data-pre-plain-text, e.g. "[10:32, 19/10/2026] Bob: ".
var metaRe = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*(.*?):\s*$`)

// timestampLayouts are the clock/date orders the web client renders depending on
// the phone's locale. Day-first comes first.
var timestampLayouts = []string{
	"15:04, 2/1/2006",
	"15:04, 1/2/2006",
	"3:04 PM, 1/2/2006",
	"3:04 PM, 2/1/2006",
	"15:04, 2.1.2006",
	"15:04, 2006-01-02",
	"15:04, 2006/1/2",
}

// ParseTimestamp parses the bracketed part of the row metadata.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(s)
	s = strings.ToUpper(strings.TrimSpace(s))
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ParseMeta splits data-pre-plain-text into timestamp text and sender name.
func ParseMeta(meta string) (stamp, sender string, ok bool) {
	m := metaRe.FindStringSubmatch(meta)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// RowParser turns message-row HTML into Message records.
type RowParser struct {
	// Chat is the open chat's display name; incoming rows without metadata use it
	// as the sender.
	Chat string

	// Now is the observation time for rows without a usable timestamp.
	Now time.Time

	// Location for timestamps. Defaults to time.Local.
	Location *time.Location
}

// ParseRows parses rows in order, dropping rows without text.
func (p RowParser) ParseRows(rows []string) []Message {
	var out []Message
	for _, row := range rows {
		if msg, ok := p.ParseRow(row); ok {
			out = append(out, msg)
		}
	}
	return out
}

// ParseRow parses the outer HTML of one message row. It reports false for rows
// with no text: media, date separators and system notices.
func (p RowParser) ParseRow(rowHTML string) (Message, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rowHTML))
	if err != nil {
		return Message{}, false
	}

	text := strings.TrimSpace(messageText(doc.Selection))
	if text == "" {
		return Message{}, false
	}

	msg := Message{
		Text: text,
		Chat: p.Chat,
	}

	if id, ok := doc.Find("[data-id]").First().Attr("data-id"); ok {
		msg.ID = id
	}
	msg.Outgoing = doc.Find(".message-out").Length() > 0 ||
		(doc.Find(".message-in").Length() == 0 && strings.HasPrefix(msg.ID, "true_"))

	stamp, sender := "", ""
	if meta, ok := doc.Find("[data-pre-plain-text]").First().Attr("data-pre-plain-text"); ok {
		stamp, sender, _ = ParseMeta(meta)
	}

	msg.Timestamp = p.Now
	msg.Approximate = true
	if stamp != "" {
		if t, err := ParseTimestamp(stamp, p.Location); err == nil {
			msg.Timestamp = t
			msg.Approximate = false
		}
	}

	switch {
	case msg.Outgoing:
		msg.Sender = YouSender
	case sender != "":
		msg.Sender = sender
	default:
		msg.Sender = p.Chat
	}
	return msg, true
}

// messageText finds the message body inside a row. The body is the outermost
// span.selectable-text of the copyable block; quoted replies are skipped.
func messageText(row *goquery.Selection) string {
	scope := row.Find(".copyable-text[data-pre-plain-text]").First()
	if scope.Length() == 0 {
		scope = row
	}

	var body *goquery.Selection
	scope.Find("span.selectable-text").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.ParentsFiltered("span.selectable-text").Length() > 0 {
			return true
		}
		if s.ParentsFiltered(".quoted-mention, [aria-label='Quoted message']").Length() > 0 {
			return true
		}
		body = s
		return false
	})
	if body == nil {
		return ""
	}
	return nodeText(body)
}

// nodeText flattens a selection to text, reconstructing emoji from image alt
// text and line breaks from <br>.
func nodeText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			b.WriteString(c.Text())
		case "br":
			b.WriteString("\n")
		case "img":
			if alt, ok := c.Attr("alt"); ok && alt != "" {
				b.WriteString(alt)
			} else if plain, ok := c.Attr("data-plain-text"); ok {
				b.WriteString(plain)
			}
		case "script", "style", "#comment":
		default:
			b.WriteString(nodeText(c))
		}
	})
	return b.String()
}
