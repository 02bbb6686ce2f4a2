// Package agent drafts chat replies with Gemini and provides the console logger
// shared by the poll loops.
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/anxuanzi/bua-chat/whatsapp"
)

// Roles used in the conversation sent to the model.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

var (
	// ErrEmptyReply is returned when the model produced no usable text.
	ErrEmptyReply = errors.New("agent: model returned an empty reply")

	// ErrNothingToReply is returned when the history has no incoming message
	// after our last one.
	ErrNothingToReply = errors.New("agent: no incoming message to reply to")
)

// Turn is one role-tagged entry of the conversation history.
type Turn struct {
	Role string `json:"role" yaml:"role"`
	Text string `json:"text" yaml:"text"`
}

// Generator is the part of the genai client the composer uses. *genai.Models
// satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds composer configuration.
type Config struct {
	// APIKey is the Gemini API key. Required unless a Generator is supplied.
	APIKey string

	// Model is the model ID. Default: "gemini-2.5-flash"
	Model string

	// Temperature for generation. Nil uses 0.7; zero is a valid setting.
	Temperature *float32

	// MaxTokens bounds the reply length in output tokens. Default: 1000
	MaxTokens int

	// HistoryTokens bounds the estimated size of the history. Default: 2000
	HistoryTokens int

	// Persona is the system instruction; {name} is replaced by DisplayName.
	Persona string

	// DisplayName is the name the model speaks as.
	DisplayName string
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.Temperature == nil {
		c.Temperature = genai.Ptr[float32](0.7)
	} else {
		c.Temperature = genai.Ptr(*c.Temperature)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
	if c.HistoryTokens == 0 {
		c.HistoryTokens = 2000
	}
}

// Composer drafts one reply per call. It keeps no state between calls.
type Composer struct {
	config  Config
	gen     Generator
	counter *TokenCounter
}

// NewComposer creates a composer backed by the Gemini API.
func NewComposer(ctx context.Context, cfg Config) (*Composer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GOOGLE_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return NewComposerWith(client.Models, cfg), nil
}

// NewComposerWith creates a composer on top of an existing generator.
func NewComposerWith(gen Generator, cfg Config) *Composer {
	cfg.applyDefaults()
	return &Composer{
		config:  cfg,
		gen:     gen,
		counter: NewTokenCounter(cfg.HistoryTokens),
	}
}

// Config returns the effective configuration.
func (c *Composer) Config() Config {
	return c.config
}

// BuildHistory converts chat messages to turns. Incoming messages become user
// turns prefixed with the sender; our own become model turns. Consecutive
// turns with the same role are merged.
func BuildHistory(msgs []whatsapp.Message) []Turn {
	var turns []Turn
	for _, m := range msgs {
		role, text := RoleUser, incomingText(m.Sender, m.Text)
		if m.Outgoing {
			role, text = RoleModel, m.Text
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Text += "\n" + text
			continue
		}
		turns = append(turns, Turn{Role: role, Text: text})
	}
	return turns
}

// Compose drafts a reply to the newest incoming message in history.
func (c *Composer) Compose(ctx context.Context, history []whatsapp.Message) (string, error) {
	turns := c.counter.TrimHistory(BuildHistory(history))

	// The contents sent must start and end with an incoming turn.
	for len(turns) > 0 && turns[0].Role != RoleUser {
		turns = turns[1:]
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != RoleUser {
		return "", ErrNothingToReply
	}
	return c.generate(ctx, turns)
}

// ComposeTo drafts a reply to a single message with no other context.
func (c *Composer) ComposeTo(ctx context.Context, sender, text string) (string, error) {
	return c.generate(ctx, []Turn{{Role: RoleUser, Text: incomingText(sender, text)}})
}

func (c *Composer) generate(ctx context.Context, turns []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, &genai.Content{
			Role:  t.Role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: SystemPrompt(c.config.Persona, c.config.DisplayName)}},
		},
		Temperature:     genai.Ptr(*c.config.Temperature),
		MaxOutputTokens: int32(c.config.MaxTokens),
	}

	resp, err := c.gen.GenerateContent(ctx, c.config.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	reply := CleanReply(responseText(resp), c.config.DisplayName)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// responseText joins the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

var quotePairs = [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}}

// CleanReply trims whitespace, one pair of surrounding quotes and a leading
// "<name>:" or "From <name>:" echo, which may sit inside or outside the quotes.
func CleanReply(s, name string) string {
	var echo *regexp.Regexp
	if name != "" {
		echo = regexp.MustCompile(`(?i)^(from\s+)?` + regexp.QuoteMeta(name) + `\s*:\s*`)
	}
	stripEcho := func(s string) string {
		if echo == nil {
			return s
		}
		return strings.TrimSpace(echo.ReplaceAllString(s, ""))
	}

	s = stripEcho(strings.TrimSpace(s))
	for _, q := range quotePairs {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			if !strings.Contains(inner, q[0]) {
				s = strings.TrimSpace(inner)
			}
			break
		}
	}
	return stripEcho(s)
}
