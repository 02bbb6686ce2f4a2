package bua

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anxuanzi/bua-chat/agent"
	"github.com/anxuanzi/bua-chat/memory"
	"github.com/anxuanzi/bua-chat/signup"
	"github.com/anxuanzi/bua-chat/whatsapp"
)

// ReplyOptions configures the auto-reply modes.
type ReplyOptions struct {
	// Chat is the display name of the chat to watch.
	Chat string

	// Sender, when set, only answers messages whose sender name contains it.
	Sender string

	// History is how many recent messages are read per cycle and sent to the
	// model as context. Defaults to Config.HistorySize.
	History int

	// Interval between poll cycles. Defaults to Config.PollInterval.
	Interval time.Duration

	// Limit caps the replies sent by ReplyPending. Zero means no cap.
	Limit int
}

// SignupOptions configures the signup mode.
type SignupOptions struct {
	// Chat is the display name of the group to watch.
	Chat string

	// Name goes into the first empty slot. Defaults to Config.DisplayName.
	Name string

	// Policy decides which slots count as empty and when to sign up.
	Policy signup.Policy

	// History is how many recent messages are read per cycle. Default 5.
	History int

	// Interval between poll cycles. Defaults to Config.PollInterval.
	Interval time.Duration

	// KeepWatching keeps the loop running after a successful signup.
	KeepWatching bool
}

// IsTransient reports whether a cycle error should only skip the cycle.
// Only losing the login session is terminal; missing elements, chat not
// found, model failures and per-call timeouts are transient. The loop's own
// cancellation is handled by the loop, not here.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, whatsapp.ErrSessionLost)
}

// status shows text in the browser status pill when the client supports it.
func (a *Agent) status(chat ChatClient, text string) {
	if s, ok := chat.(interface{ Status(string) }); ok {
		s.Status(text)
	}
}

// prime marks every message currently in view as seen so only messages that
// arrive after the loop starts are acted on.
func (a *Agent) prime(ctx context.Context, chat ChatClient, name string, history int) (*memory.Manager, error) {
	if err := chat.OpenChat(ctx, name); err != nil {
		return nil, err
	}
	msgs, err := chat.RecentMessages(ctx, history)
	if err != nil {
		return nil, err
	}
	seen := memory.NewManager(&memory.Config{Limit: a.config.MemoryLimit})
	seen.StartRun()
	for _, m := range msgs {
		seen.Mark(m.Key())
	}
	a.logger.Debug("primed %d existing message(s) in %s, remembering up to %d", len(msgs), name, seen.Limit())
	return seen, nil
}

// poll runs cycle every interval until ctx is done, cycle reports done, or a
// non-transient error occurs.
func (a *Agent) poll(ctx context.Context, interval time.Duration, cycle func(context.Context) (bool, error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}

		done, err := cycle(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, whatsapp.ErrSessionLost):
			a.logger.SessionLost(err)
			a.snapshot(ctx, "session_lost")
			return err
		default:
			a.logger.Skip("cycle", err)
			if a.config.Debug {
				a.snapshot(ctx, "cycle_error")
			}
		}
		if done {
			return nil
		}
	}
}

func (a *Agent) replyDefaults(opts ReplyOptions) (ReplyOptions, error) {
	if opts.Chat == "" {
		return opts, fmt.Errorf("chat name is required")
	}
	if opts.History <= 0 {
		opts.History = a.config.HistorySize
	}
	if opts.Interval <= 0 {
		opts.Interval = a.config.PollInterval
	}
	return opts, nil
}

// RunAutoReply watches a chat and answers each new incoming message with a
// drafted reply until ctx is cancelled. Messages already in the chat when it
// starts are ignored. A failed cycle is skipped; a lost session ends the loop
// with whatsapp.ErrSessionLost.
func (a *Agent) RunAutoReply(ctx context.Context, opts ReplyOptions) error {
	opts, err := a.replyDefaults(opts)
	if err != nil {
		return err
	}
	chat, err := a.chatClient()
	if err != nil {
		return err
	}
	composer, err := a.replyComposer(ctx)
	if err != nil {
		return err
	}

	seen, err := a.prime(ctx, chat, opts.Chat, opts.History)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", opts.Chat, err)
	}

	a.logger.Start("auto-reply", opts.Chat, opts.Interval, uuid.NewString())
	a.status(chat, "bua-chat: replying in "+opts.Chat)
	defer a.status(chat, "")

	err = a.poll(ctx, opts.Interval, func(ctx context.Context) (bool, error) {
		return false, a.replyCycle(ctx, chat, composer, seen, opts)
	})
	a.logger.Done(err == nil, fmt.Sprintf("Auto-reply in %s stopped after %s", opts.Chat, time.Since(seen.Started()).Round(time.Second)))
	return err
}

// replyCycle answers the newest unseen incoming message, if any.
func (a *Agent) replyCycle(ctx context.Context, chat ChatClient, composer Composer, seen *memory.Manager, opts ReplyOptions) error {
	if err := chat.OpenChat(ctx, opts.Chat); err != nil {
		return err
	}
	msgs, err := chat.RecentMessages(ctx, opts.History)
	if err != nil {
		return err
	}

	target := -1
	fresh := 0
	for i, m := range msgs {
		if m.Outgoing || seen.Seen(m.Key()) || !m.FromSender(opts.Sender) {
			continue
		}
		a.logger.Message(m.Sender, m.Text)
		target = i
		fresh++
	}
	a.logger.Cycle(fresh)

	keys := make([]string, len(msgs))
	for i, m := range msgs {
		keys[i] = m.Key()
	}
	if target < 0 {
		seen.Mark(keys...)
		return nil
	}

	reply, err := composer.Compose(ctx, msgs[:target+1])
	if errors.Is(err, agent.ErrNothingToReply) {
		seen.Mark(keys...)
		return nil
	}
	if err != nil {
		return err
	}
	if err := chat.Send(ctx, reply); err != nil {
		return err
	}
	seen.Mark(keys...)
	a.logger.Reply(msgs[target].Sender, reply)
	return nil
}

// ReplyPending answers, one by one, the incoming messages that arrived after
// your last message, and returns how many replies were sent.
func (a *Agent) ReplyPending(ctx context.Context, opts ReplyOptions) (int, error) {
	opts, err := a.replyDefaults(opts)
	if err != nil {
		return 0, err
	}
	chat, err := a.chatClient()
	if err != nil {
		return 0, err
	}
	composer, err := a.replyComposer(ctx)
	if err != nil {
		return 0, err
	}

	msgs, err := a.Messages(ctx, opts.Chat, opts.History)
	if err != nil {
		return 0, err
	}

	start := len(msgs) - len(whatsapp.AfterLastOutgoing(msgs))
	sent := 0
	for i := start; i < len(msgs); i++ {
		m := msgs[i]
		if m.Outgoing || !m.FromSender(opts.Sender) {
			continue
		}
		if opts.Limit > 0 && sent >= opts.Limit {
			break
		}
		a.logger.Message(m.Sender, m.Text)

		reply, err := composer.Compose(ctx, msgs[:i+1])
		if err != nil {
			return sent, err
		}
		if err := chat.Send(ctx, reply); err != nil {
			return sent, err
		}
		sent++
		a.logger.Reply(m.Sender, reply)
	}
	return sent, nil
}

// RunSignup watches a group for a new message holding a numbered list and
// fills its first empty slot with the configured name. It stops after one
// successful signup unless KeepWatching is set.
func (a *Agent) RunSignup(ctx context.Context, opts SignupOptions) error {
	if opts.Chat == "" {
		return fmt.Errorf("chat name is required")
	}
	if opts.Name == "" {
		opts.Name = a.config.DisplayName
	}
	if opts.Name == "" {
		return fmt.Errorf("a display name is required to sign up")
	}
	if opts.History <= 0 {
		opts.History = 5
	}
	if opts.Interval <= 0 {
		opts.Interval = a.config.PollInterval
	}

	chat, err := a.chatClient()
	if err != nil {
		return err
	}
	seen, err := a.prime(ctx, chat, opts.Chat, max(opts.History, a.config.HistorySize))
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", opts.Chat, err)
	}

	a.logger.Start("signup", opts.Chat, opts.Interval, uuid.NewString())
	a.status(chat, "bua-chat: watching "+opts.Chat+" for a list")
	defer a.status(chat, "")

	err = a.poll(ctx, opts.Interval, func(ctx context.Context) (bool, error) {
		sent, err := a.signupCycle(ctx, chat, seen, opts)
		return sent && !opts.KeepWatching, err
	})
	a.logger.Done(err == nil, fmt.Sprintf("Signup watch in %s stopped after %s", opts.Chat, time.Since(seen.Started()).Round(time.Second)))
	return err
}

// signupCycle applies the editor to the newest unseen incoming message and
// sends the edited list when it changed.
func (a *Agent) signupCycle(ctx context.Context, chat ChatClient, seen *memory.Manager, opts SignupOptions) (bool, error) {
	if err := chat.OpenChat(ctx, opts.Chat); err != nil {
		return false, err
	}
	msgs, err := chat.RecentMessages(ctx, opts.History)
	if err != nil {
		return false, err
	}

	var unseen []whatsapp.Message
	for _, m := range whatsapp.Incoming(msgs) {
		if !seen.Seen(m.Key()) {
			unseen = append(unseen, m)
		}
	}
	a.logger.Cycle(len(unseen))
	if len(unseen) == 0 {
		return false, nil
	}

	// Only the newest message counts; older ones are superseded by it.
	latest := unseen[len(unseen)-1]
	for _, m := range unseen[:len(unseen)-1] {
		seen.Mark(m.Key())
	}

	out := signup.Apply(latest.Text, opts.Name, opts.Policy)
	if !out.Changed {
		seen.Mark(latest.Key())
		if out.Reason != signup.NotAList {
			a.logger.Signup(opts.Name, out.Reason.String(), out.Position, false)
		}
		return false, nil
	}

	a.logger.Message(latest.Sender, latest.Text)
	if err := chat.Send(ctx, out.Text); err != nil {
		return false, err
	}
	seen.Mark(latest.Key())
	a.logger.Signup(opts.Name, out.Reason.String(), out.Position, true)
	return true, nil
}
