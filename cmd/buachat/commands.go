package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/anxuanzi/bua-chat"
	"github.com/anxuanzi/bua-chat/signup"
)

func (cli *CLI) newReplyCommand() *cobra.Command {
	var (
		opts bua.ReplyOptions
		once bool
	)
	cmd := &cobra.Command{
		Use:   "reply <chat>",
		Short: "Answer new messages in a chat with Gemini",
		Long: `Watches a chat and answers every new incoming message with a reply drafted
from the recent history. Messages already in the chat are left alone. With
--once, answers the messages that arrived after your last one and exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.APIKey == "" {
				return fmt.Errorf("a Gemini API key is required: set GOOGLE_API_KEY or api_key")
			}
			a, err := cli.startAgent(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts.Chat = args[0]
			if once {
				n, err := a.ReplyPending(cmd.Context(), opts)
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d repl%s sent\n", green("✓"), n, plural(n, "y", "ies"))
				return err
			}
			return a.RunAutoReply(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&opts.Interval, "interval", 0, "delay between checks (default: poll_interval)")
	f.StringVar(&opts.Sender, "sender", "", "only answer senders whose name contains this")
	f.IntVar(&opts.History, "history", 0, "messages of context per reply (default: history_size)")
	f.BoolVar(&once, "once", false, "answer pending messages and exit")
	f.IntVar(&opts.Limit, "limit", 0, "with --once, the most replies to send (0: no limit)")
	return cmd
}

func (cli *CLI) newSignupCommand() *cobra.Command {
	var opts bua.SignupOptions
	cmd := &cobra.Command{
		Use:   "signup <chat>",
		Short: "Put your name on the next numbered list posted to a group",
		Long: `Watches a group for a new message holding a numbered list such as

  1) Bob
  2) Alice
  3)

and sends the list back with your name in the first empty slot. Nothing is
sent when your name is already on it or every slot is taken.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.Name == "" && cfg.DisplayName == "" {
				return fmt.Errorf("a name is required: pass --name or set display_name")
			}
			a, err := cli.startAgent(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts.Chat = args[0]
			return a.RunSignup(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Name, "name", "", "name to sign up with (default: display_name)")
	f.DurationVar(&opts.Interval, "interval", 0, "delay between checks (default: poll_interval)")
	f.IntVar(&opts.Policy.MinFilled, "min-filled", 0, "wait until this many slots are taken")
	f.BoolVar(&opts.Policy.AppendWhenFull, "append", false, "add a new slot when the list is full")
	f.BoolVar(&opts.KeepWatching, "keep-watching", false, "keep watching after signing up")
	f.StringSliceVar(&opts.Policy.Placeholders, "placeholder", nil, "slot content that counts as empty, e.g. _ (repeatable)")
	return cmd
}

func (cli *CLI) newSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat> <message>",
		Short: "Send one message to a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := cli.startAgent(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
		},
	}
}

func (cli *CLI) newMessagesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <chat>",
		Short: "Print the newest messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := cli.startAgent(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			msgs, err := a.Messages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tTIME\tSENDER\tTEXT")
			for i, m := range msgs {
				stamp := "-"
				if !m.Timestamp.IsZero() {
					stamp = m.Timestamp.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, stamp, m.Sender, strings.ReplaceAll(m.Text, "\n", " ⏎ "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "how many messages to show")
	return cmd
}

func (cli *CLI) newLoginCommand() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log the browser profile into WhatsApp Web",
		Long: `Opens WhatsApp Web and waits for the QR code to be scanned from your phone.
Each QR code is also saved as a screenshot so a headless login works. The
session is kept in the browser profile for later runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := bua.New(cfg.ToBua())
			if err != nil {
				return err
			}
			defer a.Close()
			if clear {
				if err := a.ClearScreenshots(); err != nil {
					return err
				}
			}
			return a.Login(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&clear, "clear-screenshots", false, "remove old QR codes and failure snapshots first")
	return cmd
}

func (cli *CLI) newTestLLMCommand() *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "test-llm <message>",
		Short: "Draft a reply to one message without opening the browser",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := bua.New(cfg.ToBua())
			if err != nil {
				return err
			}
			defer a.Close()

			composer, err := a.NewComposer(cmd.Context())
			if err != nil {
				return err
			}
			start := time.Now()
			reply, err := composer.ComposeTo(cmd.Context(), sender, strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", bold("Model:"), composer.Config().Model)
			fmt.Fprintf(out, "%s\n%s\n", bold("Reply:"), reply)
			fmt.Fprintln(out, gray(fmt.Sprintf("(%s)", time.Since(start).Round(time.Millisecond))))
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "Friend", "sender name shown to the model")
	return cmd
}

func (cli *CLI) newParseSignupCommand() *cobra.Command {
	var (
		file   string
		name   string
		policy signup.Policy
	)
	cmd := &cobra.Command{
		Use:   "parse-signup [text]",
		Short: "Show how a message is read as a signup list",
		Long: `Parses text as a signup list and prints its slots. The text comes from the
argument, --file, or standard input. With --name, also prints the edited list.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			printSignup(cmd.OutOrStdout(), text, name, policy)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "read the message from a file")
	f.StringVar(&name, "name", "", "preview signing up with this name")
	f.IntVar(&policy.MinFilled, "min-filled", 0, "wait until this many slots are taken")
	f.BoolVar(&policy.AppendWhenFull, "append", false, "add a new slot when the list is full")
	f.StringSliceVar(&policy.Placeholders, "placeholder", nil, "slot content that counts as empty (repeatable)")
	return cmd
}

func readInput(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	case len(args) > 0:
		// Shell arguments carry "\n" literally.
		return strings.ReplaceAll(args[0], `\n`, "\n"), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
}

func printSignup(w io.Writer, text, name string, policy signup.Policy) {
	list := signup.Parse(text)
	if list == nil {
		fmt.Fprintln(w, yellow("No numbered list found."))
		return
	}

	fmt.Fprintf(w, "%s %d slot%s, %d filled\n", bold("List:"), len(list.Slots), plural(len(list.Slots), "", "s"), list.Filled(policy))
	if h := list.Header(); len(h) > 0 {
		fmt.Fprintf(w, "%s %q\n", gray("header:"), strings.Join(h, "\n"))
	}
	for _, s := range list.Slots {
		occupant := s.Occupant
		if policy.IsEmpty(occupant) {
			occupant = gray("(empty)")
		}
		fmt.Fprintf(w, "  %-4s %s\n", s.Marker(), occupant)
	}
	if f := list.Footer(); len(f) > 0 {
		fmt.Fprintf(w, "%s %q\n", gray("footer:"), strings.Join(f, "\n"))
	}

	if name == "" {
		return
	}
	out := signup.Apply(text, name, policy)
	fmt.Fprintf(w, "\n%s %s\n", bold("Sign up "+name+":"), out)
	if out.Changed {
		fmt.Fprintln(w, out.Text)
	}
}

func (cli *CLI) newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
