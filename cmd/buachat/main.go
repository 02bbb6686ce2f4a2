// Command buachat automates a personal WhatsApp Web session: it answers new
// messages with Gemini or signs you up on numbered lists posted to a group.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/anxuanzi/bua-chat"
	"github.com/anxuanzi/bua-chat/config"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// CLI holds the persistent flag values shared by every command.
type CLI struct {
	configFile string
	profileDir string
	headless   bool
	debug      bool
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
		os.Exit(1)
	}
}

// NewRootCommand creates the buachat command tree.
func NewRootCommand() *cobra.Command {
	cli := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "buachat",
		Short: "WhatsApp Web auto-reply and signup bot",
		Long: fmt.Sprintf(`%s

buachat drives WhatsApp Web in a Chromium profile that stays logged in between
runs. Run "buachat login" once and scan the QR code, then:

%s
  buachat reply "Mum"                        # answer new messages with Gemini
  buachat reply "Mum" --once                 # answer what is pending, then exit
  buachat signup "Football" --name Carl      # take the first free slot on a list
  buachat messages "Football" --limit 20     # show the newest messages
  buachat parse-signup -f list.txt --name Carl

Settings come from bua-chat.yaml, .env, BUACHAT_* variables and flags.`,
			bold("bua-chat"), bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cli.configFile, "config", "c", "", "config file (default: ./bua-chat.yaml or ~/.bua-chat/bua-chat.yaml)")
	pf.StringVar(&cli.profileDir, "profile-dir", "", "directory holding browser profiles")
	pf.BoolVar(&cli.headless, "headless", false, "run the browser without a window")
	pf.BoolVarP(&cli.debug, "debug", "d", false, "debug logging and screenshots of failed cycles")
	pf.StringVar(&cli.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		cli.newReplyCommand(),
		cli.newSignupCommand(),
		cli.newSendCommand(),
		cli.newMessagesCommand(),
		cli.newLoginCommand(),
		cli.newTestLLMCommand(),
		cli.newParseSignupCommand(),
		cli.newConfigCommand(),
	)
	return rootCmd
}

// loadConfig reads the layered configuration, with changed flags on top.
func (cli *CLI) loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(config.Options{
		File:  cli.configFile,
		Flags: cmd.Flags(),
	})
}

// startAgent creates the agent and connects it to the logged-in web client.
// The caller closes the agent.
func (cli *CLI) startAgent(cmd *cobra.Command, cfg config.Config) (*bua.Agent, error) {
	a, err := bua.New(cfg.ToBua())
	if err != nil {
		return nil, err
	}
	if err := a.Start(cmd.Context()); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start: %w (run \"buachat login\" if the session expired)", err)
	}
	return a, nil
}
