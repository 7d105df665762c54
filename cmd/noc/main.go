package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arnatech/noc/internal/app"
	"github.com/arnatech/noc/pkg/nocsdk"
	"github.com/arnatech/noc/pkg/slogx"
)

var version = app.BuildVersion

// application is built once per invocation by the root pre-run hook.
var application *app.Application

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if application != nil {
		if cerr := application.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		printError(err)
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:   "noc",
	Short: "NOC assistant - chat with the network operations assistant from the terminal",
	Long: `noc is the command-line client for the NOC assistant.

It signs in against the SSO service, keeps the session in a local
credential store, and talks to the chat/RAG backend.

Examples:
  # Sign in
  noc auth login --email ops@example.com

  # Ask a question in a new conversation
  noc chat send "Which links on core-01 are flapping?"

  # Browse past conversations
  noc chat history
  noc chat show

  # Manage reference documents
  noc docs upload runbook.pdf topology.pdf
  noc docs list`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupApplication,
}

func init() {
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(apiCmd)

	rootCmd.PersistentFlags().String("env-file", ".env", "Load environment variables from this file if it exists")
	rootCmd.PersistentFlags().String("sso-url", "", "SSO API base URL (overrides NOC_SSO_API_URL)")
	rootCmd.PersistentFlags().String("chat-url", "", "Chat API base URL (overrides NOC_CHAT_API_URL)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log HTTP traffic to stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

func setupApplication(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	if noColor, _ := flags.GetBool("no-color"); noColor {
		color.NoColor = true
	}

	envFile, _ := flags.GetString("env-file")
	if err := app.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := app.LoadConfig()
	if v, _ := flags.GetString("sso-url"); v != "" {
		cfg.SSOBaseURL = v
	}
	if v, _ := flags.GetString("chat-url"); v != "" {
		cfg.ChatBaseURL = v
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	a, err := app.New(cfg, app.WithLoginBoundary(loginBoundary))
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	application = a
	cmd.SetContext(slogx.WithContext(cmd.Context(), a.Logger()))
	return nil
}

// loginBoundary is the terminal equivalent of redirecting to the login
// page.
func loginBoundary(_ context.Context, reason error) {
	warn := color.New(color.FgYellow)
	_, _ = warn.Fprintf(os.Stderr, "Session ended (%v).\n", reason)
	_, _ = warn.Fprintln(os.Stderr, "Run `noc auth login` to sign in again.")
}

func printError(err error) {
	red := color.New(color.FgRed)
	_, _ = red.Fprintf(os.Stderr, "Error: %v\n", err)

	if errors.Is(err, nocsdk.ErrNotAuthenticated) {
		fmt.Fprintln(os.Stderr, "Run `noc auth login` first.")
	}
}

// requireSession fails early when no credentials are stored.
func requireSession(ctx context.Context) error {
	tokens, err := application.Store().Tokens(ctx)
	if err != nil {
		return err
	}
	if tokens.IsZero() {
		return nocsdk.ErrNotAuthenticated
	}
	return nil
}
