package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the NOC assistant",
}

var chatSendCmd = &cobra.Command{
	Use:   "send <message...>",
	Short: "Send a message",
	Long: `Send a message to the assistant.

Without --conversation the message continues the most recent
conversation. Use --new to start a fresh one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChatSend,
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List conversations, most recent first",
	RunE:  runChatHistory,
}

var chatShowCmd = &cobra.Command{
	Use:   "show [conversation-id]",
	Short: "Print a conversation (defaults to the most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChatShow,
}

func init() {
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatShowCmd)

	chatSendCmd.Flags().StringP("conversation", "c", "", "Conversation to continue")
	chatSendCmd.Flags().Bool("new", false, "Start a new conversation")

	chatHistoryCmd.Flags().Bool("json", false, "Print as JSON")
	chatShowCmd.Flags().Bool("json", false, "Print as JSON")
}

func runChatSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	svc := application.ChatService
	conversationID, _ := cmd.Flags().GetString("conversation")
	fresh, _ := cmd.Flags().GetBool("new")

	if conversationID == "" && !fresh {
		latest, ok, err := svc.Latest(ctx)
		if err != nil {
			return err
		}
		if ok {
			conversationID = latest.ID
		}
	}

	res, err := svc.Send(ctx, strings.Join(args, " "), conversationID)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	out := cmd.OutOrStdout()
	renderMessage(out, res.Message)
	_, _ = dimmed.Fprintf(out, "conversation %s\n", res.ConversationID)
	return nil
}

func runChatHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	summaries, err := application.ChatService.Conversations(ctx)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd, summaries)
	}
	renderConversations(cmd.OutOrStdout(), summaries)
	return nil
}

func runChatShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	svc := application.ChatService

	var conversationID string
	if len(args) == 1 {
		conversationID = args[0]
	} else {
		latest, ok, err := svc.Latest(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations yet.")
			return nil
		}
		conversationID = latest.ID
	}

	messages, err := svc.Transcript(ctx, conversationID)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd, messages)
	}
	renderTranscript(cmd.OutOrStdout(), messages)
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
