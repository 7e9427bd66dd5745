// chat_cmd.go — parley chat subcommand tree (clear, compact, context,
// abort, cancel). Each maps onto a coordinator operation against the
// session named by --session (default: the active session).
package parleycli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parley-dev/parley/chatsubmitservice"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat maintenance operations (clear, compact, context, abort, cancel).",
	Long: `Maintenance operations on a session's conversation.

  parley chat clear     wipe the session's history on the gateway
  parley chat compact   ask the agent to compact its context
  parley chat context   show token usage for the session
  parley chat abort     stop the in-flight reply
  parley chat cancel    drop queued messages waiting on the agent`,
	SilenceUsage: true,
}

var chatClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the session's history on the gateway.",
	Args:  cobra.NoArgs,
	RunE:  runChatSlash("/clear"),
}

var chatCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Ask the agent to compact its context.",
	Args:  cobra.NoArgs,
	RunE:  runChatSlash("/compact"),
}

var chatContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show token usage for the session.",
	Args:  cobra.NoArgs,
	RunE:  runChatContext,
}

var chatAbortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Stop the in-flight reply.",
	Args:  cobra.NoArgs,
	RunE:  runChatSlash("/abort"),
}

var chatCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Drop queued messages waiting on the agent.",
	Args:  cobra.NoArgs,
	RunE:  runChatCancel,
}

func init() {
	chatCmd.AddCommand(chatClearCmd, chatCompactCmd, chatContextCmd, chatAbortCmd, chatCancelCmd)
}

// targetSession resolves the session a chat command acts on.
func targetSession(cmd *cobra.Command, engine *Engine) string {
	key, _ := cmd.Root().PersistentFlags().GetString("session")
	if key == "" {
		key = engine.Registry.ActiveKey()
	}
	return key
}

// runChatSlash builds a RunE that submits one slash command.
func runChatSlash(command string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
			key := targetSession(cmd, engine)
			callCtx, cancel := engine.callContext(ctx)
			defer cancel()
			if err := engine.Submit.Submit(callCtx, key, chatsubmitservice.Input{Text: command}); err != nil {
				return err
			}
			printNotices(engine, key)
			return nil
		})
	}
}

func runChatContext(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
		key := targetSession(cmd, engine)
		callCtx, cancel := engine.callContext(ctx)
		defer cancel()
		if err := engine.Submit.Submit(callCtx, key, chatsubmitservice.Input{Text: "/context"}); err != nil {
			return err
		}
		session, ok := engine.Registry.Get(key)
		if !ok {
			return fmt.Errorf("unknown session %q", key)
		}
		fmt.Printf("%d tokens of %d in context\n", session.SessionTokens, session.ContextWindow)
		return nil
	})
}

func runChatCancel(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
		key := targetSession(cmd, engine)
		callCtx, cancel := engine.callContext(ctx)
		defer cancel()
		if err := engine.Submit.CancelQueued(callCtx, key); err != nil {
			return fmt.Errorf("failed to cancel queued messages: %w", err)
		}
		fmt.Println("Queued messages dropped.")
		return nil
	})
}
