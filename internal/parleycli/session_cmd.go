// session_cmd.go — parley session subcommand tree (list, switch, show,
// rename, archive, unarchive).
package parleycli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parley-dev/parley/gatewayclient"
)

// sessionCmd is the parent "parley session" command.
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions (list, switch, show).",
	Long: `Inspect and switch gateway sessions.
Sessions are created by the gateway; switching changes which one your
messages go to and which transcript is mirrored locally.

  parley session list             list all sessions (* = active)
  parley session switch <key>     switch the active session
  parley session show [key]       print a session's conversation
  parley session rename <key> <label>   relabel a session
  parley session archive <key>    archive a session
  parley session unarchive <key>  restore an archived session`,
	SilenceUsage: true,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions (* = active).",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionSwitchCmd = &cobra.Command{
	Use:   "switch <key>",
	Short: "Switch the active session by key.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionSwitch,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Print a session's conversation (default: the active session).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionShow,
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <key> <label>",
	Short: "Set a session's display label.",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionRename,
}

var sessionArchiveCmd = &cobra.Command{
	Use:   "archive <key>",
	Short: "Archive a session.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionArchive(true),
}

var sessionUnarchiveCmd = &cobra.Command{
	Use:   "unarchive <key>",
	Short: "Restore an archived session.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionArchive(false),
}

func init() {
	sessionCmd.AddCommand(
		sessionListCmd,
		sessionSwitchCmd,
		sessionShowCmd,
		sessionRenameCmd,
		sessionArchiveCmd,
		sessionUnarchiveCmd,
	)
}

// withEngine runs fn against a started engine and tears it down after.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *Engine) error) error {
	opts, err := loadOpts(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(opts)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	engine, err := startEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer engine.Stop()
	return fn(ctx, engine)
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
		printSessions(engine.Registry.List(), engine.Registry.ActiveKey())
		return nil
	})
}

func runSessionSwitch(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
		key := args[0]
		callCtx, cancel := engine.callContext(ctx)
		defer cancel()
		if err := engine.Sync.SwitchSession(callCtx, key); err != nil {
			return fmt.Errorf("failed to switch session: %w", err)
		}
		fmt.Printf("Active session is now %q.\n", key)
		return nil
	})
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
		key := engine.Registry.ActiveKey()
		if len(args) == 1 {
			key = args[0]
		}
		if key != engine.Registry.ActiveKey() {
			callCtx, cancel := engine.callContext(ctx)
			defer cancel()
			if err := engine.Sync.LoadHistory(callCtx, key); err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
		}
		printTranscript(key, engine.Cache.Messages(key))
		return nil
	})
}

func runSessionRename(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
		key, label := args[0], args[1]
		callCtx, cancel := engine.callContext(ctx)
		defer cancel()
		err := engine.Sync.PatchSession(callCtx, gatewayclient.PatchParams{
			SessionKey: key,
			Label:      &label,
		})
		if err != nil {
			return fmt.Errorf("failed to rename session: %w", err)
		}
		fmt.Printf("Session %q is now labeled %q.\n", key, label)
		return nil
	})
}

func runSessionArchive(archived bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
			key := args[0]
			callCtx, cancel := engine.callContext(ctx)
			defer cancel()
			err := engine.Sync.PatchSession(callCtx, gatewayclient.PatchParams{
				SessionKey: key,
				Archived:   &archived,
			})
			if err != nil {
				return fmt.Errorf("failed to update session: %w", err)
			}
			if archived {
				fmt.Printf("Session %q archived.\n", key)
			} else {
				fmt.Printf("Session %q restored.\n", key)
			}
			return nil
		})
	}
}
