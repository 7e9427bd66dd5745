// send.go implements the default send pipeline: resolve input, start
// the engine, submit, and wait for the reply.
package parleycli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-dev/parley/chatsubmitservice"
	"github.com/parley-dev/parley/internal/pushsync"
	"github.com/parley-dev/parley/sessiontype"
)

func runSend(cmd *cobra.Command, args []string) error {
	flags := cmd.Root().PersistentFlags()
	input, _ := flags.GetString("input")
	if input == "" && len(args) > 0 {
		input = strings.Join(args, " ")
	}
	if input == "" {
		// stdin only when piped, so a bare "parley send" shows help.
		if fi, err := os.Stdin.Stat(); err == nil && (fi.Mode()&os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			input = strings.TrimSpace(string(data))
		}
	}
	if input == "" {
		return cmd.Help()
	}

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

	sessionKey, _ := flags.GetString("session")
	if sessionKey == "" {
		sessionKey = engine.Registry.ActiveKey()
	}

	callCtx, callCancel := engine.callContext(ctx)
	defer callCancel()
	if err := engine.Submit.Submit(callCtx, sessionKey, chatsubmitservice.Input{
		Text:  input,
		Model: engine.Model,
	}); err != nil {
		return err
	}

	if strings.HasPrefix(input, "/") {
		if strings.TrimSpace(input) == "/context" {
			if session, ok := engine.Registry.Get(sessionKey); ok {
				fmt.Printf("%d tokens of %d in context\n", session.SessionTokens, session.ContextWindow)
			}
		}
		printNotices(engine, sessionKey)
		return nil
	}
	if engine.Submit.TrayVisible(sessionKey) {
		fmt.Printf("queued (%d pending); the agent is still replying\n", len(engine.Submit.QueuedItems(sessionKey)))
		return nil
	}
	return waitForReply(ctx, engine, sessionKey)
}

// waitForReply blocks until the agent finished replying (or the timeout
// passes) and prints the streamed reply as the final transcript entry.
func waitForReply(ctx context.Context, engine *Engine, sessionKey string) error {
	changed := make(chan struct{}, 1)
	notify := func(topic string, payload any) {
		if key, ok := payload.(string); ok && key != sessionKey {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	stateSub := engine.Dispatcher.Subscribe(pushsync.TopicStateChanged, notify)
	defer stateSub.Unsubscribe()
	historySub := engine.Dispatcher.Subscribe(pushsync.TopicHistoryChanged, notify)
	defer historySub.Unsubscribe()

	deadline := time.NewTimer(engine.Timeout)
	defer deadline.Stop()

	sawReply := false
	for {
		if session, ok := engine.Registry.Get(sessionKey); ok {
			if session.Replying {
				sawReply = true
			} else if sawReply {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			fmt.Fprintln(os.Stderr, "no reply yet; run 'parley session show' later")
			return nil
		case <-changed:
		}
	}

	for _, msg := range lastAssistantRun(engine.Cache.Messages(sessionKey)) {
		fmt.Println(msg.Text())
	}
	return nil
}

// lastAssistantRun returns the trailing assistant messages of a
// transcript (the reply to the last user turn).
func lastAssistantRun(messages []sessiontype.Message) []sessiontype.Message {
	end := len(messages)
	start := end
	for start > 0 && messages[start-1].Role == sessiontype.RoleAssistant {
		start--
	}
	return messages[start:end]
}

// printNotices prints the trailing local notices a slash command left
// in the transcript.
func printNotices(engine *Engine, sessionKey string) {
	messages := engine.Cache.Messages(sessionKey)
	start := len(messages)
	for start > 0 && messages[start-1].Role == sessiontype.RoleNotice {
		start--
	}
	for _, msg := range messages[start:] {
		fmt.Println(msg.Text())
	}
}
