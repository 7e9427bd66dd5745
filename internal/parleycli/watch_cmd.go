// watch_cmd.go — parley watch: follow live session and history updates
// until interrupted.
package parleycli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-dev/parley/internal/pushsync"
	"github.com/parley-dev/parley/libdispatch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live updates from the gateway (Ctrl-C to stop).",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *Engine) error {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		line := func(kind string) func(topic string, payload any) {
			return func(topic string, payload any) {
				key, _ := payload.(string)
				if key == "" {
					key = "*"
				}
				fmt.Printf("%s  %-8s %s\n", time.Now().Format("15:04:05"), kind, key)
			}
		}
		subs := []libdispatch.Subscription{
			engine.Dispatcher.Subscribe(pushsync.TopicSessionsChanged, line("sessions")),
			engine.Dispatcher.Subscribe(pushsync.TopicHistoryChanged, line("history")),
			engine.Dispatcher.Subscribe(pushsync.TopicStateChanged, line("state")),
		}
		defer func() {
			for _, s := range subs {
				s.Unsubscribe()
			}
		}()

		fmt.Fprintf(os.Stderr, "watching %d sessions (active: %s)\n",
			len(engine.Registry.List()), engine.Registry.ActiveKey())
		<-ctx.Done()
		return nil
	})
}
