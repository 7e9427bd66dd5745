// output.go — human-friendly printing for sessions and transcripts.
package parleycli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/parley-dev/parley/sessiontype"
)

// setupLogging configures the process logger: quiet by default, debug
// on stderr when tracing is enabled.
func setupLogging(opts runOpts) {
	level := slog.LevelWarn
	if opts.EffectiveTracing {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// printSessions prints one line per session, the active one starred.
func printSessions(sessions []sessiontype.Session, activeKey string) {
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return
	}
	for _, s := range sessions {
		marker := " "
		if s.Key == activeKey {
			marker = "*"
		}
		label := s.Label
		if label == "" {
			label = s.Key
		}
		unread := s.MessageCount - s.LastSeenMessageCount
		if s.LocalUnread > unread {
			unread = s.LocalUnread
		}
		suffix := ""
		if unread > 0 {
			suffix = fmt.Sprintf("  (%d unread)", unread)
		}
		if s.Archived {
			suffix += "  [archived]"
		}
		fmt.Printf("%s %-20s %4d msgs  %s%s\n", marker, label, s.MessageCount, formatAge(s.UpdatedAt), suffix)
	}
}

// printTranscript prints a session's conversation with role prefixes.
func printTranscript(key string, messages []sessiontype.Message) {
	if len(messages) == 0 {
		fmt.Printf("Session %q has no messages.\n", key)
		return
	}
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		prefix := strings.ToUpper(string(msg.Role))
		fmt.Printf("[%s] %s\n", prefix, text)
	}
}

// formatAge renders a unix-ms timestamp as a compact relative age.
func formatAge(unixMs int64) string {
	if unixMs == 0 {
		return ""
	}
	d := time.Since(time.UnixMilli(unixMs))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
