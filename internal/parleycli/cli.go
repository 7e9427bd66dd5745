// cli.go holds the parley CLI entrypoint (Main), default constants,
// flags, and merge logic.
package parleycli

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultAccountID = "default"

const (
	defaultResyncInterval   = 30 * time.Second
	defaultSnapshotInterval = time.Minute
	defaultTimeout          = 30 * time.Second
)

// reservedSubcommands are first-arg names that must not be treated as
// send input (Cobra or our subcommands).
var reservedSubcommands = map[string]bool{
	"init": true, "send": true, "session": true, "chat": true,
	"watch": true, "help": true, "completion": true,
}

// Main runs the parley CLI: a subcommand, or send (default) with
// positional input.
func Main() {
	args := os.Args[1:]
	onlyHelp := len(args) == 0
	if !onlyHelp {
		allHelp := true
		for _, a := range args {
			if a != "--help" && a != "-h" {
				allHelp = false
				break
			}
		}
		onlyHelp = allHelp
	}
	if !onlyHelp && !firstNonFlagIsReserved(args) {
		rootCmd.SetArgs(append([]string{"send"}, args...))
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// firstNonFlagIsReserved scans args, skipping flags and their values,
// and returns true if the first positional argument is a reserved
// subcommand name.
func firstNonFlagIsReserved(args []string) bool {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			if i+1 < len(args) {
				return reservedSubcommands[args[i+1]]
			}
			return false
		}
		if len(a) > 0 && a[0] == '-' {
			// Flags declared with values consume the next arg unless
			// written as --flag=value.
			if !hasInlineValue(a) && flagTakesValue(a) {
				i++
			}
			continue
		}
		return reservedSubcommands[a]
	}
	return false
}

func hasInlineValue(flag string) bool {
	for _, c := range flag {
		if c == '=' {
			return true
		}
	}
	return false
}

// flagTakesValue reports whether the root flag named by arg consumes a
// separate value argument. Unknown flags are assumed to take one.
func flagTakesValue(arg string) bool {
	name := arg
	for len(name) > 0 && name[0] == '-' {
		name = name[1:]
	}
	f := rootCmd.PersistentFlags().Lookup(name)
	if f == nil {
		return true
	}
	return f.Value.Type() != "bool"
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Gateway chat client: sessions, history, and live sync from the terminal.",
	Long: `Parley is a terminal client for a conversational-agent gateway. It keeps a
local mirror of your sessions and transcripts, synchronized over the gateway's
message bus, and survives restarts through a local SQLite state database.

  Quickstart:
    parley init                      # scaffold .parley/ with config
    parley hello there               # send to the active session
    parley session list              # list sessions (* = active)
    parley session switch work       # change the active session
    parley watch                     # follow live updates

  Slash commands pass through to the gateway:
    parley /clear                    # wipe the active session's history
    parley /compact                  # ask the agent to compact context
    parley /context                  # show token usage
    parley /abort                    # stop the current reply`,
	SilenceUsage: true,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to the active session (default when no subcommand is given).",
	Long:  `Send a message. Pass input as positional args (e.g. parley hi) or via --input.`,
	Args:  cobra.ArbitraryArgs,
	RunE:  runSend,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .parley/ (config).",
	Long:  `Create .parley/config.yaml. Use --force to overwrite an existing file.`,
	RunE:  runInitCmd,
}

func init() {
	// Send flags on root so "parley --input x" and "parley hi" both work.
	f := rootCmd.PersistentFlags()
	f.String("nats", "", "NATS server URL (default: in-process bus, or nats_url from config)")
	f.String("db", "", "SQLite database path (default: .parley/state.db)")
	f.String("kv", "", "Valkey address for warm-start snapshots (optional)")
	f.String("account", "", "Account ID used for persisted rows")
	f.String("model", "", "Model to request for sent messages")
	f.String("session", "", "Session key to act on (default: the active session)")
	f.String("input", "", "Message input (default: positional args or stdin if piped)")
	f.Duration("timeout", defaultTimeout, "Maximum time for one gateway call (e.g., 30s, 2m)")
	f.Bool("trace", false, "Enable operation telemetry on stderr")

	rootCmd.AddCommand(initCmd, sendCmd, sessionCmd, chatCmd, watchCmd)

	rootCmd.InitDefaultHelpCmd() // so "parley help" is handled by Cobra, not passed as send input
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing files")
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	RunInit(force)
	return nil
}

// resolveFlagValues reads the root flags that participate in config
// resolution.
func resolveFlagValues(cmd *cobra.Command) flagValues {
	flags := cmd.Root().PersistentFlags()
	nats, _ := flags.GetString("nats")
	db, _ := flags.GetString("db")
	kv, _ := flags.GetString("kv")
	account, _ := flags.GetString("account")
	model, _ := flags.GetString("model")
	timeout, _ := flags.GetDuration("timeout")
	trace, _ := flags.GetBool("trace")
	return flagValues{
		NATSURL:    nats,
		DB:         db,
		KVAddr:     kv,
		Account:    account,
		Model:      model,
		Timeout:    timeout,
		TimeoutSet: flags.Changed("timeout"),
		Tracing:    trace,
		TracingSet: flags.Changed("trace"),
	}
}

// loadOpts resolves the effective options for a command invocation.
func loadOpts(cmd *cobra.Command) (runOpts, error) {
	cfg, configPath, err := loadLocalConfig()
	if err != nil {
		return runOpts{}, err
	}
	return resolveOptions(cfg, configPath, resolveFlagValues(cmd)), nil
}
