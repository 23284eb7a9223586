// Package cmd wires the CLI: the bare invocation relays stdin, subcommands
// manage connections.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/teleecho/internal/relay"
	"github.com/nextlevelbuilder/teleecho/internal/store"
	"github.com/nextlevelbuilder/teleecho/internal/store/file"
	"github.com/nextlevelbuilder/teleecho/internal/transport/telegram"
)

var (
	flagConfig        string
	flagVerbose       bool
	flagStrict        bool
	flagMaxLines      int
	flagFlushInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "teleecho [connection]",
	Short: "Forward standard input to a paired Telegram chat",
	Long: `teleecho relays the output of any command to a Telegram chat:

    long-running-job | teleecho [connection]

Lines are batched and delivered in order through the bot token bound to the
named connection (or the sole configured connection when none is named).
Register and pair a connection first with "teleecho new".

Delivery failures are retried with backoff; a batch that still cannot be
sent is logged and skipped by default, or aborts the relay with --strict.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Run: runRelay,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "",
		"path to the connection store (default ~/.teleecho/connections.json)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")
	rootCmd.Flags().BoolVar(&flagStrict, "strict", false,
		"abort the relay when a batch cannot be delivered")
	rootCmd.Flags().IntVar(&flagMaxLines, "max-lines", 0,
		"lines per batch before a flush (default 20)")
	rootCmd.Flags().DurationVar(&flagFlushInterval, "flush-interval", 0,
		"max batch age before a flush (default 1s)")

	rootCmd.AddCommand(newCmd())
	rootCmd.AddCommand(pairCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(removeCmd())
}

func setupLogging() {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// fail prints the error and exits non-zero.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func storePath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".teleecho", "connections.json"), nil
}

func openStore() (*file.ConnectionStore, error) {
	path, err := storePath()
	if err != nil {
		return nil, err
	}
	return file.NewConnectionStore(path)
}

// resolveConnection picks the named record, or the sole default one.
func resolveConnection(st store.ConnectionStore, args []string) (*store.ConnectionRecord, error) {
	if len(args) == 1 {
		return st.Get(store.NormalizeName(args[0]))
	}
	return st.GetDefault()
}

func runRelay(cmd *cobra.Command, args []string) {
	st, err := openStore()
	if err != nil {
		fail("%v", err)
	}
	rec, err := resolveConnection(st, args)
	if err != nil {
		fail("%v", err)
	}
	if !rec.Active() {
		fail("%v: run \"teleecho pair %s\" first", store.ErrConnectionNotPaired, rec.Name)
	}

	tg, err := telegram.New(rec.Token)
	if err != nil {
		fail("%v", err)
	}

	cfg := relay.DefaultConfig()
	cfg.Strict = flagStrict
	if flagMaxLines > 0 {
		cfg.MaxLines = flagMaxLines
	}
	if flagFlushInterval > 0 {
		cfg.MaxAge = flagFlushInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := relay.NewEngine(tg, rec.ChatID, cfg)
	stats, err := engine.Run(ctx, os.Stdin)

	slog.Info("relay finished",
		"connection", rec.Name,
		"lines", stats.Lines,
		"batches", stats.Batches,
		"failed", stats.Failed,
	)

	// An interrupt after the final flush counts as a clean stop.
	if err != nil && !errors.Is(err, context.Canceled) {
		fail("relay: %v", err)
	}
}
