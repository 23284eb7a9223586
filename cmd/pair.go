package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/teleecho/internal/pairing"
	"github.com/nextlevelbuilder/teleecho/internal/store"
	"github.com/nextlevelbuilder/teleecho/internal/transport/telegram"
)

func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair <name>",
		Short: "Run a pairing session for a pending connection",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, err := openStore()
			if err != nil {
				fail("%v", err)
			}
			rec, err := st.Get(store.NormalizeName(args[0]))
			if err != nil {
				fail("%v", err)
			}
			if err := runPairing(st, rec); err != nil {
				fail("pairing: %v", err)
			}
			fmt.Printf("connection %q is ready\n", rec.Name)
		},
	}
}

// runPairing validates the token, shows the verification code, and waits
// for the matching message.
func runPairing(st store.ConnectionStore, rec *store.ConnectionRecord) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tg, err := telegram.New(rec.Token)
	if err != nil {
		return fmt.Errorf("%w: %v", pairing.ErrPairingFailed, err)
	}
	botName, err := tg.BotName(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", pairing.ErrPairingFailed, err)
	}

	svc := pairing.NewService(st, tg, pairing.DefaultConfig())
	return svc.Pair(ctx, rec, func(code string) {
		fmt.Printf("send this code to @%s from the chat that should receive output:\n\n    %s\n\n", botName, code)
	})
}
