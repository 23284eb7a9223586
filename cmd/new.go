package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/teleecho/internal/pairing"
	"github.com/nextlevelbuilder/teleecho/internal/store"
)

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <token> <name>",
		Short: "Register a bot token as a named connection and pair it",
		Long: `Registers the bot token under the given name and immediately starts a
pairing session: send the displayed code to the bot from the chat that
should receive relayed output.`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			token := args[0]
			name := store.NormalizeName(args[1])
			if name == "" {
				fail("connection name %q is empty after normalization", args[1])
			}

			st, err := openStore()
			if err != nil {
				fail("%v", err)
			}
			rec, err := st.Create(name, token)
			if err != nil {
				fail("create connection: %v", err)
			}
			fmt.Printf("connection %q created\n", name)

			if err := runPairing(st, rec); err != nil {
				if errors.Is(err, pairing.ErrPairingTimedOut) {
					fmt.Fprintf(os.Stderr, "pairing timed out; the connection was kept, run \"teleecho pair %s\" to retry\n", name)
					os.Exit(1)
				}
				fail("pairing: %v", err)
			}
			fmt.Printf("connection %q is ready\n", name)
		},
	}
}
