package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/teleecho/internal/store"
)

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a connection",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, err := openStore()
			if err != nil {
				fail("%v", err)
			}
			name := store.NormalizeName(args[0])
			if err := st.Remove(name); err != nil {
				fail("%v", err)
			}
			fmt.Printf("connection %q removed\n", name)
		},
	}
}
