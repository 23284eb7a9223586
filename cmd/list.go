package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all connections",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			st, err := openStore()
			if err != nil {
				fail("%v", err)
			}
			records, err := st.List()
			if err != nil {
				fail("%v", err)
			}
			if len(records) == 0 {
				fmt.Println("no connections configured")
				return
			}
			fmt.Printf("%-24s %-8s %s\n", "NAME", "STATE", "CREATED")
			for _, rec := range records {
				created := time.UnixMilli(rec.CreatedAt).Format("2006-01-02 15:04")
				fmt.Printf("%-24s %-8s %s\n", rec.Name, rec.State, created)
			}
		},
	}
}
