package commands

import (
	"fmt"

	"mijnbib/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(allCmd)
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Lists every membership with its loans and holds.",
	Run: func(cmd *cobra.Command, args []string) {
		client, _ := createClient(cmd.Context())

		info, err := client.AllInfo(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to fetch profile info", err)
		}
		if *jsonOutput {
			printJson(info)
			return
		}
		for _, entry := range info {
			fmt.Printf("%s (%s)\n", entry.Account.Name, entry.Account.Id)
			renderLoans(entry.Loans)
			renderHolds(entry.Reservations)
		}
	},
}
