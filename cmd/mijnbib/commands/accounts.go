package commands

import (
	"mijnbib/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(accountsCmd)
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Lists the library memberships of the profile.",
	Run: func(cmd *cobra.Command, args []string) {
		client, _ := createClient(cmd.Context())

		accounts, err := client.Accounts(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to fetch memberships", err)
		}
		renderAccounts(accounts)
	},
}
