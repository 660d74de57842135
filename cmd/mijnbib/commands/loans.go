package commands

import (
	"mijnbib/lib/serviceutil"

	"github.com/spf13/cobra"
)

var loansAccount *string

func init() {
	loansAccount = loansCmd.Flags().String("account", "", "The membership id or (fuzzy) library name to list loans for.")
	rootCmd.AddCommand(loansCmd)
}

var loansCmd = &cobra.Command{
	Use:   "loans [--account <id or name>]",
	Short: "Lists the active loans of a membership.",
	Run: func(cmd *cobra.Command, args []string) {
		client, cfg := createClient(cmd.Context())

		account, err := resolveAccount(cmd.Context(), client, *loansAccount, cfg)
		if err != nil {
			serviceutil.Fatal("failed to resolve membership", err)
		}
		loans, err := client.Loans(cmd.Context(), account.Id)
		if err != nil {
			serviceutil.Fatal("failed to fetch loans", err)
		}
		renderLoans(loans)
	},
}
