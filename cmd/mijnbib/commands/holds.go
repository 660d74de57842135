package commands

import (
	"mijnbib/lib/serviceutil"

	"github.com/spf13/cobra"
)

var holdsAccount *string

func init() {
	holdsAccount = holdsCmd.Flags().String("account", "", "The membership id or (fuzzy) library name to list holds for.")
	rootCmd.AddCommand(holdsCmd)
}

var holdsCmd = &cobra.Command{
	Use:   "holds [--account <id or name>]",
	Short: "Lists the open reservations of a membership.",
	Run: func(cmd *cobra.Command, args []string) {
		client, cfg := createClient(cmd.Context())

		account, err := resolveAccount(cmd.Context(), client, *holdsAccount, cfg)
		if err != nil {
			serviceutil.Fatal("failed to resolve membership", err)
		}
		holds, err := client.Reservations(cmd.Context(), account.Id)
		if err != nil {
			serviceutil.Fatal("failed to fetch holds", err)
		}
		renderHolds(holds)
	},
}
