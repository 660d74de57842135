package commands

import (
	"fmt"
	"strings"

	"mijnbib/lib/serviceutil"

	"github.com/spf13/cobra"
)

var (
	extendAccount *string
	extendIds     *string
)

func init() {
	extendAccount = extendCmd.Flags().String("account", "", "The membership id or (fuzzy) library name holding the loans.")
	extendIds = extendCmd.Flags().String("ids", "", "Comma-separated loan ids to extend, as listed by the loans command.")
	rootCmd.AddCommand(extendCmd)
}

var extendCmd = &cobra.Command{
	Use:   "extend --account <id or name> --ids <id,id,...>",
	Short: "Extends loans and prints the refreshed loan listing.",
	Run: func(cmd *cobra.Command, args []string) {
		ids := strings.Split(*extendIds, ",")
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
		if len(ids) == 0 || ids[0] == "" {
			serviceutil.Fatal("nothing to extend", fmt.Errorf("--ids is required"))
		}

		client, cfg := createClient(cmd.Context())
		account, err := resolveAccount(cmd.Context(), client, *extendAccount, cfg)
		if err != nil {
			serviceutil.Fatal("failed to resolve membership", err)
		}

		refreshed, err := client.ExtendLoans(cmd.Context(), account.Id, ids)
		if err != nil {
			serviceutil.Fatal("failed to extend loans", err)
		}
		renderLoans(refreshed)
	},
}
