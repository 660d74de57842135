package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verifies that the configured credentials can open a session.",
	Run: func(cmd *cobra.Command, args []string) {
		client, _ := createClient(cmd.Context())
		fmt.Println("login ok, session is", client.State())
	},
}
