package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// register: make sure the local account and its prekeys exist.
func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create the local account and publish its prekeys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := appCtx.Accounts.Get(cmd.Context(), username)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s with %d one-time prekeys\n", acc.Name, len(acc.OneTimePreKeys))
			return nil
		},
	}
}
