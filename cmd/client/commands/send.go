package commands

import (
	"github.com/spf13/cobra"

	"e2e_messaging/internal/model"
)

// send <peer> <message>: encrypt a message and print the wire form.
func sendCmd() *cobra.Command {
	var msgType string
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt a message for a peer and print it as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			em, err := appCtx.Messaging.SendMessage(cmd.Context(), model.DecryptedMessage{
				RecipientID: args[0],
				Content:     args[1],
				Type:        msgType,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, em)
		},
	}
	cmd.Flags().StringVar(&msgType, "type", "", "message type (default text)")
	return cmd
}
