package commands

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"e2e_messaging/internal/model"
)

// decrypt [file]: read an encrypted message (stdin when no file) and print the plaintext.
func decryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [file]",
		Short: "Decrypt a message produced by send",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var em model.EncryptedMessage
			if err := json.NewDecoder(r).Decode(&em); err != nil {
				return err
			}
			dm, err := appCtx.Messaging.DecryptMessage(cmd.Context(), &em)
			if err != nil {
				return err
			}
			return printJSON(cmd, dm)
		},
	}
}
