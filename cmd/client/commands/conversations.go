package commands

import (
	"github.com/spf13/cobra"

	"e2e_messaging/internal/model"
)

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, appCtx.Messaging.GetConversations())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <participant>...",
		Short: "Create a conversation with the local user and the given participants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := appCtx.Messaging.CreateConversation(cmd.Context(), append([]string{username}, args...))
			if err != nil {
				return err
			}
			return printJSON(cmd, conv)
		},
	})
	return cmd
}

func messagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "List stored messages of a conversation, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, appCtx.Messaging.GetMessages(args[0], limit))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages")
	return cmd
}

func settingsCmd() *cobra.Command {
	var patch model.SettingsPatch
	var ephemeral, notifications, anchoring bool
	cmd := &cobra.Command{
		Use:   "settings <conversation-id>",
		Short: "Update conversation settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("ephemeral") {
				patch.EphemeralEnabled = &ephemeral
			}
			if flags.Changed("notifications") {
				patch.NotificationsEnabled = &notifications
			}
			if flags.Changed("anchoring") {
				patch.AnchoringEnabled = &anchoring
			}
			conv, err := appCtx.Messaging.UpdateConversationSettings(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return printJSON(cmd, conv)
		},
	}
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "enable ephemeral messages")
	cmd.Flags().BoolVar(&notifications, "notifications", true, "enable notifications")
	cmd.Flags().BoolVar(&anchoring, "anchoring", false, "enable anchoring")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <peer>",
		Short: "Drop the session with a peer so the next send starts a new handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appCtx.Messaging.ResetSession(cmd.Context(), args[0])
		},
	}
}
