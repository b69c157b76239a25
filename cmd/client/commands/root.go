package commands

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"e2e_messaging/internal/app"
	"e2e_messaging/internal/config"
	"e2e_messaging/internal/utils/log"
)

var (
	configPath string
	username   string

	cfg    *config.Config
	appCtx *app.App
)

func Execute() error {
	root := &cobra.Command{
		Use:          "client",
		Short:        "End-to-end encrypted messaging client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return errors.New("--user is required")
			}

			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if err := log.Init(log.Config{Development: cfg.Logger.Development, Level: cfg.Logger.Level}); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Storage.Dir, 0o700); err != nil {
				return err
			}

			appCtx, err = app.New(cmd.Context(), cfg, username)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			defer log.Sync()
			if appCtx == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := appCtx.Close(ctx); err != nil {
				log.Error("close failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("MESSAGING_CONFIG"), "path to a yaml config file")
	root.PersistentFlags().StringVarP(&username, "user", "u", "", "local user id")

	root.AddCommand(
		registerCmd(),
		sendCmd(),
		decryptCmd(),
		conversationsCmd(),
		messagesCmd(),
		settingsCmd(),
		resetCmd(),
		serveCmd(),
	)
	return root.Execute()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
