package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go CheckForUpdates()

		return withApp(ctx, func(a *app.App) error {
			a.Logger.Info("Starting content orchestrator",
				zap.String("version", AppVersion),
				zap.String("env", cfg.Server.Env),
				zap.String("storage", cfg.Storage.Driver),
				zap.Bool("publishing", a.Publisher != nil),
			)
			return a.Server(AppVersion).Run(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
