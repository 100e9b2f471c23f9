/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/recipesnap/apiserver/config"
	"github.com/recipesnap/apiserver/internal/logging"
	"github.com/recipesnap/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the recipesnap backend server",
	Long: `Starts the recipesnap backend server. It stops gracefully on SIGINT or
SIGTERM. Usage:

	recipesnap server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, log)
		if err != nil {
			log.WithError(err).Error("failed to start server")
			return fmt.Errorf("start server: %w", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.WithError(err).Error("server error")
			return err
		}
		log.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
