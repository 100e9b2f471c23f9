/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/recipesnap/apiserver/config"
	"github.com/recipesnap/apiserver/internal/logging"
	"github.com/recipesnap/apiserver/internal/mq"
	"github.com/recipesnap/apiserver/types"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect recipe events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print recipe events as JSON lines until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if backend == nil {
			return errors.New("MQ_BACKEND is none; nothing to tail")
		}
		defer backend.Close()

		enc := json.NewEncoder(os.Stdout)
		err = mq.SubscribeRecipeEvents(ctx, backend, cfg.MQ.RecipeChannel,
			func(_ context.Context, event types.RecipeEvent) error {
				return enc.Encode(event)
			},
			func(msg mq.Message, err error) {
				log.WithError(err).WithField("message_id", msg.ID).Warn("skipping undecodable event")
			},
		)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
