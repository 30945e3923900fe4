package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iota-uz/wholesale/modules/wholesale/handlers"
	"github.com/iota-uz/wholesale/pkg/outbox"
)

type relayResult struct {
	Delivered int   `json:"delivered"`
	Pruned    int64 `json:"pruned"`
}

func newRelayCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Deliver job events from the outbox table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			opts := a.conf.Outbox
			relay, err := outbox.NewRelay(a.pool, opts.Identifier, handlers.JobEventLogger(a.logger), outbox.RelayOptions{
				PollInterval: opts.PollInterval,
				BatchSize:    opts.BatchSize,
				MaxAttempts:  opts.MaxAttempts,
				Retention:    opts.Retention,
				Logger:       a.logger,
			})
			if err != nil {
				return withCode(exitUsage, err)
			}

			if once {
				delivered, err := relay.Drain(ctx)
				if err != nil {
					return withCode(exitDB, err)
				}
				pruned, err := relay.Prune(ctx)
				if err != nil {
					return withCode(exitDB, err)
				}
				return writeJSONLine(cmd.OutOrStdout(), relayResult{Delivered: delivered, Pruned: pruned})
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.logger.WithField("table", outbox.TableLabel(opts.Identifier)).Info("relay started")
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return withCode(exitDB, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Drain due events once and exit")
	return cmd
}
