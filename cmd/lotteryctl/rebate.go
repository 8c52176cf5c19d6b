package main

import (
	"context"
	"fmt"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/spf13/cobra"
)

func newRebateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebate",
		Short: "Inspect and replay rebate distribution",
	}

	replay := &cobra.Command{
		Use:   "replay PERIOD...",
		Short: "Re-enqueue rebate jobs for settled turnover without a rebate record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			periods, err := parsePeriods(args)
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				var errs types.MultiError
				for _, p := range periods {
					n, err := e.Settlement.EnqueuePendingRebates(ctx, p)
					errs.Add(err)
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d job(s) enqueued\n", p, n)
				}
				return errs.ErrOrNil()
			})
		},
	}

	show := &cobra.Command{
		Use:   "show PERIOD",
		Short: "Print the commission payments of a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := types.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				payments, err := e.Store.ListCommissions(ctx, period)
				if err != nil {
					return err
				}
				return printJSON(cmd, payments)
			})
		},
	}

	cmd.AddCommand(replay, show)
	return cmd
}

func parsePeriods(args []string) ([]types.Period, error) {
	periods := make([]types.Period, 0, len(args))
	for _, a := range args {
		p, err := types.ParsePeriod(a)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, nil
}
