package main

import (
	"context"
	"fmt"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/spf13/cobra"
)

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and verify balance ledgers",
	}

	var kind string
	verify := &cobra.Command{
		Use:   "verify ID...",
		Short: "Replay ledgers and compare them with stored balances",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := enum.ActorKind(kind)
			if actor != enum.ActorMember && actor != enum.ActorAgent {
				return fmt.Errorf("unknown actor kind %q", kind)
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				var errs types.MultiError
				for _, id := range args {
					balance, err := store.VerifyLedger(ctx, e.Store, actor, id)
					if err != nil {
						errs.Add(fmt.Errorf("%s %s: %w", actor, id, err))
						fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s %s: %v\n", actor, id, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "ok   %s %s balance=%s\n", actor, id, balance.StringFixed(2))
				}
				return errs.ErrOrNil()
			})
		},
	}
	verify.Flags().StringVar(&kind, "kind", string(enum.ActorMember), "actor kind: member or agent")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print an actor's ledger entries in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				entries, err := e.Store.Ledger(ctx, enum.ActorKind(kind), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			})
		},
	}
	show.Flags().StringVar(&kind, "kind", string(enum.ActorMember), "actor kind: member or agent")

	cmd.AddCommand(verify, show)
	return cmd
}
