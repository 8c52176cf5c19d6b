package main

import (
	"context"
	"fmt"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newAdjustCmd(opts *rootOptions) *cobra.Command {
	var kind, reason string
	cmd := &cobra.Command{
		Use:   "adjust ID AMOUNT",
		Short: "Manually adjust a balance; negative amounts deduct",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				var entry types.LedgerEntry
				switch enum.ActorKind(kind) {
				case enum.ActorMember:
					if amount.IsNegative() {
						entry, err = e.Wallet.Deduct(ctx, args[0], amount.Neg(), reason)
					} else {
						entry, err = e.Wallet.Credit(ctx, args[0], amount, reason)
					}
				case enum.ActorAgent:
					entry, err = e.Wallet.AdjustAgent(ctx, args[0], amount, reason)
				default:
					return fmt.Errorf("unknown actor kind %q", kind)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, entry)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(enum.ActorMember), "actor kind: member or agent")
	cmd.Flags().StringVar(&reason, "reason", "", "reference stored on the ledger entry")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newMemberCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
	}

	var m types.Member
	var balance string
	create := &cobra.Command{
		Use:   "create ID",
		Short: "Create a member under an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.ID = args[0]
			b, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("balance: %w", err)
			}
			m.Balance = b
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				return e.Wallet.CreateMember(ctx, m)
			})
		},
	}
	create.Flags().StringVar(&m.AgentID, "agent", "", "direct agent id")
	create.Flags().StringVar(&m.Market, "market", "", "market tier; empty uses the default market")
	create.Flags().StringVar(&balance, "balance", "0", "opening balance")
	_ = create.MarkFlagRequired("agent")

	chain := &cobra.Command{
		Use:   "chain ID",
		Short: "Print a member's agent chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				c, err := e.Wallet.GetAgentChain(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, c)
			})
		},
	}

	cmd.AddCommand(create, chain)
	return cmd
}

func newAgentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the agent tree",
	}

	var a types.Agent
	var mode, rate string
	upsert := &cobra.Command{
		Use:   "upsert ID",
		Short: "Create or update an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.ID = args[0]
			a.Mode = enum.RebateMode(mode)
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("rate: %w", err)
			}
			a.RebateRate = r
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				return e.Wallet.UpsertAgent(ctx, a)
			})
		},
	}
	upsert.Flags().StringVar(&a.ParentID, "parent", "", "parent agent id; empty for a root agent")
	upsert.Flags().StringVar(&a.Market, "market", "", "market tier")
	upsert.Flags().StringVar(&mode, "mode", string(enum.RebateModePassThrough),
		"rebate mode: take_all_remaining, take_fixed_percentage or pass_through")
	upsert.Flags().StringVar(&rate, "rate", "0", "rebate rate as a fraction of turnover")

	cmd.AddCommand(upsert)
	return cmd
}
