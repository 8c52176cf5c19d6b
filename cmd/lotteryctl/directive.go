package main

import (
	"context"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newDirectiveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directive",
		Short: "Manage outcome control directives",
	}

	var d types.ControlDirective
	var scope, direction, from, to string
	add := &cobra.Command{
		Use:   "add",
		Short: "Store a control directive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d.ID = uuid.NewString()
			d.Scope = enum.ControlScope(scope)
			d.Direction = enum.ControlDirection(direction)
			var err error
			if from != "" {
				if d.From, err = types.ParsePeriod(from); err != nil {
					return err
				}
			}
			if to != "" {
				if d.To, err = types.ParsePeriod(to); err != nil {
					return err
				}
			}
			if err := d.Validate(); err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.Draw.SaveDirective(ctx, d); err != nil {
					return err
				}
				return printJSON(cmd, d)
			})
		},
	}
	add.Flags().StringVar(&scope, "scope", string(enum.ControlScopeGlobal), "global, member or agent_line")
	add.Flags().StringVar(&d.TargetID, "target", "", "member or agent id for scoped directives")
	add.Flags().StringVar(&direction, "direction", string(enum.ControlDirectionWin), "win or loss")
	add.Flags().IntVar(&d.Strength, "strength", 0, "strength 0-100")
	add.Flags().StringVar(&from, "from", "", "first period covered (YYYYMMDDNNN)")
	add.Flags().StringVar(&to, "to", "", "last period covered (YYYYMMDDNNN)")
	add.Flags().BoolVar(&d.Active, "active", false, "activate immediately, deactivating any other directive")

	setActive := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
					return e.Draw.SetDirectiveActive(ctx, args[0], active)
				})
			},
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored directives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				ds, err := e.Store.ListDirectives(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, ds)
			})
		},
	}

	cmd.AddCommand(
		add,
		setActive("activate", "Activate a directive", true),
		setActive("deactivate", "Deactivate a directive", false),
		list,
	)
	return cmd
}
