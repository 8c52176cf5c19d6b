package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/internal/worker"
	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/fystack/draw-engine/pkg/common/types"
)

// --- CLI definitions --- //

type CLI struct {
	Run    RunCmd    `cmd:"" help:"Run the draw scheduler, settlement sweeper and rebate consumer."`
	Draw   DrawCmd   `cmd:"" help:"Draw one period."`
	Settle SettleCmd `cmd:"" help:"Settle one drawn period. Safe to repeat."`
	Record RecordCmd `cmd:"" help:"Print the settlement record of a period."`
}

type Globals struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config" type:"path"`
	Debug      bool   `help:"Enable debug logs." name:"debug"`
}

type RunCmd struct {
	Globals `embed:""`
}

type DrawCmd struct {
	Globals `embed:""`

	Period    types.Period          `arg:"" optional:"" help:"Period to draw (YYYYMMDDNNN). Defaults to the period that closed last."`
	Scope     enum.ControlScope     `help:"Override directive scope (global, member, agent_line)." name:"scope"`
	Target    string                `help:"Override directive target member or agent." name:"target"`
	Direction enum.ControlDirection `help:"Override directive direction (win, loss)." name:"direction" default:"win"`
	Strength  int                   `help:"Override directive strength, 0-100." name:"strength"`
}

type SettleCmd struct {
	Globals `embed:""`

	Period types.Period `arg:"" optional:"" help:"Period to settle (YYYYMMDDNNN). Defaults to the period that closed last."`
}

type RecordCmd struct {
	Globals `embed:""`

	Period types.Period `arg:"" help:"Period (YYYYMMDDNNN)."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("engine"),
		kong.Description("PK10 draw, settlement and rebate engine."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func (c *RunCmd) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	manager := worker.NewManagerFromConfig(ctx, e, e.Config.Worker)
	manager.Start()

	logger.Info("Engine is running... Press Ctrl+C to stop")
	waitForShutdown()
	cancel()
	manager.Stop()
	logger.Info("Engine stopped")
	return nil
}

func (c *DrawCmd) Run() error {
	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	var override *types.ControlDirective
	if c.Scope != "" {
		override = &types.ControlDirective{
			ID:        "cli",
			Scope:     c.Scope,
			TargetID:  c.Target,
			Direction: c.Direction,
			Strength:  c.Strength,
			Active:    true,
		}
	}
	result, err := e.TriggerDraw(ctx, lastClosed(e, c.Period), override)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (c *SettleCmd) Run() error {
	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.Settle(ctx, lastClosed(e, c.Period))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (c *RecordCmd) Run() error {
	ctx := context.Background()
	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	rec, err := e.GetSettlementRecord(ctx, c.Period)
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func (g Globals) open(ctx context.Context) (*engine.Engine, error) {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if g.Debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	logger.Info("Config loaded", "path", g.ConfigPath, "environment", cfg.Environment)

	return engine.New(ctx, *cfg)
}

func lastClosed(e *engine.Engine, p types.Period) types.Period {
	if !p.IsZero() {
		return p
	}
	return e.Clock.Previous(e.Clock.At(time.Now()))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func waitForShutdown() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
