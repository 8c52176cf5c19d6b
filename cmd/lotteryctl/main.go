package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "lotteryctl",
		Short:        "Operator tooling for the draw engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "configs/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logs")

	root.AddCommand(
		newLedgerCmd(opts),
		newRebateCmd(opts),
		newAdjustCmd(opts),
		newMemberCmd(opts),
		newAgentCmd(opts),
		newDirectiveCmd(opts),
		newDumpCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := logger.ParseLevel(cfg.LogLevel)
	if o.debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		Writer:     os.Stderr,
	})
	return cfg, nil
}

// withEngine opens the engine for the duration of fn.
func (o *rootOptions) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := engine.New(ctx, *cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.Error("Close engine failed", "err", err)
		}
	}()
	return fn(ctx, e)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
