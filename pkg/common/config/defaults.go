package config

import (
	"time"

	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/fystack/draw-engine/pkg/common/enum"
)

// Defaults returns the configuration used for any field a file leaves empty.
func Defaults() Config {
	return Config{
		Environment: constant.EnvDevelopment,
		LogLevel:    "info",
		Engine: EngineCfg{
			DrawInterval:       90 * time.Second,
			Timezone:           "Asia/Taipei",
			MaxConflictRetries: 5,
			SettleRetry: RetryCfg{
				InitialInterval: 2 * time.Second,
				MaxElapsedTime:  2 * time.Minute,
			},
		},
		Control: ControlCfg{
			Amplification:  6,
			HighSentinel:   10000,
			LowSentinel:    0.0001,
			SnapHigh:       0.95,
			SnapLow:        0.05,
			ContentionStep: 0.2,
			ContentionCap:  2,
			CoverageLimit:  0.9,
			Candidates:     512,
			MaxAttempts:    3,
		},
		Evaluation: EvalCfg{
			DragonTigerTie: enum.TiePolicyLose,
		},
		Rebate: RebateCfg{
			Markets: map[string]float64{
				"A": 0.011,
				"D": 0.041,
			},
			DefaultMarket: "D",
			Consumer:      "rebate",
			MaxDeliver:    5,
			Backoff:       []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute},
		},
		Storage: StorageCfg{
			Type: enum.StoreTypeBadger,
			Badger: BadgerCfg{
				Directory: "data/badger",
				Prefix:    "draw",
			},
		},
		Cache: CacheCfg{
			Type:      enum.CacheTypeMemory,
			TTL:       5 * time.Minute,
			Namespace: "draw",
			Memory: MemoryCacheCfg{
				MaxCost:     64 << 20,
				NumCounters: 1e5,
			},
		},
		NATS: NATSCfg{
			Stream:        "draw_engine",
			SubjectPrefix: "draw_engine.events",
		},
		Worker: WorkerCfg{
			Sweeper: WorkerItem{Interval: time.Minute, Lookback: 50},
		},
	}
}
