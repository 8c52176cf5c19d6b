package config

import (
	"time"

	"github.com/fystack/draw-engine/pkg/common/enum"
)

type Config struct {
	Environment string     `yaml:"environment" validate:"required,oneof=production development"`
	LogLevel    string     `yaml:"log_level"`
	Engine      EngineCfg  `yaml:"engine" validate:"required"`
	Control     ControlCfg `yaml:"control" validate:"required"`
	Evaluation  EvalCfg    `yaml:"evaluation"`
	Rebate      RebateCfg  `yaml:"rebate" validate:"required"`
	Storage     StorageCfg `yaml:"storage" validate:"required"`
	Cache       CacheCfg   `yaml:"cache" validate:"required"`
	NATS        NATSCfg    `yaml:"nats"`
	Worker      WorkerCfg  `yaml:"worker"`
}

type EngineCfg struct {
	DrawInterval       time.Duration `yaml:"draw_interval" validate:"required,min=87s"`
	Timezone           string        `yaml:"timezone" validate:"required"`
	MaxConflictRetries int           `yaml:"max_conflict_retries" validate:"min=1,max=50"`
	SettleRetry        RetryCfg      `yaml:"settle_retry"`
}

type RetryCfg struct {
	InitialInterval time.Duration `yaml:"initial_interval" validate:"min=0"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" validate:"min=0"`
}

// ControlCfg holds the outcome-bias tuning constants.
type ControlCfg struct {
	Amplification  float64 `yaml:"amplification" validate:"gt=0,lte=20"`
	HighSentinel   float64 `yaml:"high_sentinel" validate:"gt=1"`
	LowSentinel    float64 `yaml:"low_sentinel" validate:"gt=0,lt=1"`
	SnapHigh       float64 `yaml:"snap_high" validate:"gt=0,lte=1"`
	SnapLow        float64 `yaml:"snap_low" validate:"gte=0,lt=1"`
	ContentionStep float64 `yaml:"contention_step" validate:"gte=0"`
	ContentionCap  float64 `yaml:"contention_cap" validate:"gte=1"`
	CoverageLimit  float64 `yaml:"coverage_limit" validate:"gt=0,lte=1"`
	Candidates     int     `yaml:"candidates" validate:"min=16,max=65536"`
	MaxAttempts    int     `yaml:"max_attempts" validate:"min=1,max=100"`
}

type EvalCfg struct {
	DragonTigerTie enum.TiePolicy `yaml:"dragon_tiger_tie" validate:"omitempty,oneof=lose refund"`
}

type RebateCfg struct {
	// Markets maps a market tier to its pool rate as a fraction of turnover.
	Markets       map[string]float64 `yaml:"markets" validate:"required,min=1,dive,keys,required,endkeys,gte=0,lt=1"`
	DefaultMarket string             `yaml:"default_market" validate:"required"`
	Consumer      string             `yaml:"consumer"`
	MaxDeliver    int                `yaml:"max_deliver" validate:"min=0"`
	Backoff       []time.Duration    `yaml:"backoff"`
}

type StorageCfg struct {
	Type     enum.StoreType `yaml:"type" validate:"required,oneof=badger postgres"`
	Badger   BadgerCfg      `yaml:"badger"`
	Postgres PostgresCfg    `yaml:"postgres"`
}

type BadgerCfg struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
	InMemory  bool   `yaml:"in_memory"`
}

type PostgresCfg struct {
	URL string `yaml:"url"`
}

type CacheCfg struct {
	Type      enum.CacheType `yaml:"type" validate:"required,oneof=redis memory"`
	TTL       time.Duration  `yaml:"ttl" validate:"min=0"`
	Namespace string         `yaml:"namespace"`
	Redis     RedisCfg       `yaml:"redis"`
	Memory    MemoryCacheCfg `yaml:"memory"`
}

type RedisCfg struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MemoryCacheCfg struct {
	MaxCost     int64 `yaml:"max_cost"`
	NumCounters int64 `yaml:"num_counters"`
}

type NATSCfg struct {
	URL           string     `yaml:"url"`
	Stream        string     `yaml:"stream"`
	SubjectPrefix string     `yaml:"subject_prefix"`
	Username      string     `yaml:"username"`
	Password      string     `yaml:"password"`
	TLS           NATSTLSCfg `yaml:"tls"`
}

type NATSTLSCfg struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type WorkerCfg struct {
	Draw    WorkerItem `yaml:"draw"`
	Sweeper WorkerItem `yaml:"sweeper"`
	Rebate  WorkerItem `yaml:"rebate"`
}

// WorkerItem flags are opt-in; a zero value leaves the worker off.
type WorkerItem struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Lookback int           `yaml:"lookback"`
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Engine.Timezone)
}
