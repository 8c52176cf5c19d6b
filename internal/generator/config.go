package generator

import "github.com/fystack/draw-engine/pkg/common/config"

// Config holds the bias tuning constants.
//
// Amplification is k in exp(±k·f): the largest odds ratio a single slice can
// be pushed by is e^k. Strengths at or above SnapHigh bypass that bound and
// use the sentinels; strengths at or below SnapLow are ignored.
type Config struct {
	Amplification  float64
	HighSentinel   float64
	LowSentinel    float64
	SnapHigh       float64
	SnapLow        float64
	ContentionStep float64
	ContentionCap  float64
	CoverageLimit  float64
	Candidates     int
	MaxAttempts    int
}

func DefaultConfig() Config {
	return ConfigFrom(config.Defaults().Control)
}

func ConfigFrom(c config.ControlCfg) Config {
	return Config{
		Amplification:  c.Amplification,
		HighSentinel:   c.HighSentinel,
		LowSentinel:    c.LowSentinel,
		SnapHigh:       c.SnapHigh,
		SnapLow:        c.SnapLow,
		ContentionStep: c.ContentionStep,
		ContentionCap:  c.ContentionCap,
		CoverageLimit:  c.CoverageLimit,
		Candidates:     c.Candidates,
		MaxAttempts:    c.MaxAttempts,
	}
}
