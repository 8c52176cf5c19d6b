// Package generator produces draw outcomes. Without a control directive the
// outcome is a uniform random permutation. With one, candidate permutations
// are reweighted so that the targeted bets win (or lose) at roughly the
// requested rate while the result stays a plausible random draw.
package generator

import (
	crand "crypto/rand"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/fystack/draw-engine/internal/evaluator"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/fystack/draw-engine/pkg/common/types"
)

type Mode string

const (
	ModeUniform  Mode = "uniform"
	ModeBiased   Mode = "biased"
	ModeFallback Mode = "fallback"
)

type FallbackState string

const (
	StateCoverage  FallbackState = "coverage_fallback"
	StateExhausted FallbackState = "exhausted_fallback"
	StateInvalid   FallbackState = "invalid_fallback"
)

// Targeting selects which open bets a directive applies to. All overrides
// Members.
type Targeting struct {
	All     bool
	Members map[string]struct{}
}

func (t Targeting) covers(memberID string) bool {
	if t.All {
		return true
	}
	_, ok := t.Members[memberID]
	return ok
}

type Request struct {
	Period    types.Period
	Bets      []types.Bet
	Directive *types.ControlDirective
	Targets   Targeting
}

type ClaimReport struct {
	Key       string  `json:"key"`
	Slice     string  `json:"slice"`
	Claimants int     `json:"claimants"`
	Strength  float64 `json:"strength"`
	Base      float64 `json:"base"`
	LogWeight float64 `json:"log_weight"`
	Sentinel  bool    `json:"sentinel"`
}

type Fallback struct {
	Slice  string        `json:"slice"`
	State  FallbackState `json:"state"`
	Reason string        `json:"reason"`
}

type Report struct {
	Mode       Mode          `json:"mode"`
	Claims     []ClaimReport `json:"claims,omitempty"`
	Fallbacks  []Fallback    `json:"fallbacks,omitempty"`
	Candidates int           `json:"candidates"`
	Attempts   int           `json:"attempts"`
}

type Generator struct {
	cfg    Config
	mu     sync.Mutex
	rng    *rand.Rand
	logger *slog.Logger
}

type Option func(*Generator)

// WithRand replaces the crypto-seeded source, for reproducible tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

func New(cfg Config, opts ...Option) *Generator {
	g := &Generator{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "generator")),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			logger.Fatal("seed outcome generator", "err", err)
		}
		g.rng = rand.New(rand.NewChaCha8(seed))
	}
	return g
}

// Generate returns a valid permutation for req.Period. It never fails: any
// problem with the bias computation degrades to a uniform draw, recorded in
// the report.
func (g *Generator) Generate(req Request) (types.Outcome, Report) {
	g.mu.Lock()
	defer g.mu.Unlock()

	claims, report := g.buildClaims(req)
	if len(claims) == 0 {
		report.Mode = ModeUniform
		if len(report.Fallbacks) > 0 {
			report.Mode = ModeFallback
		}
		report.Candidates = 1
		return g.uniform(), report
	}

	report.Mode = ModeBiased
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		report.Attempts = attempt
		outcome, ok := g.resample(claims, &report)
		if !ok {
			continue
		}
		if err := outcome.Validate(); err != nil {
			g.logger.Error("Biased draw produced an invalid outcome, using uniform draw",
				"period", req.Period.String(), "outcome", outcome.String(), "err", err)
			report.Mode = ModeFallback
			report.Fallbacks = append(report.Fallbacks, Fallback{State: StateInvalid, Reason: err.Error()})
			return g.uniform(), report
		}
		return outcome, report
	}

	g.logger.Warn("Bias search exhausted, using uniform draw",
		"period", req.Period.String(), "attempts", report.Attempts)
	report.Mode = ModeFallback
	report.Fallbacks = append(report.Fallbacks, Fallback{State: StateExhausted, Reason: "no finite candidate weight"})
	return g.uniform(), report
}

func (g *Generator) uniform() types.Outcome {
	var o types.Outcome
	for i := range o {
		o[i] = i + 1
	}
	g.rng.Shuffle(len(o), func(i, j int) { o[i], o[j] = o[j], o[i] })
	return o
}

// resample draws the configured number of uniform candidates and picks one
// with probability proportional to its claim weight.
func (g *Generator) resample(claims []claim, report *Report) (types.Outcome, bool) {
	n := g.cfg.Candidates
	candidates := make([]types.Outcome, n)
	logWeights := make([]float64, n)
	maxLog := math.Inf(-1)
	for i := range candidates {
		candidates[i] = g.uniform()
		logWeights[i] = g.logWeight(claims, candidates[i])
		if logWeights[i] > maxLog {
			maxLog = logWeights[i]
		}
	}
	report.Candidates += n
	if math.IsInf(maxLog, 0) || math.IsNaN(maxLog) {
		return types.Outcome{}, false
	}

	total := 0.0
	weights := make([]float64, n)
	for i, lw := range logWeights {
		weights[i] = math.Exp(lw - maxLog)
		total += weights[i]
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return types.Outcome{}, false
	}

	pick := g.rng.Float64() * total
	for i, w := range weights {
		pick -= w
		if pick < 0 {
			return candidates[i], true
		}
	}
	return candidates[n-1], true
}

// logWeight sums the claims an outcome satisfies. Within one slice the sum is
// clipped to ±k unless a sentinel claim is involved, so stacked claims on the
// same variable cannot compound past the plausibility bound. Claims of one
// slice are contiguous.
func (g *Generator) logWeight(claims []claim, o types.Outcome) float64 {
	k := g.cfg.Amplification
	total, run, sentinel := 0.0, 0.0, false
	for i, c := range claims {
		if ok, _, err := evaluator.Match(c.selector, o); err == nil && ok {
			run += c.logWeight
			sentinel = sentinel || c.sentinel
		}
		if i == len(claims)-1 || claims[i+1].slice != c.slice {
			if !sentinel {
				run = math.Max(-k, math.Min(k, run))
			}
			total += run
			run, sentinel = 0, false
		}
	}
	return total
}

type claim struct {
	key       string
	slice     string
	selector  evaluator.Selector
	claimants int
	strength  float64
	base      float64
	logWeight float64
	sentinel  bool
}

func (g *Generator) buildClaims(req Request) ([]claim, Report) {
	var report Report
	d := req.Directive
	if d == nil || !d.Applies(req.Period) {
		return nil, report
	}

	type group struct {
		selector evaluator.Selector
		members  map[string]struct{}
	}
	groups := make(map[string]*group)
	for _, b := range req.Bets {
		if !b.Pending() || !req.Targets.covers(b.MemberID) {
			continue
		}
		sel := evaluator.SelectorOf(b)
		if sel.Validate() != nil {
			continue
		}
		gr, ok := groups[sel.Key()]
		if !ok {
			gr = &group{selector: sel, members: make(map[string]struct{})}
			groups[sel.Key()] = gr
		}
		gr.members[b.MemberID] = struct{}{}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	spaces := make(map[string]slice)
	bySlice := make(map[string][]claim)
	var order []string
	for _, key := range keys {
		gr := groups[key]
		sl := sliceOf(gr.selector)
		if _, ok := spaces[sl.key]; !ok {
			spaces[sl.key] = sl
			order = append(order, sl.key)
		}
		c, ok := g.weigh(d, gr.selector, len(gr.members), spaces[sl.key])
		if !ok {
			continue
		}
		bySlice[sl.key] = append(bySlice[sl.key], c)
	}

	var claims []claim
	for _, sk := range order {
		cs := bySlice[sk]
		if len(cs) == 0 {
			continue
		}
		sels := make([]evaluator.Selector, len(cs))
		for i, c := range cs {
			sels[i] = c.selector
		}
		if cov := spaces[sk].probability(sels...); cov >= g.cfg.CoverageLimit {
			report.Fallbacks = append(report.Fallbacks, Fallback{
				Slice:  sk,
				State:  StateCoverage,
				Reason: "targeted selectors cover too much of the slice",
			})
			continue
		}
		for _, c := range cs {
			claims = append(claims, c)
			report.Claims = append(report.Claims, ClaimReport{
				Key:       c.key,
				Slice:     c.slice,
				Claimants: c.claimants,
				Strength:  c.strength,
				Base:      c.base,
				LogWeight: c.logWeight,
				Sentinel:  c.sentinel,
			})
		}
	}
	return claims, report
}

// weigh turns a directive and a claimed selector into a log-weight.
//
// The requested strength f (after contention) is read as the desired win
// rate for a win directive and the desired loss rate for a loss directive.
// When B does not already meet it, the odds ratio that reaches it is
// expressed as exp(±k·f̂) with the normalized strength f̂ capped at 1.
// When B already meets it, the plain exp(±k·f) factor applies, so a
// directive above the snap floor always pushes in its direction.
func (g *Generator) weigh(d *types.ControlDirective, sel evaluator.Selector, claimants int, sl slice) (claim, bool) {
	contention := math.Min(1+g.cfg.ContentionStep*float64(claimants-1), g.cfg.ContentionCap)
	f := math.Min(float64(d.Strength)/100*contention, 1)
	if f <= g.cfg.SnapLow {
		return claim{}, false
	}

	c := claim{
		key:       sel.Key(),
		slice:     sl.key,
		selector:  sel,
		claimants: claimants,
		strength:  f,
		base:      sl.probability(sel),
	}
	win := d.Direction == enum.ControlDirectionWin

	if f >= g.cfg.SnapHigh {
		c.sentinel = true
		if win {
			c.logWeight = math.Log(g.cfg.HighSentinel)
		} else {
			c.logWeight = math.Log(g.cfg.LowSentinel)
		}
		return c, true
	}

	b := c.base
	k := g.cfg.Amplification
	normalized := f
	if target := targetRate(b, f, win); target != b {
		ratio := target * (1 - b) / ((1 - target) * b)
		normalized = math.Min(math.Abs(math.Log(ratio))/k, 1)
	}
	if win {
		c.logWeight = k * normalized
	} else {
		c.logWeight = -k * normalized
	}
	return c, true
}

// targetRate is the win rate a directive asks for, or b when b already
// satisfies it.
func targetRate(b, f float64, win bool) float64 {
	if win {
		if f > b {
			return f
		}
		return b
	}
	if 1-f < b {
		return 1 - f
	}
	return b
}
