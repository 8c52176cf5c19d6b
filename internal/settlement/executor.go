// Package settlement applies a drawn outcome to every pending bet of a
// period exactly once, however many callers race to settle it.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fystack/draw-engine/internal/evaluator"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/events"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/shopspring/decimal"
)

const DefaultMaxConflictRetries = 5

// JobQueue receives one rebate job per member after a period commits.
type JobQueue interface {
	EnqueueRebate(ctx context.Context, job types.RebateJob) error
}

type Store interface {
	store.Results
	store.Settlements
	store.Rebates
}

type Config struct {
	MaxConflictRetries int
	Policy             evaluator.Policy
}

type Result struct {
	Period      types.Period    `json:"period"`
	Settled     int             `json:"settled"`
	Failed      int             `json:"failed"`
	TotalStake  decimal.Decimal `json:"total_stake"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	// AlreadySettled is set when an earlier call settled the period.
	AlreadySettled bool `json:"already_settled"`
	// Contended is set when another settlement of the period held the lock.
	Contended bool `json:"contended"`
	Retries   int  `json:"retries"`
}

type Executor struct {
	store   Store
	jobs    JobQueue
	emitter events.Emitter
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

func NewExecutor(st Store, jobs JobQueue, emitter events.Emitter, cfg Config) *Executor {
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Executor{
		store:   st,
		jobs:    jobs,
		emitter: emitter,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "settlement")),
	}
}

func (e *Executor) GetSettlementRecord(ctx context.Context, period types.Period) (types.SettlementRecord, error) {
	return e.store.GetSettlementRecord(ctx, period)
}

// Settle evaluates and pays out every pending bet of period. Calling it again
// for a settled period is a successful no-op.
func (e *Executor) Settle(ctx context.Context, period types.Period) (Result, error) {
	res := Result{Period: period, TotalStake: decimal.Zero, TotalPayout: decimal.Zero}

	if _, err := e.store.GetSettlementRecord(ctx, period); err == nil {
		res.AlreadySettled = true
		return res, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return res, fmt.Errorf("read settlement record: %w", err)
	}

	draw, err := e.store.GetOutcome(ctx, period)
	if errors.Is(err, types.ErrNotFound) {
		return res, fmt.Errorf("period %s: %w", period, types.ErrNotYetDrawn)
	}
	if err != nil {
		return res, fmt.Errorf("read outcome: %w", err)
	}

	var out *run
	for attempt := 0; ; attempt++ {
		out, err = e.settleOnce(ctx, draw)
		if err == nil {
			break
		}
		if errors.Is(err, types.ErrPeriodBusy) {
			e.logger.Info("Settlement already running elsewhere", "period", period.String())
			res.Contended = true
			return res, nil
		}
		if !errors.Is(err, types.ErrTxConflict) || attempt >= e.cfg.MaxConflictRetries {
			return res, fmt.Errorf("settle %s: %w", period, err)
		}
		e.logger.Debug("Settlement conflict, retrying", "period", period.String(), "attempt", attempt+1)
		res.Retries++
	}

	if out.alreadySettled {
		res.AlreadySettled = true
		return res, nil
	}
	res.Settled = out.record.SettledCount
	res.Failed = out.record.FailedCount
	res.TotalStake = out.record.TotalStake
	res.TotalPayout = out.record.TotalPayout

	e.logger.Info("Period settled",
		"period", period.String(),
		"settled", res.Settled,
		"failed", res.Failed,
		"stake", res.TotalStake.String(),
		"payout", res.TotalPayout.String(),
	)
	e.enqueueRebates(ctx, out.jobs)
	if err := e.emitter.EmitSettled(ctx, out.record); err != nil {
		e.logger.Warn("Emit settled event failed", "period", period.String(), "err", err)
	}
	return res, nil
}

type run struct {
	alreadySettled bool
	record         types.SettlementRecord
	jobs           []types.RebateJob
}

func (e *Executor) settleOnce(ctx context.Context, draw types.DrawResult) (*run, error) {
	out := &run{}
	err := e.store.Settle(ctx, draw.Period, func(tx store.SettlementTx) error {
		*out = run{}
		exists, err := tx.RecordExists()
		if err != nil {
			return err
		}
		if exists {
			out.alreadySettled = true
			return nil
		}
		bets, err := tx.ClaimPendingBets()
		if err != nil {
			return err
		}

		rec := types.SettlementRecord{
			Period:      draw.Period,
			TotalStake:  decimal.Zero,
			TotalPayout: decimal.Zero,
			SettledAt:   e.now(),
		}
		results := make([]types.BetSettlement, 0, len(bets))
		payouts := make(map[string]decimal.Decimal)
		for i := range bets {
			b := &bets[i]
			r := e.evaluate(*b, draw.Outcome)
			results = append(results, r)
			b.Status = r.Status
			if r.Status == enum.BetStatusEvalFailed {
				rec.FailedCount++
				continue
			}
			rec.SettledCount++
			rec.TotalStake = rec.TotalStake.Add(b.Stake)
			if r.Payout.IsPositive() {
				payouts[b.MemberID] = payouts[b.MemberID].Add(r.Payout)
				rec.TotalPayout = rec.TotalPayout.Add(r.Payout)
			}
		}

		members := make([]string, 0, len(payouts))
		for m := range payouts {
			members = append(members, m)
		}
		sort.Strings(members)
		ref := "settle:" + draw.Period.String()
		for _, m := range members {
			if _, err := tx.Credit(m, payouts[m], enum.LedgerPayout, ref); err != nil {
				return fmt.Errorf("credit %s: %w", m, err)
			}
		}

		if err := tx.MarkBets(results); err != nil {
			return err
		}
		if err := tx.InsertRecord(rec); err != nil {
			return err
		}
		out.record = rec
		out.jobs = rebateJobs(draw.Period, bets)
		return nil
	})
	return out, err
}

// evaluate never fails: a bet that cannot be evaluated is marked
// eval_failed with the reason and the rest of the period proceeds.
func (e *Executor) evaluate(b types.Bet, outcome types.Outcome) types.BetSettlement {
	v, err := evaluator.Evaluate(b, outcome, e.cfg.Policy)
	if err != nil {
		e.logger.Warn("Bet evaluation failed", "bet", b.ID, "period", b.Period.String(), "err", err)
		return types.BetSettlement{
			BetID:         b.ID,
			MemberID:      b.MemberID,
			Status:        enum.BetStatusEvalFailed,
			Payout:        decimal.Zero,
			FailureReason: err.Error(),
		}
	}
	return types.BetSettlement{
		BetID:    b.ID,
		MemberID: b.MemberID,
		Status:   enum.BetStatusSettled,
		Won:      v.Won,
		Payout:   v.Payout,
	}
}

func rebateJobs(period types.Period, bets []types.Bet) []types.RebateJob {
	turnover := store.Turnover(bets)
	jobs := make([]types.RebateJob, 0, len(turnover))
	for m, t := range turnover {
		if t.IsPositive() {
			jobs = append(jobs, types.RebateJob{Period: period, MemberID: m, Turnover: t})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].MemberID < jobs[j].MemberID })
	return jobs
}

// enqueueRebates is best effort; the sweeper re-enqueues whatever is lost.
func (e *Executor) enqueueRebates(ctx context.Context, jobs []types.RebateJob) {
	if e.jobs == nil {
		return
	}
	for _, j := range jobs {
		if err := e.jobs.EnqueueRebate(ctx, j); err != nil {
			e.logger.Error("Enqueue rebate job failed", "period", j.Period.String(), "member", j.MemberID, "err", err)
		}
	}
}

// EnqueuePendingRebates re-enqueues a job for every member of a settled
// period that has turnover but no rebate record.
func (e *Executor) EnqueuePendingRebates(ctx context.Context, period types.Period) (int, error) {
	if e.jobs == nil {
		return 0, nil
	}
	jobs, err := e.store.PendingRebates(ctx, period)
	if err != nil {
		return 0, err
	}
	var errs types.MultiError
	n := 0
	for _, j := range jobs {
		if err := e.jobs.EnqueueRebate(ctx, j); err != nil {
			errs.Add(fmt.Errorf("member %s: %w", j.MemberID, err))
			continue
		}
		n++
	}
	return n, errs.ErrOrNil()
}
