package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/infra"
)

const (
	TypeDrawCompleted = "draw.completed"
	TypeDrawAlarm     = "draw.alarm"
	TypePeriodSettled = "period.settled"
	TypeRebateApplied = "rebate.applied"
)

type EngineEvent struct {
	Type      string `json:"type"`
	Period    string `json:"period"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	// Key distinguishes events of one type and period for deduplication.
	Key       string `json:"-"`
}

type Emitter interface {
	EmitDraw(ctx context.Context, result types.DrawResult) error
	EmitAlarm(ctx context.Context, period types.Period, reason string) error
	EmitSettled(ctx context.Context, rec types.SettlementRecord) error
	EmitRebate(ctx context.Context, rec types.RebateRecord) error
	Emit(ctx context.Context, event EngineEvent) error
	Close()
}

type emitter struct {
	queue         infra.MessageQueue
	subjectPrefix string
}

// NewEmitter publishes events to "<subjectPrefix>.<event type>".
func NewEmitter(queue infra.MessageQueue, subjectPrefix string) Emitter {
	return &emitter{
		queue:         queue,
		subjectPrefix: subjectPrefix,
	}
}

func (e *emitter) EmitDraw(ctx context.Context, result types.DrawResult) error {
	return e.Emit(ctx, EngineEvent{Type: TypeDrawCompleted, Period: result.Period.String(), Data: result})
}

func (e *emitter) EmitAlarm(ctx context.Context, period types.Period, reason string) error {
	return e.Emit(ctx, EngineEvent{
		Type:   TypeDrawAlarm,
		Period: period.String(),
		Data:   map[string]string{"reason": reason},
	})
}

func (e *emitter) EmitSettled(ctx context.Context, rec types.SettlementRecord) error {
	return e.Emit(ctx, EngineEvent{Type: TypePeriodSettled, Period: rec.Period.String(), Data: rec})
}

func (e *emitter) EmitRebate(ctx context.Context, rec types.RebateRecord) error {
	return e.Emit(ctx, EngineEvent{Type: TypeRebateApplied, Period: rec.Period.String(), Data: rec, Key: rec.MemberID})
}

func (e *emitter) Emit(ctx context.Context, event EngineEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UTC().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, e.subjectPrefix+"."+event.Type, data, &infra.EnqueueOptions{
		IdempotencyKey: event.Type + ":" + event.Period + ":" + event.Key,
	})
}

func (e *emitter) Close() {
	if e.queue != nil {
		e.queue.Close()
	}
}

// Nop discards every event. Used when no message broker is configured.
type Nop struct{}

func (Nop) EmitDraw(context.Context, types.DrawResult) error { return nil }
func (Nop) EmitAlarm(context.Context, types.Period, string) error { return nil }
func (Nop) EmitSettled(context.Context, types.SettlementRecord) error { return nil }
func (Nop) EmitRebate(context.Context, types.RebateRecord) error { return nil }
func (Nop) Emit(context.Context, EngineEvent) error { return nil }
func (Nop) Close() {}
