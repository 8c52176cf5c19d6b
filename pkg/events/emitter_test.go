package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/infra"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	data  []byte
	key   string
}

type mockQueue struct {
	mu     sync.Mutex
	msgs   []published
	err    error
	closed bool
}

func (m *mockQueue) Enqueue(_ context.Context, topic string, message []byte, opts *infra.EnqueueOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	p := published{topic: topic, data: message}
	if opts != nil {
		p.key = opts.IdempotencyKey
	}
	m.msgs = append(m.msgs, p)
	return nil
}

func (m *mockQueue) Dequeue(string, func([]byte) error) error { return nil }
func (m *mockQueue) Close()                                  { m.closed = true }

func TestEmitDrawSubjectAndPayload(t *testing.T) {
	q := &mockQueue{}
	e := NewEmitter(q, "draw_engine.events")
	period := types.MustPeriod("20260301001")
	result := types.DrawResult{Period: period, Outcome: types.Outcome{3, 9, 1, 7, 2, 8, 6, 4, 10, 5}, Sum: 12}

	require.NoError(t, e.EmitDraw(context.Background(), result))
	require.Len(t, q.msgs, 1)
	msg := q.msgs[0]
	assert.Equal(t, "draw_engine.events.draw.completed", msg.topic)
	assert.Equal(t, "draw.completed:20260301001:", msg.key)

	var ev struct {
		Type      string           `json:"type"`
		Period    string           `json:"period"`
		Data      types.DrawResult `json:"data"`
		Timestamp int64            `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(msg.data, &ev))
	assert.Equal(t, TypeDrawCompleted, ev.Type)
	assert.Equal(t, "20260301001", ev.Period)
	assert.Equal(t, result.Outcome, ev.Data.Outcome)
	assert.NotZero(t, ev.Timestamp)
}

func TestEmitRebateKeyedByMember(t *testing.T) {
	q := &mockQueue{}
	e := NewEmitter(q, "x")
	period := types.MustPeriod("20260301002")

	for _, m := range []string{"m1", "m2"} {
		require.NoError(t, e.EmitRebate(context.Background(), types.RebateRecord{
			Period:     period,
			MemberID:   m,
			PoolAmount: decimal.RequireFromString("4.10"),
		}))
	}
	require.Len(t, q.msgs, 2)
	assert.Equal(t, "x.rebate.applied", q.msgs[0].topic)
	assert.NotEqual(t, q.msgs[0].key, q.msgs[1].key)
}

func TestEmitPropagatesQueueError(t *testing.T) {
	q := &mockQueue{err: errors.New("nats down")}
	e := NewEmitter(q, "x")
	err := e.EmitAlarm(context.Background(), types.MustPeriod("20260301003"), "coverage_fallback")
	assert.ErrorContains(t, err, "nats down")
}

func TestCloseClosesQueue(t *testing.T) {
	q := &mockQueue{}
	NewEmitter(q, "x").Close()
	assert.True(t, q.closed)
}
