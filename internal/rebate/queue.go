package rebate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/infra"
)

// Queue publishes rebate jobs to a JetStream subject. Each job carries its
// (period, member) key as message id, so a re-enqueue inside the stream's
// duplicate window is dropped.
type Queue struct {
	mq      infra.MessageQueue
	subject string
}

func NewQueue(mq infra.MessageQueue, subject string) *Queue {
	return &Queue{mq: mq, subject: subject}
}

func (q *Queue) EnqueueRebate(ctx context.Context, job types.RebateJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.mq.Enqueue(ctx, q.subject, data, &infra.EnqueueOptions{
		IdempotencyKey: "rebate:" + job.Key(),
	})
}

// Handle decodes one queued job and distributes it. Jobs that can never
// succeed are reported as infra.ErrPermanent so the consumer terminates them.
func (d *Distributor) Handle(ctx context.Context, message []byte) error {
	var job types.RebateJob
	if err := json.Unmarshal(message, &job); err != nil {
		return fmt.Errorf("%w: decode rebate job: %v", infra.ErrPermanent, err)
	}
	if job.Period.IsZero() || job.MemberID == "" {
		return fmt.Errorf("%w: incomplete rebate job %q", infra.ErrPermanent, message)
	}
	_, err := d.Distribute(ctx, job.Period, job.MemberID, job.Turnover)
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("%w: %v", infra.ErrPermanent, err)
	}
	return err
}
