package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var (
	ErrPermanent = errors.New("permanent messaging error")
	MaxMsgSize   = 10 * 1024 // 10KB
)

type MessageQueue interface {
	Enqueue(ctx context.Context, topic string, message []byte, options *EnqueueOptions) error
	// handler shouldn't be a blocking call as it would trigger redelivery of
	// the message if certain period of time has passed without ack.
	Dequeue(topic string, handler func(message []byte) error) error
	Close()
}

type EnqueueOptions struct {
	// IdempotencyKey is sent as Nats-Msg-Id so JetStream drops duplicates
	// published within the stream's duplicate window.
	IdempotencyKey string
}

type msgQueue struct {
	consumerName    string
	js              jetstream.JetStream
	consumer        jetstream.Consumer
	consumerContext jetstream.ConsumeContext
	useBackoffRetry bool
}

type NATSQueueManager struct {
	stream string
	js     jetstream.JetStream
}

// NewNATSQueueManager creates or updates a work-queue stream named stream
// that captures every subject under "<stream>.>".
func NewNATSQueueManager(ctx context.Context, stream string, nc *nats.Conn) (*NATSQueueManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if s, err := js.Stream(ctx, stream); err == nil {
		info, _ := s.Info(ctx)
		if info != nil {
			logger.Info("Stream found", "name", info.Config.Name, "subjects", info.Config.Subjects, "msgs", info.State.Msgs)
		}
	} else {
		logger.Warn("Stream not found, creating new stream", "stream", stream)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Stream for " + stream,
		Subjects:    []string{stream + ".>"},
		MaxMsgSize:  int32(MaxMsgSize),
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      2 * 24 * time.Hour, // 2 days
		Duplicates:  10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create jetstream stream %s: %w", stream, err)
	}
	logger.Info("NATS JetStream stream ready", "stream", stream)

	return &NATSQueueManager{stream: stream, js: js}, nil
}

// Subject is the subject a consumer named consumerName receives token on.
func (m *NATSQueueManager) Subject(consumerName, token string) string {
	return fmt.Sprintf("%s.%s.%s", m.stream, consumerName, token)
}

// Publisher returns a queue that can only enqueue.
func (m *NATSQueueManager) Publisher() MessageQueue {
	return &msgQueue{js: m.js}
}

func (m *NATSQueueManager) NewMessageQueue(ctx context.Context, consumerName string) (MessageQueue, error) {
	return m.newQueue(ctx, consumerName, jetstream.ConsumerConfig{MaxDeliver: 3}, false)
}

func (m *NATSQueueManager) NewMessageQueueWithBackoff(ctx context.Context, consumerName string, backoffIntervals []time.Duration, maxDeliver int) (MessageQueue, error) {
	if maxDeliver <= len(backoffIntervals) {
		// JetStream rejects a BackOff list that is not shorter than MaxDeliver
		maxDeliver = len(backoffIntervals) + 1
	}
	return m.newQueue(ctx, consumerName, jetstream.ConsumerConfig{
		MaxDeliver: maxDeliver,
		BackOff:    backoffIntervals,
	}, len(backoffIntervals) > 0)
}

func (m *NATSQueueManager) newQueue(ctx context.Context, consumerName string, cfg jetstream.ConsumerConfig, backoff bool) (MessageQueue, error) {
	cfg.Name = consumerName
	cfg.Durable = consumerName
	cfg.MaxAckPending = 4
	cfg.FilterSubjects = []string{m.Subject(consumerName, "*")}

	logger.Info("Creating consumer for subject", "name", cfg.Name, "filterSubjects", cfg.FilterSubjects, "maxDeliver", cfg.MaxDeliver)
	consumer, err := m.js.CreateOrUpdateConsumer(ctx, m.stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("create jetstream consumer %s: %w", consumerName, err)
	}
	return &msgQueue{
		consumerName:    consumerName,
		js:              m.js,
		consumer:        consumer,
		useBackoffRetry: backoff,
	}, nil
}

func (mq *msgQueue) Enqueue(ctx context.Context, topic string, message []byte, options *EnqueueOptions) error {
	logger.Debug("Enqueueing message", "topic", topic, "size", len(message))
	header := nats.Header{}
	if options != nil && options.IdempotencyKey != "" {
		header.Add(jetstream.MsgIDHeader, options.IdempotencyKey)
	}

	_, err := mq.js.PublishMsg(ctx, &nats.Msg{
		Subject: topic,
		Data:    message,
		Header:  header,
	})
	if err != nil {
		return fmt.Errorf("error enqueueing message: %w", err)
	}
	return nil
}

func (mq *msgQueue) Dequeue(topic string, handler func(message []byte) error) error {
	if mq.consumer == nil {
		return fmt.Errorf("queue for %s has no consumer", topic)
	}
	logger.Info("Dequeuing message", "topic", topic, "consumer", mq.consumerName)
	c, err := mq.consumer.Consume(func(msg jetstream.Msg) {
		meta, _ := msg.Metadata()
		err := handler(msg.Data())
		if err != nil {
			if errors.Is(err, ErrPermanent) {
				logger.Warn("Permanent error on message, terminating", "subject", msg.Subject(), "err", err)
				_ = msg.Term()
				return
			}

			logger.Error("Error handling message", "subject", msg.Subject(), "err", err)
			if !mq.useBackoffRetry {
				// msg.Nak() will retry immediately, so don't use it with backoff
				_ = msg.Nak()
			}
			return
		}

		if err := msg.Ack(); err != nil {
			logger.Error("Error acknowledging message", "err", err)
			return
		}
		if meta != nil {
			logger.Debug("Message acknowledged", "stream_seq", meta.Sequence.Stream, "delivered", meta.NumDelivered)
		}
	})
	mq.consumerContext = c
	return err
}

func (mq *msgQueue) Close() {
	if mq.consumerContext != nil {
		mq.consumerContext.Stop()
	}
}
