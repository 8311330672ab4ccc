package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var (
	ErrPermament = errors.New("permanent messaging error")
	MaxMsgSize   = int32(1 << 20) // 1MB
)

const (
	streamMaxBytes = int64(256 << 20)
	streamMaxAge   = 7 * 24 * time.Hour
)

type MessageQueue interface {
	Enqueue(topic string, message []byte, options *EnqueueOptions) error
	// handler shouldn't be a blocking call as it would trigger redivery of the message
	// if certain period of time has passed without ack.
	Dequeue(topic string, handler func(message []byte) error) error
	Close()
}

type EnqueueOptions struct {
	IdempotententKey string
}

type msgQueue struct {
	consumerName    string
	js              jetstream.JetStream
	consumer        jetstream.Consumer
	consumerContext jetstream.ConsumeContext
}

type NATsMessageQueueManager struct {
	queueName string
	js        jetstream.JetStream
}

// NewNATsMessageQueueManager makes sure a stream named queueName captures every subject under it.
func NewNATsMessageQueueManager(ctx context.Context, queueName string, nc *nats.Conn) (*NATsMessageQueueManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if stream, err := js.Stream(ctx, queueName); err != nil {
		logger.Warn("Stream not found, creating new stream", "stream", queueName)
	} else if info, err := stream.Info(ctx); err == nil {
		logger.Info("Stream found", "name", info.Config.Name, "subjects", info.Config.Subjects, "msgs", info.State.Msgs)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        queueName,
		Description: "Stream for " + queueName,
		Subjects:    []string{queueName + ".>"},
		MaxBytes:    streamMaxBytes,
		MaxMsgSize:  MaxMsgSize,
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      streamMaxAge,
		Duplicates:  time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", queueName, err)
	}
	logger.Info("JetStream stream ready", "stream", queueName)

	return &NATsMessageQueueManager{
		queueName: queueName,
		js:        js,
	}, nil
}

// NewMessageQueue binds a durable consumer to <queue>.<consumerName>.*.
func (m *NATsMessageQueueManager) NewMessageQueue(ctx context.Context, consumerName string) (MessageQueue, error) {
	cfg := jetstream.ConsumerConfig{
		Name:           consumerName,
		Durable:        consumerName,
		MaxAckPending:  4,
		FilterSubjects: []string{fmt.Sprintf("%s.%s.*", m.queueName, consumerName)},
		MaxDeliver:     3,
	}
	logger.Info("Creating consumer for subject", "name", cfg.Name, "filterSubjects", cfg.FilterSubjects)
	consumer, err := m.js.CreateOrUpdateConsumer(ctx, m.queueName, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", consumerName, err)
	}
	return &msgQueue{consumerName: consumerName, js: m.js, consumer: consumer}, nil
}

// NewPublisher returns a queue that can only Enqueue.
func (m *NATsMessageQueueManager) NewPublisher() MessageQueue {
	return &msgQueue{js: m.js}
}

func (mq *msgQueue) Enqueue(topic string, message []byte, options *EnqueueOptions) error {
	logger.Debug("Enqueueing message", "topic", topic, "size", len(message))
	header := nats.Header{}
	if options != nil && options.IdempotententKey != "" {
		header.Add(jetstream.MsgIDHeader, options.IdempotententKey)
	}

	_, err := mq.js.PublishMsg(context.Background(), &nats.Msg{
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
		return fmt.Errorf("queue has no consumer bound for %s", topic)
	}
	logger.Info("Dequeuing message", "topic", topic)
	c, err := mq.consumer.Consume(func(msg jetstream.Msg) {
		meta, _ := msg.Metadata()
		err := handler(msg.Data())
		if err != nil {
			if errors.Is(err, ErrPermament) {
				logger.Info("Permanent error on message", "meta", meta)
				_ = msg.Term()
				return
			}
			logger.Error("error handling message", "error", err)
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			logger.Error("Error acknowledging message", "error", err)
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
