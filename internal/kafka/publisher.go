// Package kafka implements the outbound publisher for extracted file
// URLs. Delivery is at-least-once: the broker acknowledgment flips the
// per-URL send record, and the retry sweep resends anything unflipped.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/EventMosaicProject/em-collector/internal/config"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// flushTimeoutMs bounds how long Close waits for in-flight messages.
const flushTimeoutMs = 10_000

// SentMarker records broker acknowledgment for a file URL.
type SentMarker interface {
	MarkSent(ctx context.Context, fileURL string) (bool, error)
}

// Publisher sends file URLs to topic-partitioned Kafka topics. Sends
// are fire-and-observe: callers never block on broker acknowledgment.
type Publisher struct {
	producer *kafka.Producer
	status   SentMarker
	log      logger.Logger

	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPublisher creates the underlying producer. Idempotence is enabled
// so broker-side retries do not duplicate messages.
func NewPublisher(cfg config.KafkaConfig, status SentMarker, log logger.Logger) (*Publisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"enable.idempotence": true,
		"acks":               "all",
		"client.id":          "em-collector",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Publisher{
		producer: producer,
		status:   status,
		log:      log,
	}, nil
}

// Start launches the delivery-report loop. Each broker acknowledgment
// marks the corresponding URL as sent exactly once; failed deliveries
// leave the record pending for the retry sweep.
func (p *Publisher) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.deliveryLoop(ctx)
	})
}

// Send enqueues one URL for the topic. An error here means the message
// never left the local queue; the send record stays pending.
func (p *Publisher) Send(topic, fileURL string) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          []byte(fileURL),
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	p.log.Debug("message enqueued",
		logger.String("topic", topic),
		logger.String("url", fileURL))
	return nil
}

// Close flushes outstanding messages, stops the producer, and waits
// for the delivery loop to drain.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		remaining := p.producer.Flush(flushTimeoutMs)
		if remaining > 0 {
			p.log.Warn("closing with undelivered messages", logger.Int("remaining", remaining))
		}
		p.producer.Close()
		p.wg.Wait()
	})
}

func (p *Publisher) deliveryLoop(ctx context.Context) {
	defer p.wg.Done()

	// The events channel closes when the producer is closed.
	for ev := range p.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			p.handleDelivery(ctx, e)
		case kafka.Error:
			p.log.Error("kafka producer error", logger.String("kafka_error", e.Error()))
		}
	}
}

func (p *Publisher) handleDelivery(ctx context.Context, msg *kafka.Message) {
	fileURL := string(msg.Value)

	if msg.TopicPartition.Error != nil {
		p.log.Error("message delivery failed",
			logger.String("url", fileURL),
			logger.Error(msg.TopicPartition.Error))
		return
	}

	marked, err := p.status.MarkSent(ctx, fileURL)
	if err != nil {
		p.log.Error("failed to mark file as sent",
			logger.String("url", fileURL),
			logger.Error(err))
		return
	}
	if !marked {
		// Record expired or was never registered; nothing to flip.
		return
	}

	p.log.Debug("delivery acknowledged", logger.String("url", fileURL))
}
