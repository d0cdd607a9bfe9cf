package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue publishes jobs to a topic keyed by company id, so one partition carries all of a
// company's jobs in order.
type KafkaQueue struct {
	writer messageWriter
}

// NewKafkaQueue returns a queue writing to topic. Call Close when shutting down.
func NewKafkaQueue(brokers []string, topic string) (*KafkaQueue, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("pipeline: kafka brokers and topic are required")
	}
	return &KafkaQueue{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}, nil
}

// Enqueue serialises job and writes it synchronously with a short timeout.
func (q *KafkaQueue) Enqueue(ctx context.Context, job Job) (JobHandle, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return JobHandle{}, err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := q.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(job.CompanyID), Value: payload}); err != nil {
		return JobHandle{}, fmt.Errorf("pipeline: kafka enqueue: %w", err)
	}
	return JobHandle{ID: job.ID, Lane: -1}, nil
}

// Close closes the Kafka writer.
func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads jobs from Kafka and hands them to a Handler one at a time. Each message is committed
// before it is processed: a crash mid-job loses that job rather than delivering it twice.
type Consumer struct {
	reader  messageReader
	handler Handler
}

// NewKafkaConsumer returns a consumer in groupID reading topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, h Handler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			MaxWait:        time.Second,
			CommitInterval: 0,
		}),
		handler: h,
	}
}

// Run consumes until ctx is cancelled. In-flight jobs run on a context detached from ctx.
func (c *Consumer) Run(ctx context.Context) error {
	jobCtx := context.WithoutCancel(ctx)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("pipeline: kafka read error", "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("pipeline: kafka commit failed", "offset", msg.Offset, "partition", msg.Partition, "error", err)
			continue
		}
		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			slog.Error("pipeline: dropping undecodable job", "offset", msg.Offset, "partition", msg.Partition, "error", err)
			continue
		}
		c.handler(jobCtx, job)
	}
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
