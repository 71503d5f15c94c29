package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"caribou/internal/config"
	"caribou/internal/constants"
	"caribou/internal/logger"
	"caribou/pkg/logging"
	"caribou/pkg/metrics"
	"caribou/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaProducer{writer: w, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	headers := []kafka.Header{}
	headers = tracing.InjectTraceContext(ctx, headers)

	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     []byte(key),
			Value:   body,
			Headers: headers,
			Time:    time.Now(),
		},
	)

	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.CommandsPublishedTotal.WithLabelValues(topic).Inc()
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// kafkaReader is the subset of *kafka.Reader the consume loop relies on.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer runs one fetch/commit loop per subscribed topic. Offsets
// are committed only when the handler acknowledges. A requeue decision
// ends the current reader session without committing: the consumer-group
// position is a single per-partition watermark, so fetching past an
// uncommitted offset and then acknowledging a later message would commit
// the requeued message away. Reopening the reader resumes from the last
// committed offset, redelivering the requeued message first.
type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	mu          sync.Mutex
	reader      kafkaReader
	newReader   func(topic string) kafkaReader
	logger      logger.Logger
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	c := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}
	c.newReader = func(topic string) kafkaReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    topic,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		})
	}
	return c
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *KafkaConsumer) setReader(r kafkaReader) {
	c.mu.Lock()
	c.reader = r
	c.mu.Unlock()
}

func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler DeliveryHandler) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming",
			"topic", topic,
		)

		for {
			reader := c.newReader(topic)
			c.setReader(reader)

			requeued := c.readLoop(consumeCtx, topic, reader, handler)

			reader.Close()
			c.setReader(nil)

			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return
			}
			if requeued {
				// Pause before reopening so a persistently failing
				// message does not spin the partition worker.
				select {
				case <-ctx.Done():
					return
				case <-time.After(constants.RequeuePause):
				}
			}
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

// readLoop fetches and dispatches until the context ends or the handler
// requeues. It reports true on requeue so the caller reopens the reader
// from the last committed offset; no offset beyond the requeued one is
// ever fetched, so none can be committed past it.
func (c *KafkaConsumer) readLoop(ctx context.Context, topic string, reader kafkaReader, handler DeliveryHandler) bool {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.logger.ErrorwCtx(ctx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			time.Sleep(time.Second)
			continue
		}

		metrics.MessagesConsumedTotal.WithLabelValues(topic).Inc()

		msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)

		delivery := Delivery{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			TypeHint:  typeHint(m.Headers),
		}

		decision := handler(msgCtx, delivery)
		span.End()

		switch decision {
		case Ack:
			if err := reader.CommitMessages(ctx, m); err != nil {
				c.logger.ErrorwCtx(msgCtx, "Failed to commit message",
					"error", err,
					"topic", topic,
					"partition", m.Partition,
					"offset", m.Offset,
				)
			}
		case Requeue:
			metrics.MessagesRequeuedTotal.WithLabelValues(topic).Inc()
			c.logger.WarnwCtx(msgCtx, "Leaving message unacknowledged for redelivery",
				"topic", topic,
				"partition", m.Partition,
				"offset", m.Offset,
			)
			return true
		}
	}
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	var err error
	if reader != nil {
		err = reader.Close()
	}
	c.wg.Wait()
	return err
}

// typeHint pulls the transport-level type header, if the producer
// propagated one. Several header conventions are in the wild.
func typeHint(headers []kafka.Header) string {
	for _, name := range constants.TypeHintHeaders {
		for _, h := range headers {
			if h.Key == name {
				return string(h.Value)
			}
		}
	}
	return ""
}
