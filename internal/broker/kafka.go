package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/logger"
	apperrors "loyalty/pkg/errors"
	"loyalty/pkg/logging"
	"loyalty/pkg/metrics"
	"loyalty/pkg/retry"
	"loyalty/pkg/tracing"
)

const (
	fetchErrorBackoff = time.Second
	commitTimeout     = 10 * time.Second
)

const (
	HeaderDLQReason          = "dlq_reason"
	HeaderDLQSourceTopic     = "dlq_source_topic"
	HeaderDLQSourcePartition = "dlq_source_partition"
	HeaderDLQSourceOffset    = "dlq_source_offset"
	HeaderDLQTimestamp       = "dlq_timestamp"
)

// messageReader is the subset of *kafka.Reader used by KafkaConsumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// messageWriter is the subset of *kafka.Writer used by KafkaProducer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer      messageWriter
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return newKafkaProducer(w, log)
}

func newKafkaProducer(w messageWriter, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{writer: w, logger: log, serviceName: "unknown"}
}

func (p *KafkaProducer) SetServiceName(name string) {
	p.serviceName = name
}

func (p *KafkaProducer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	out := make([]kafka.Message, 0, len(msgs))
	now := time.Now()
	for _, msg := range msgs {
		out = append(out, kafka.Message{
			Topic:   msg.Topic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: tracing.InjectTraceContext(ctx, toKafkaHeaders(msg.Headers)),
			Time:    now,
		})
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("failed to write kafka messages: %w", err)
	}

	elapsed := time.Since(start)
	for _, msg := range msgs {
		metrics.IncKafkaMessagesWritten(p.serviceName, msg.Topic)
		metrics.ObserveKafkaMessageSize(p.serviceName, msg.Topic, "out", len(msg.Value))
	}
	metrics.ObserveKafkaWriteDuration(p.serviceName, msgs[0].Topic, elapsed)

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, 0, len(headers)+2)
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	return out
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	newReader   func(topic string) messageReader
	reader      messageReader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	newReader := func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     batchWait(cfg),
			StartOffset: kafka.FirstOffset,
		})
	}

	var dlq Producer
	if cfg.DLQTopic != "" {
		dlq = NewKafkaProducer(cfg, log)
	}

	return newKafkaConsumer(cfg, log, newReader, dlq)
}

func newKafkaConsumer(cfg config.KafkaConfig, log logger.Logger, newReader func(topic string) messageReader, dlq Producer) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         cfg,
		newReader:   newReader,
		logger:      log,
		dlqProducer: dlq,
		serviceName: "unknown",
	}
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
	if p, ok := c.dlqProducer.(*KafkaProducer); ok {
		p.SetServiceName(name)
	}
}

func batchSize(cfg config.KafkaConfig) int {
	if cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return constants.DefaultBatchSize
}

func batchWait(cfg config.KafkaConfig) time.Duration {
	if cfg.BatchWait > 0 {
		return cfg.BatchWait
	}
	return constants.DefaultBatchWait
}

// Consume blocks until ctx is done, the reader is closed, or a batch fails
// with no dead letter topic to move it to. Only the last case returns an
// error; the failed batch stays uncommitted and is redelivered on restart.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler BatchHandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"batch_size", batchSize(c.cfg),
		"batch_wait", batchWait(c.cfg),
		"service_name", c.serviceName,
	)

	c.reader = c.newReader(topic)
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

	for {
		start := time.Now()
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "reader closed",
				)
				return nil
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			select {
			case <-ctx.Done():
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}
		metrics.ObserveKafkaReadDuration(c.serviceName, topic, time.Since(start))

		if err := c.handleBatch(ctx, topic, batch, handler); err != nil {
			return err
		}
	}
}

// fetchBatch blocks for the first message, then collects more until the
// batch is full or the batch wait has elapsed since the first arrival.
func (c *KafkaConsumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	size := batchSize(c.cfg)
	batch := make([]kafka.Message, 0, size)
	batch = append(batch, first)

	waitCtx, cancel := context.WithTimeout(ctx, batchWait(c.cfg))
	defer cancel()

	for len(batch) < size {
		m, err := c.reader.FetchMessage(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if waitCtx.Err() == nil {
				c.logger.WarnwCtx(ctx, "Fetch interrupted, processing partial batch",
					"error", err,
					"size", len(batch),
				)
			}
			break
		}
		batch = append(batch, m)
	}

	return batch, nil
}

func (c *KafkaConsumer) handleBatch(ctx context.Context, topic string, batch []kafka.Message, handler BatchHandlerFunc) error {
	headers := make([][]kafka.Header, len(batch))
	payloads := make([][]byte, len(batch))
	for i, m := range batch {
		headers[i] = m.Headers
		payloads[i] = m.Value
		metrics.IncKafkaMessagesRead(c.serviceName, topic)
		metrics.ObserveKafkaMessageSize(c.serviceName, topic, "in", len(m.Value))
	}

	batchCtx, span := tracing.StartBatchSpan(ctx, "kafka.consume_batch", headers)
	defer span.End()
	batchCtx = logging.WithServiceName(batchCtx, c.serviceName)

	if err := c.processBatchWithRetry(batchCtx, topic, payloads, handler); err != nil {
		if ctx.Err() != nil {
			c.logger.InfowCtx(batchCtx, "Shutdown during batch processing, leaving offsets uncommitted",
				"topic", topic,
				"size", len(batch),
			)
			return nil
		}

		span.RecordError(err)
		c.logger.ErrorwCtx(batchCtx, "Failed to process batch after retries",
			"error", err,
			"topic", topic,
			"size", len(batch),
		)

		if c.dlqProducer == nil || c.cfg.DLQTopic == "" {
			return fmt.Errorf("batch of %d messages from %s failed: %w", len(batch), topic, err)
		}
		if dlqErr := c.sendToDLQ(batchCtx, batch, err, topic); dlqErr != nil {
			return fmt.Errorf("batch of %d messages from %s failed and could not be dead-lettered: %w", len(batch), topic, dlqErr)
		}
	}

	c.commit(ctx, topic, batch)
	return nil
}

// commit survives shutdown so that a batch the handler finished is not
// redelivered needlessly.
func (c *KafkaConsumer) commit(ctx context.Context, topic string, batch []kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if err := c.reader.CommitMessages(commitCtx, batch...); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to commit batch",
			"error", err,
			"topic", topic,
			"size", len(batch),
		)
		return
	}

	last := batch[len(batch)-1]
	metrics.SetKafkaConsumerLag(c.serviceName, topic, last.Partition, c.reader.Stats().Lag)
}

func (c *KafkaConsumer) Close() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *KafkaConsumer) retryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()

	if c.cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = c.cfg.Retry.MaxAttempts
	}
	if c.cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = c.cfg.Retry.InitialInterval
	}
	if c.cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = c.cfg.Retry.MaxInterval
	}
	if c.cfg.Retry.Multiplier > 0 {
		policy.Multiplier = c.cfg.Retry.Multiplier
	}
	if c.cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = c.cfg.Retry.MaxElapsedTime
	}
	return policy
}

func (c *KafkaConsumer) processBatchWithRetry(ctx context.Context, topic string, payloads [][]byte, handler BatchHandlerFunc) error {
	policy := c.retryPolicy()

	return retry.Do(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during batch processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, payloads)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying batch processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func dlqReason(err error) string {
	var fatal retry.FatalError
	if errors.As(err, &fatal) && fatal.IsFatal() {
		return "non_retryable"
	}
	return "max_retries_exceeded"
}

// sendToDLQ republishes the raw values of a failed batch with headers that
// point back at their source offsets.
func (c *KafkaConsumer) sendToDLQ(ctx context.Context, batch []kafka.Message, cause error, sourceTopic string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	msgs := make([]Message, 0, len(batch))
	for _, m := range batch {
		msgs = append(msgs, Message{
			Topic: c.cfg.DLQTopic,
			Key:   m.Key,
			Value: m.Value,
			Headers: map[string]string{
				HeaderDLQReason:          cause.Error(),
				HeaderDLQSourceTopic:     sourceTopic,
				HeaderDLQSourcePartition: strconv.Itoa(m.Partition),
				HeaderDLQSourceOffset:    strconv.FormatInt(m.Offset, 10),
				HeaderDLQTimestamp:       now,
			},
		})
	}

	if err := c.dlqProducer.Publish(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	reason := dlqReason(cause)
	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, reason).Add(float64(len(batch)))
	c.logger.InfowCtx(ctx, "Batch sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"size", len(batch),
		"reason", reason,
	)

	return nil
}
