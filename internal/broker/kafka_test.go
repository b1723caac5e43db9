package broker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/config"
	"loyalty/internal/logger"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    bool
	notify    chan struct{}
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{notify: make(chan struct{})}
	for i, v := range values {
		r.pending = append(r.pending, kafka.Message{Topic: "transactions", Partition: 0, Offset: int64(i), Value: []byte(v)})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return kafka.Message{}, io.EOF
	}
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	notify := r.notify
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-notify:
		return kafka.Message{}, io.EOF
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{} }

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.notify)
	}
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, msgs ...Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		GroupID:   "reward-consumer",
		BatchSize: 2,
		BatchWait: 20 * time.Millisecond,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1,
		},
	}
}

func newTestConsumer(cfg config.KafkaConfig, reader *fakeReader, dlq Producer) *KafkaConsumer {
	c := newKafkaConsumer(cfg, logger.NopLogger(), func(string) messageReader { return reader }, dlq)
	c.SetServiceName("reward-consumer")
	return c
}

func consumeAsync(ctx context.Context, c *KafkaConsumer, handler BatchHandlerFunc) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, "transactions", handler) }()
	return done
}

func TestKafkaConsumer_BatchesAndCommits(t *testing.T) {
	reader := newFakeReader("a", "b", "c", "d", "e")
	c := newTestConsumer(testKafkaConfig(), reader, nil)

	var mu sync.Mutex
	var sizes []int
	handler := func(_ context.Context, payloads [][]byte) error {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(payloads))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := consumeAsync(ctx, c, handler)

	assert.Eventually(t, func() bool { return reader.committedCount() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestKafkaConsumer_RetriesWholeBatch(t *testing.T) {
	reader := newFakeReader("a", "b")
	c := newTestConsumer(testKafkaConfig(), reader, nil)

	var mu sync.Mutex
	calls := 0
	handler := func(_ context.Context, payloads [][]byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.Len(t, payloads, 2)
		if calls < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := consumeAsync(ctx, c, handler)

	assert.Eventually(t, func() bool { return reader.committedCount() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestKafkaConsumer_ExhaustedBatchGoesToDLQ(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.DLQTopic = "transactions_dlq"
	reader := newFakeReader("a", "b")
	dlq := &fakeProducer{}
	c := newTestConsumer(cfg, reader, dlq)

	handler := func(context.Context, [][]byte) error { return errors.New("store unavailable") }

	ctx, cancel := context.WithCancel(context.Background())
	done := consumeAsync(ctx, c, handler)

	assert.Eventually(t, func() bool { return reader.committedCount() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	require.Len(t, dlq.msgs, 2)
	assert.Equal(t, "transactions_dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("a"), dlq.msgs[0].Value)
	assert.Equal(t, "store unavailable", dlq.msgs[0].Headers[HeaderDLQReason])
	assert.Equal(t, "transactions", dlq.msgs[0].Headers[HeaderDLQSourceTopic])
	assert.Equal(t, "1", dlq.msgs[1].Headers[HeaderDLQSourceOffset])
}

func TestKafkaConsumer_StopsWithoutDLQ(t *testing.T) {
	reader := newFakeReader("a", "b")
	c := newTestConsumer(testKafkaConfig(), reader, nil)

	handler := func(context.Context, [][]byte) error { return errors.New("store unavailable") }

	err := c.Consume(context.Background(), "transactions", handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Zero(t, reader.committedCount())
}

func TestKafkaConsumer_DLQFailureStops(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.DLQTopic = "transactions_dlq"
	reader := newFakeReader("a")
	c := newTestConsumer(cfg, reader, &fakeProducer{err: errors.New("broker down")})

	handler := func(context.Context, [][]byte) error { return errors.New("store unavailable") }

	err := c.Consume(context.Background(), "transactions", handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not be dead-lettered")
	assert.Zero(t, reader.committedCount())
}

func TestKafkaConsumer_RecoversPanics(t *testing.T) {
	reader := newFakeReader("a")
	c := newTestConsumer(testKafkaConfig(), reader, nil)

	handler := func(context.Context, [][]byte) error { panic("boom") }

	err := c.Consume(context.Background(), "transactions", handler)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))
}

func TestKafkaConsumer_ReturnsWhenReaderClosed(t *testing.T) {
	reader := newFakeReader()
	c := newTestConsumer(testKafkaConfig(), reader, nil)

	done := consumeAsync(context.Background(), c, func(context.Context, [][]byte) error { return nil })
	require.NoError(t, reader.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after the reader closed")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w, logger.NopLogger())

	err := p.Publish(context.Background(), Message{
		Topic:   "transactions",
		Key:     []byte("t1"),
		Value:   []byte(`{"user_id":"u1"}`),
		Headers: map[string]string{"b": "2", "a": "1"},
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "transactions", w.msgs[0].Topic)
	require.Len(t, w.msgs[0].Headers, 2)
	assert.Equal(t, "a", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "b", w.msgs[0].Headers[1].Key)

	assert.NoError(t, p.Publish(context.Background()))
}

func TestNewConsumer_UnknownType(t *testing.T) {
	_, err := NewConsumer(config.BrokerConfig{Type: "rabbitmq"}, logger.NopLogger())
	assert.EqualError(t, err, "unknown broker type: rabbitmq")
}
