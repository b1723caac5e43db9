package broker

import "context"

// Message is a raw record published to a topic.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type Producer interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}

// Consumer delivers batches of raw message values to a handler. Offsets are
// committed only after the handler returns nil or the batch has been moved
// to the dead letter topic.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler BatchHandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type BatchHandlerFunc func(ctx context.Context, payloads [][]byte) error
