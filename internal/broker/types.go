package broker

import (
	"context"
)

// Delivery is one raw message as handed over by the broker: the opaque
// payload bytes, the optional transport-level type hint, and the partition
// coordinates used for acknowledgment.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	TypeHint  string
}

// Decision is the terminal outcome the handler reports for a delivery.
type Decision int

const (
	// Ack commits the offset; the message will not be redelivered.
	Ack Decision = iota
	// Requeue leaves the offset uncommitted so broker-level redelivery
	// retries the whole message later.
	Requeue
)

func (d Decision) String() string {
	if d == Requeue {
		return "requeue"
	}
	return "ack"
}

type DeliveryHandler func(ctx context.Context, d Delivery) Decision

type Consumer interface {
	Consume(ctx context.Context, topic string, handler DeliveryHandler) error
	Close() error
	SetServiceName(name string)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload interface{}) error
	Close() error
}
