package rabbitmq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publishedMessage struct {
	exchange string
	key      string
	msg      amqp.Publishing
	at       time.Time
}

type binding struct {
	queue    string
	key      string
	exchange string
}

// fakeChannel records every call the connector makes on a channel.
type fakeChannel struct {
	mu sync.Mutex

	declaredExchanges []string
	exchangeKinds     []string
	declaredQueue     string
	exclusiveQueue    bool
	bindings          []binding
	consumedQueue     string
	consumerTag       string
	autoAck           bool
	cancelled         []string
	closed            bool

	deliveries chan amqp.Delivery
	published  []publishedMessage
	publishErr error
	// failAfter makes every publish after the first failAfter ones return publishErr.
	failAfter  int
	declareErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		deliveries: make(chan amqp.Delivery, 16),
		failAfter:  -1,
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.declareErr != nil {
		return f.declareErr
	}
	f.declaredExchanges = append(f.declaredExchanges, name)
	f.exchangeKinds = append(f.exchangeKinds, kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.declaredQueue = name
	f.exclusiveQueue = exclusive
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bindings = append(f.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.consumedQueue = queue
	f.consumerTag = consumer
	f.autoAck = autoAck
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, consumer)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil && f.failAfter >= 0 && len(f.published) >= f.failAfter {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{exchange: exchange, key: key, msg: msg, at: time.Now()})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *fakeChannel) publishedMessages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeChannel) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.published)
}

func (f *fakeChannel) failPublishing(err error, after int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publishErr = err
	f.failAfter = after
}

type fakeOpener struct {
	mu       sync.Mutex
	channels []*fakeChannel
	opened   int
	err      error
}

func newFakeOpener(channels ...*fakeChannel) *fakeOpener {
	return &fakeOpener{channels: channels}
}

func (o *fakeOpener) OpenChannel() (Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return nil, o.err
	}
	if o.opened >= len(o.channels) {
		o.channels = append(o.channels, newFakeChannel())
	}
	ch := o.channels[o.opened]
	o.opened++
	return ch, nil
}

type stringEvent string

func (e stringEvent) Serialize() ([]byte, error) {
	return []byte(e), nil
}

type failingEvent struct{ err error }

func (e failingEvent) Serialize() ([]byte, error) {
	return nil, e.err
}
