package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/metrics"
)

const eventContentType = "event/json"

type workerState int32

const (
	workerRunning workerState = iota
	workerDraining
	workerStopped
)

func (s workerState) String() string {
	switch s {
	case workerRunning:
		return "running"
	case workerDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// eventDispatcher is the only reader of the pending queue and the only user of the event channel.
type eventDispatcher struct {
	serviceID string
	exchange  string
	channel   Channel
	queue     *pendingQueue
	metrics   *metrics.Metrics
	state     atomic.Int32
}

func newEventDispatcher(serviceID, exchange string, channel Channel, queue *pendingQueue, m *metrics.Metrics) *eventDispatcher {
	return &eventDispatcher{
		serviceID: serviceID,
		exchange:  exchange,
		channel:   channel,
		queue:     queue,
		metrics:   m,
	}
}

// run publishes items in FIFO order until the queue is closed and drained.
// The first failure stops the dispatcher; nothing is retried.
func (d *eventDispatcher) run() error {
	defer d.state.Store(int32(workerStopped))

	for {
		item, ok := d.queue.pop()
		if !ok {
			slog.Info("Event dispatcher drained pending events, stopping", "service_id", d.serviceID)
			return nil
		}

		err := d.publish(item)
		if err != nil {
			slog.Error("Event dispatcher failed, no further events will be published", "service_id", d.serviceID, "routing_key", item.routingKey, "error", err.Error())
			return err
		}
	}
}

// drain rejects new items; run returns once everything already queued is published.
func (d *eventDispatcher) drain() {
	d.state.CompareAndSwap(int32(workerRunning), int32(workerDraining))
	d.queue.close()
}

func (d *eventDispatcher) currentState() workerState {
	return workerState(d.state.Load())
}

func (d *eventDispatcher) publish(item pendingItem) error {
	body, err := item.event.Serialize()
	if err != nil {
		d.metrics.IncError("serialize")
		return fmt.Errorf("serialize event for %q: %w", item.routingKey, err)
	}

	slog.Debug("router -> RabbitMQ broker", "routing_key", item.routingKey, "body", string(body))
	err = d.channel.PublishWithContext(
		context.Background(),
		d.exchange,      // exchange
		item.routingKey, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType: eventContentType,
			AppId:       d.serviceID,
			Body:        body,
		})
	if err != nil {
		d.metrics.IncError("publish")
		return wrapPublishError(fmt.Sprintf("publish event to %q", item.routingKey), err)
	}

	d.metrics.IncEventsPublished()
	return nil
}

func wrapPublishError(op string, err error) error {
	if isChannelClosed(err) {
		return fmt.Errorf("%s: %w: %w", op, errval.ErrChannelClosed, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isChannelClosed(err error) bool {
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}

	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr)
}
