package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/metrics"
)

type ConsumerOption func(*Consumer)

func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// Consumer binds an exclusive queue named after the service to an exchange
// and hands every delivery to the attached handler. Deliveries are
// auto-acknowledged: a message counts as delivered before the handler runs.
type Consumer struct {
	serviceID string
	opener    ChannelOpener
	metrics   *metrics.Metrics

	channel    Channel
	queueName  string
	deliveries <-chan amqp.Delivery

	handlerMu sync.RWMutex
	handler   domain.Handler

	stop     chan struct{}
	stopOnce sync.Once
}

func NewConsumer(serviceID string, opener ChannelOpener, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		serviceID: serviceID,
		opener:    opener,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Configure declares the exchange and the service queue, binds the queue
// once per routing-key pattern and registers the consumer with auto-ack.
func (c *Consumer) Configure(exchange domain.Exchange, routingKeys []string) (err error) {
	err = validateExchange(exchange)
	if err != nil {
		return err
	}
	if c.deliveries != nil {
		return errval.ErrConfigured
	}

	ch, err := c.opener.OpenChannel()
	if err != nil {
		return fmt.Errorf("configure consumer channel: %w", err)
	}
	defer func() {
		if err != nil {
			closeChannel(ch)
		}
	}()

	err = declareExchange(ch, exchange)
	if err != nil {
		return err
	}

	queue, err := ch.QueueDeclare(
		c.serviceID, // name
		false,       // durable
		false,       // delete when unused
		true,        // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", c.serviceID, err)
	}

	for _, key := range routingKeys {
		err = ch.QueueBind(queue.Name, key, exchange.Name, false, nil)
		if err != nil {
			return fmt.Errorf("bind queue %q to %q: %w", queue.Name, key, err)
		}
		slog.Info("Queue is bound to routing key", "queue", queue.Name, "exchange", exchange.Name, "routing_key", key)
	}

	deliveries, err := ch.ConsumeWithContext(
		context.Background(),
		queue.Name,  // queue
		c.serviceID, // consumer
		true,        // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("consume queue %q: %w", queue.Name, err)
	}

	c.channel = ch
	c.queueName = queue.Name
	c.deliveries = deliveries

	return nil
}

// AttachHandler may be called again while consuming; the next delivery uses the new handler.
func (c *Consumer) AttachHandler(handler domain.Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	c.handler = handler
}

// StartConsumer blocks until StopConsumer is called, the delivery stream
// closes or the handler fails. Handler failures end consumption.
func (c *Consumer) StartConsumer() error {
	if c.deliveries == nil {
		return errval.ErrNotConfigured
	}
	if c.currentHandler() == nil {
		return errval.ErrNoHandler
	}

	slog.Info("Service started consumer", "service_id", c.serviceID, "queue", c.queueName)
	defer c.cancel()

	for {
		select {
		case <-c.stop:
			return nil
		default:
		}

		select {
		case <-c.stop:
			return nil
		case d, ok := <-c.deliveries:
			if !ok {
				return fmt.Errorf("%w: delivery stream of queue %q ended", errval.ErrChannelClosed, c.queueName)
			}

			err := c.dispatch(d)
			if err != nil {
				return err
			}
		}
	}
}

// StopConsumer lets the in-flight callback finish; undelivered messages stay with the broker.
func (c *Consumer) StopConsumer() {
	c.stopOnce.Do(func() {
		close(c.stop)
		slog.Info("Service consumer stop requested", "service_id", c.serviceID)
	})
}

func (c *Consumer) Close() error {
	c.StopConsumer()
	closeChannel(c.channel)
	return nil
}

func (c *Consumer) dispatch(d amqp.Delivery) error {
	if !utf8.Valid(d.Body) {
		c.metrics.IncError("decode")
		return fmt.Errorf("%w: routing key %q", errval.ErrInvalidPayload, d.RoutingKey)
	}

	message := string(d.Body)
	slog.Debug("Message received from broker", "service_id", c.serviceID, "routing_key", d.RoutingKey, "app_id", d.AppId, "body", message)
	c.metrics.IncDeliveriesConsumed()

	var err error
	handler := c.currentHandler()
	if handler == nil {
		return errval.ErrNoHandler
	}
	if sourced, ok := handler.(domain.SourcedHandler); ok {
		err = sourced.ConsumeFrom(d.AppId, d.RoutingKey, message)
	} else {
		err = handler.ConsumeEvent(message)
	}
	if err != nil {
		c.metrics.IncError("handler")
		slog.Error("Handler failed, consumer is stopping", "service_id", c.serviceID, "routing_key", d.RoutingKey, "error", err.Error())
		return fmt.Errorf("handle message with routing key %q: %w", d.RoutingKey, err)
	}

	return nil
}

func (c *Consumer) currentHandler() domain.Handler {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()

	return c.handler
}

func (c *Consumer) cancel() {
	err := c.channel.Cancel(c.serviceID, false)
	if err != nil {
		slog.Debug("Consumer cancel was not acknowledged", "service_id", c.serviceID, "error", err.Error())
	}
}
