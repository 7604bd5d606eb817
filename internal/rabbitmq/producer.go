package rabbitmq

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/metrics"
	"golang.org/x/sync/errgroup"
)

type ProducerOption func(*Producer)

// WithHeartbeatInterval overrides the heartbeat cadence, mostly for tests.
// Non-positive intervals are ignored.
func WithHeartbeatInterval(interval time.Duration) ProducerOption {
	return func(p *Producer) {
		if interval <= 0 {
			slog.Warn("Ignoring non-positive heartbeat interval", "interval", interval.String())
			return
		}
		p.heartbeatInterval = interval
	}
}

func WithProducerMetrics(m *metrics.Metrics) ProducerOption {
	return func(p *Producer) {
		p.metrics = m
	}
}

// Producer publishes events from any goroutine through a single dispatch
// worker and emits heartbeats from a second, independent worker.
type Producer struct {
	serviceID         string
	opener            ChannelOpener
	heartbeatInterval time.Duration
	metrics           *metrics.Metrics

	exchange         domain.Exchange
	eventChannel     Channel
	heartbeatChannel Channel

	queue       *pendingQueue
	dispatcher  *eventDispatcher
	stopping    atomic.Bool
	stopWorkers chan struct{}
	fatal       chan error
	group       errgroup.Group

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopErr  error
	eventErr atomic.Pointer[error]
}

func NewProducer(serviceID string, opener ChannelOpener, opts ...ProducerOption) *Producer {
	p := &Producer{
		serviceID:         serviceID,
		opener:            opener,
		heartbeatInterval: HeartbeatInterval,
		queue:             newPendingQueue(),
		stopWorkers:       make(chan struct{}),
		fatal:             make(chan error, 1),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Configure declares the exchange on a dedicated event channel and a dedicated heartbeat channel.
func (p *Producer) Configure(exchange domain.Exchange) (err error) {
	err = validateExchange(exchange)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errval.ErrProducerStarted
	}
	if p.eventChannel != nil {
		return errval.ErrConfigured
	}

	eventChannel, err := openDeclaredChannel(p.opener, exchange)
	if err != nil {
		return fmt.Errorf("configure event channel: %w", err)
	}

	heartbeatChannel, err := openDeclaredChannel(p.opener, exchange)
	if err != nil {
		closeChannel(eventChannel)
		return fmt.Errorf("configure heartbeat channel: %w", err)
	}

	p.exchange = exchange
	p.eventChannel = eventChannel
	p.heartbeatChannel = heartbeatChannel
	slog.Info("Producer channels are configured", "service_id", p.serviceID, "exchange", exchange.Name, "exchange_type", exchange.Kind)

	return nil
}

// Submit queues the event under "{serviceID}.{routingKey}". It never blocks
// and silently drops the event once StopProducer has been called.
func (p *Producer) Submit(event domain.Event, routingKey string) {
	if event == nil {
		slog.Warn("Ignoring nil event", "service_id", p.serviceID, "routing_key", routingKey)
		return
	}

	if p.stopping.Load() {
		p.metrics.IncEventsDropped()
		return
	}

	item := pendingItem{
		event:      event,
		routingKey: p.serviceID + "." + routingKey,
	}
	if !p.queue.push(item) {
		p.metrics.IncEventsDropped()
		return
	}

	p.metrics.IncEventsSubmitted()
}

// StartProducer launches the dispatch and heartbeat workers and returns immediately.
func (p *Producer) StartProducer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.eventChannel == nil || p.heartbeatChannel == nil {
		return errval.ErrNotConfigured
	}
	if p.started {
		return errval.ErrProducerStarted
	}
	if p.stopping.Load() {
		return errval.ErrProducerStopped
	}
	p.started = true

	p.dispatcher = newEventDispatcher(p.serviceID, p.exchange.Name, p.eventChannel, p.queue, p.metrics)
	p.group.Go(func() error {
		err := p.dispatcher.run()
		if err != nil {
			// nothing reads the queue anymore; later submits are dropped
			p.metrics.AddEventsDropped(p.queue.discard())
			p.eventErr.Store(&err)
		}
		return err
	})
	slog.Info("Service started producer", "service_id", p.serviceID)

	hb := &heartbeat{
		serviceID: p.serviceID,
		exchange:  p.exchange.Name,
		channel:   p.heartbeatChannel,
		interval:  p.heartbeatInterval,
		stop:      p.stopWorkers,
		fatal:     p.fatal,
		metrics:   p.metrics,
	}
	p.group.Go(hb.run)
	slog.Info("Service started heartbeat", "service_id", p.serviceID, "interval", p.heartbeatInterval.String())

	return nil
}

// StopProducer stops accepting events, lets the dispatcher publish
// everything queued so far and waits for both workers. It returns the
// first worker failure, if any. Calling it again returns the same result.
func (p *Producer) StopProducer() error {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)
		close(p.stopWorkers)

		p.mu.Lock()
		dispatcher := p.dispatcher
		p.mu.Unlock()

		unpublished := 0
		if dispatcher != nil {
			dispatcher.drain()
		} else {
			// never started: queued events have no publisher
			unpublished = p.queue.discard()
			p.metrics.AddEventsDropped(unpublished)
		}

		p.stopErr = p.group.Wait()
		slog.Info("Service stopped producer", "service_id", p.serviceID, "unpublished_events", unpublished)
	})

	return p.stopErr
}

// Fatal delivers at most one error: the loss of the heartbeat channel.
// The owner is expected to terminate the process when it fires.
func (p *Producer) Fatal() <-chan error {
	return p.fatal
}

// Err returns the error that stopped the event dispatcher, if it stopped on failure.
func (p *Producer) Err() error {
	errPtr := p.eventErr.Load()
	if errPtr == nil {
		return nil
	}

	return *errPtr
}

func (p *Producer) Close() error {
	err := p.StopProducer()

	p.mu.Lock()
	defer p.mu.Unlock()
	closeChannel(p.eventChannel)
	closeChannel(p.heartbeatChannel)

	return err
}

func openDeclaredChannel(opener ChannelOpener, exchange domain.Exchange) (Channel, error) {
	ch, err := opener.OpenChannel()
	if err != nil {
		return nil, err
	}

	err = declareExchange(ch, exchange)
	if err != nil {
		closeChannel(ch)
		return nil, err
	}

	return ch, nil
}
