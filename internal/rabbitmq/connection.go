package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
)

const (
	connectionHeartbeat      = 600 * time.Second
	blockedConnectionTimeout = 300 * time.Second
)

// Channel is the part of *amqp.Channel used by consumers and producers.
// A Channel is owned by exactly one goroutine.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type ChannelOpener interface {
	OpenChannel() (Channel, error)
}

type ConnectionConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	VHost    string
}

// URI returns a connection URI to be used with the rabbitmq/amqp091-go package
func (c ConnectionConfig) URI() string {
	vhost := ""
	if c.VHost != "" && c.VHost != "/" {
		vhost = url.PathEscape(c.VHost)
	}

	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		vhost,
	)
}

func (c ConnectionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Connection owns the single AMQP connection of a service and every channel opened on it.
type Connection struct {
	cfg            ConnectionConfig
	blockedTimeout time.Duration

	mu    sync.Mutex
	conn  *amqp.Connection
	state atomic.Int32
}

func NewConnection(cfg ConnectionConfig) *Connection {
	return &Connection{
		cfg:            cfg,
		blockedTimeout: blockedConnectionTimeout,
	}
}

// Connect dials the broker once. Failures are never retried here; callers decide.
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.DialConfig(c.cfg.URI(), amqp.Config{
		Heartbeat: connectionHeartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		c.state.Store(int32(domain.Failed))
		slog.Error("Connection to RabbitMQ is refused by server", "address", c.cfg.Address(), "error", err.Error())
		return fmt.Errorf("%w: %s: %w", errval.ErrConnectionRefused, c.cfg.Address(), err)
	}

	c.conn = conn
	c.state.Store(int32(domain.Connected))
	go c.watchClose(conn.NotifyClose(make(chan *amqp.Error, 1)))
	go c.watchBlocked(conn.NotifyBlocked(make(chan amqp.Blocking, 1)), conn.Close)
	slog.Info("RabbitMQ connection has been established", "address", c.cfg.Address())

	return nil
}

func (c *Connection) OpenChannel() (Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil, errval.ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel on %s: %w", c.cfg.Address(), err)
	}

	return ch, nil
}

func (c *Connection) State() domain.ConnectionState {
	return domain.ConnectionState(c.state.Load())
}

func (c *Connection) Address() string {
	return c.cfg.Address()
}

func (c *Connection) IsHealthy() bool {
	if c.State() != domain.Connected {
		slog.Error("RabbitMQ connection is not established, Rabbit is not healthy", "state", c.State().String())
		return false
	}

	ch, err := c.OpenChannel()
	if err != nil {
		slog.Error("Failed to open RabbitMQ channel, Rabbit is not healthy", "error", err)
		return false
	}
	defer func() {
		err = ch.Close()
		if err != nil {
			slog.Error("Error occurred while closing rabbit channel created for health check", "error", err.Error())
		}
	}()

	return true
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.state.Store(int32(domain.Unconnected))
	err := c.conn.Close()
	c.conn = nil
	if err != nil && err != amqp.ErrClosed {
		return err
	}

	return nil
}

// watchClose marks the connection failed when the broker closes it unexpectedly.
// A graceful Close closes the notify channel without sending.
func (c *Connection) watchClose(closeCh <-chan *amqp.Error) {
	amqpErr, ok := <-closeCh
	if !ok || amqpErr == nil {
		return
	}

	c.state.Store(int32(domain.Failed))
	slog.Error("RabbitMQ connection closed unexpectedly", "address", c.cfg.Address(), "code", amqpErr.Code, "reason", amqpErr.Reason)
}

// watchBlocked tears the connection down when the broker keeps it blocked longer than blockedTimeout.
func (c *Connection) watchBlocked(blockings <-chan amqp.Blocking, closeConn func() error) {
	var timer *time.Timer
	var expired <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			expired = nil
		}
	}

	for {
		select {
		case b, ok := <-blockings:
			if !ok {
				stopTimer()
				return
			}

			if b.Active {
				slog.Warn("RabbitMQ connection is blocked by the broker", "address", c.cfg.Address(), "reason", b.Reason)
				if timer == nil {
					timer = time.NewTimer(c.blockedTimeout)
					expired = timer.C
				}
				continue
			}

			slog.Info("RabbitMQ connection is unblocked", "address", c.cfg.Address())
			stopTimer()
		case <-expired:
			c.state.Store(int32(domain.Failed))
			slog.Error("RabbitMQ connection stayed blocked too long, closing it", "address", c.cfg.Address(), "timeout", c.blockedTimeout.String())
			err := closeConn()
			if err != nil {
				slog.Error("error occurred while closing blocked connection", "error", err.Error())
			}
			return
		}
	}
}
