package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sf7293/event-connector/configs"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/metrics"
	"github.com/sf7293/event-connector/internal/rabbitmq"
	"golang.org/x/sync/errgroup"
)

func SetupLogger(cfg *configs.Config) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(h).With("service_id", cfg.ServiceID))
}

// Connector is satisfied by *rabbitmq.Connection.
type Connector interface {
	Connect() error
}

// ConnectBroker applies the service's own restart policy on top of a
// connector that never retries. With zero retries a refusal is returned at once.
func ConnectBroker(conn Connector, retries uint64, interval time.Duration) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := conn.Connect()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errval.ErrConnectionRefused) {
			return backoff.Permanent(err)
		}

		slog.Error("failed to connect to RabbitMQ", "attempt", attempt, "max_retries", retries, "error", err.Error())
		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries))
}

func NewBrokerConnection(cfg configs.RabbitMQConfig) (*rabbitmq.Connection, error) {
	conn := rabbitmq.NewConnection(cfg.ToConnectionConfig())
	err := ConnectBroker(conn, cfg.ConnectRetries, time.Duration(cfg.ConnectRetryIntervalSeconds)*time.Second)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func NewMetrics() (*prometheus.Registry, *metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, err
	}

	return reg, m, nil
}

// ConsumerRunner is satisfied by *rabbitmq.Consumer.
type ConsumerRunner interface {
	StartConsumer() error
	StopConsumer()
}

// RunConsumer blocks until the consumer fails or ctx is done. The consumer is
// always stopped before it returns.
func RunConsumer(ctx context.Context, consumer ConsumerRunner) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return consumer.StartConsumer()
	})
	g.Go(func() error {
		<-gctx.Done()
		consumer.StopConsumer()
		return nil
	})

	return g.Wait()
}
