package main

import (
	"context"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sf7293/event-connector/configs"
	"github.com/sf7293/event-connector/internal/bootstrap"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/monitor"
	"github.com/sf7293/event-connector/internal/rabbitmq"
	"github.com/sf7293/event-connector/internal/redis"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type livenessReader interface {
	Liveness(service string) (monitor.Liveness, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type brokerHealth interface {
	IsHealthy() bool
}

func main() {
	cfg := configs.InitConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	bootstrap.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.NewClient(ctx, cfg.RedisConfig.ToRedisConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	if err = redisClient.Ping(ctx); err != nil {
		log.Fatal(err)
	}
	slog.Info("Redis connection has been initialized successfully")

	conn, err := bootstrap.NewBrokerConnection(cfg.RabbitMQ)
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("RabbitMQ connection has been initialized successfully", "address", conn.Address())

	registry, m, err := bootstrap.NewMetrics()
	if err != nil {
		log.Fatal(err)
	}

	recorder := monitor.NewHeartbeatRecorder(redisClient, time.Duration(cfg.Monitor.HeartbeatTTLSeconds)*time.Second)
	consumer := rabbitmq.NewConsumer(cfg.ServiceID, conn, rabbitmq.WithConsumerMetrics(m))
	if err = consumer.Configure(cfg.RabbitMQ.ToExchange(), []string{rabbitmq.HeartbeatRoutingKey}); err != nil {
		log.Fatal(err)
	}
	consumer.AttachHandler(recorder)

	router := setupHTTPServer(recorder, redisClient, conn, registry)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Starting monitor on port %s\n", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	slog.Info("Listening for heartbeats", "exchange", cfg.RabbitMQ.Exchange, "routing_key", rabbitmq.HeartbeatRoutingKey)
	consumeErr := bootstrap.RunConsumer(ctx, consumer)
	if consumeErr != nil {
		slog.Error("Heartbeat consumer stopped", "error", consumeErr.Error())
	}
	log.Println("Shutting down monitor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeOutInSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err.Error())
	}
	if err := consumer.Close(); err != nil {
		slog.Error("An error occurred while closing consumer channel", "error", err.Error())
	}
	if err := conn.Close(); err != nil {
		slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
	}
	if err := redisClient.Close(); err != nil {
		slog.Error("An error occurred while closing Redis connection", "error", err.Error())
	}

	if consumeErr != nil {
		os.Exit(1)
	}
	log.Println("Monitor exiting")
}

func setupHTTPServer(reader livenessReader, store pinger, broker brokerHealth, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()

	r.GET("/services/:id/liveness", func(c *gin.Context) {
		liveness, err := reader.Liveness(c.Param("id"))
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, liveness)
				return
			}

			slog.Error("error occurred while reading liveness", "service", c.Param("id"), "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{})
			return
		}

		c.JSON(http.StatusOK, liveness)
	})

	r.GET("/readiness", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/liveness", func(c *gin.Context) {
		// Checking health of depending upon infra connections
		err := store.Ping(c)
		if err != nil {
			slog.Error("Redis seem not to be pingable in liveness API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		if !broker.IsHealthy() {
			slog.Error("Rabbit is not healthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}
