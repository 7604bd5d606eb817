package main

import (
	"context"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sf7293/event-connector/configs"
	"github.com/sf7293/event-connector/internal/bootstrap"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/rabbitmq"
	"github.com/sf7293/event-connector/internal/server"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type eventProducer interface {
	domain.EventSubmitter
	// Err reports the first failure of a background publishing worker.
	Err() error
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

	conn, err := bootstrap.NewBrokerConnection(cfg.RabbitMQ)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		err = conn.Close()
		if err != nil {
			slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
		}
	}()
	slog.Info("RabbitMQ connection has been initialized successfully", "address", conn.Address())

	registry, m, err := bootstrap.NewMetrics()
	if err != nil {
		log.Fatal(err)
	}

	producer := rabbitmq.NewProducer(cfg.ServiceID, conn, rabbitmq.WithProducerMetrics(m))
	if err = producer.Configure(cfg.RabbitMQ.ToExchange()); err != nil {
		log.Fatal(err)
	}
	if err = producer.StartProducer(); err != nil {
		log.Fatal(err)
	}
	slog.Info("Producer has been started", "exchange", cfg.RabbitMQ.Exchange)

	router := setupHTTPServer(producer, conn, registry)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		log.Printf("Starting gateway on port %s\n", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Println("Shutting down gateway...")
	case err := <-producer.Fatal():
		// Monitors treat a missing heartbeat as a dead service, so the process must die with it.
		slog.Error("Heartbeat publishing failed, exiting", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeOutInSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err.Error())
	}

	if err := producer.Close(); err != nil {
		slog.Error("Producer stopped with an error", "error", err.Error())
	}

	log.Println("Gateway exiting")
}

func setupHTTPServer(producer eventProducer, broker brokerHealth, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("validate_routing_key", validateRoutingKey)
		if err != nil {
			log.Fatal("failed to bind validation rule of validate_routing_key")
		}
	}

	serverLogic := server.NewServerLogic(producer)
	r.POST("/events", func(c *gin.Context) {
		req := domain.RouterRequestSubmitEvent{}
		// Request binding and validation
		err := c.ShouldBindBodyWith(&req, binding.JSON)
		if err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{})
			return
		}

		serverLogic.SubmitEvent(c, req)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	r.GET("/readiness", func(c *gin.Context) {
		if err := producer.Err(); err != nil {
			slog.Error("Producer is not publishing", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/liveness", func(c *gin.Context) {
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

var validateRoutingKey validator.Func = func(fl validator.FieldLevel) bool {
	return server.IsPublishableRoutingKey(fl.Field().String())
}
