package main

import (
	"context"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sf7293/event-connector/configs"
	db2 "github.com/sf7293/event-connector/db"
	"github.com/sf7293/event-connector/internal/archive"
	"github.com/sf7293/event-connector/internal/bootstrap"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/postgres"
	"github.com/sf7293/event-connector/internal/rabbitmq"
	"github.com/sf7293/event-connector/internal/server"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

type brokerHealth interface {
	IsHealthy() bool
}

func main() {
	cfg := configs.InitConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if len(cfg.RabbitMQ.RoutingKeys) == 0 {
		log.Fatal("RABBIT_ROUTING_KEYS must name at least one binding pattern for the archiver")
	}
	bootstrap.SetupLogger(cfg)

	d, err := iofs.New(db2.Migrations, "migrations")
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, cfg.Database.ToMigrationUri())
	if err != nil {
		log.Fatal(err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal(err)
		}
	}
	slog.Info("Migrations ran successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := postgres.NewStorage(ctx, cfg.Database.ToDbConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("Postgres connection has been initialized successfully")

	conn, err := bootstrap.NewBrokerConnection(cfg.RabbitMQ)
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("RabbitMQ connection has been initialized successfully", "address", conn.Address())

	registry, metrics, err := bootstrap.NewMetrics()
	if err != nil {
		log.Fatal(err)
	}

	consumer := rabbitmq.NewConsumer(cfg.ServiceID, conn, rabbitmq.WithConsumerMetrics(metrics))
	if err = consumer.Configure(cfg.RabbitMQ.ToExchange(), cfg.RabbitMQ.RoutingKeys); err != nil {
		log.Fatal(err)
	}
	requestTimeout := time.Duration(cfg.RequestTimeOutInSeconds) * time.Second
	consumer.AttachHandler(archive.NewRecorder(ctx, storage, requestTimeout))

	router := setupHTTPServer(storage, conn, registry)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Starting archiver on port %s\n", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	slog.Info("Archiving events", "exchange", cfg.RabbitMQ.Exchange, "routing_keys", cfg.RabbitMQ.RoutingKeys)
	consumeErr := bootstrap.RunConsumer(ctx, consumer)
	if consumeErr != nil {
		slog.Error("Archive consumer stopped", "error", consumeErr.Error())
	}
	log.Println("Shutting down archiver...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
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
	storage.Close()

	if consumeErr != nil {
		os.Exit(1)
	}
	log.Println("Archiver exiting")
}

func setupHTTPServer(storage domain.EventArchive, broker brokerHealth, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()

	archiveLogic := server.NewArchiveLogic(storage)
	r.GET("/events/:source", func(c *gin.Context) {
		var limit int64
		if limitStr := c.Query("limit"); limitStr != "" {
			var err error
			limit, err = strconv.ParseInt(limitStr, 10, 32)
			if err != nil {
				slog.Error("Invalid limit parameter, error occurred while casting limit str to int", "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
				return
			}
		}

		events, err := archiveLogic.GetEventsBySource(c, c.Param("source"), int32(limit))
		if err != nil {
			if err == errval.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{})
				return
			}

			c.JSON(http.StatusInternalServerError, gin.H{})
			return
		}

		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	r.GET("/readiness", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/liveness", func(c *gin.Context) {
		// Checking health of depending upon infra connections
		err := storage.Ping(c)
		if err != nil {
			slog.Error("Postgresql seem not to be pingable in liveness API", "error", err.Error())
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
