package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-order-worker/internal/api"
	"ms-order-worker/internal/catalog"
	"ms-order-worker/internal/config"
	"ms-order-worker/internal/database"
	"ms-order-worker/internal/database/migrations"
	"ms-order-worker/internal/kafka"
	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/notify"
	"ms-order-worker/internal/order"
	"ms-order-worker/internal/order/db"
	"ms-order-worker/internal/rabbitmq"
	"ms-order-worker/internal/registry"
	"ms-order-worker/internal/tickets/qr"
	"ms-order-worker/internal/worker"

	"github.com/go-redis/redis/v8"
)

func main() {
	envLoaded := config.LoadDotEnv()
	cfg := config.Load()

	log, err := logger.NewLogger(logger.Options{
		Service: cfg.Worker.Name,
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if envLoaded {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	} else {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	log.Info("APP", fmt.Sprintf("Starting order worker %s", cfg.Worker.Name))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqldb, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	bunDB := database.NewBun(sqldb)

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			SchemaName:    cfg.Database.Schema,
		}, log)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		log.Info("MIGRATE", "Database schema is up to date")
	}
	store := db.NewDB(bunDB)

	catalogClient, err := catalog.NewClient(cfg.Catalog.Address(), cfg.Catalog.CommitTimeout)
	if err != nil {
		log.Fatal("GRPC", fmt.Sprintf("Failed to create catalog client: %v", err))
	}
	log.Info("GRPC", fmt.Sprintf("Catalog client targeting %s", cfg.Catalog.Address()))

	broker := rabbitmq.NewConnectionManager(rabbitmq.OptionsFromConfig(cfg.RabbitMQ), log)
	if err := broker.ReconnectWithBackoff(ctx); err != nil {
		log.Fatal("RABBITMQ", fmt.Sprintf("Failed to connect to RabbitMQ: %v", err))
	}

	publisher := notify.NewPublisher(broker, cfg.RabbitMQ.NotificationsQueue, cfg.Worker.Name, log)

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopicsExist(topicCtx, cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		cancel()
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic)
		publisher.WithMirror(producer)
		log.LogKafka("MIRROR", cfg.Kafka.NotificationsTopic, "Notifications mirrored to Kafka")
	}

	processor := order.NewProcessor(store, catalogClient, publisher, qr.NewSimulator(), log)
	dispatcher := worker.NewDispatcher(broker, processor, cfg.Worker.Name, log)

	w := worker.New(cfg.Worker.Name, cfg.RabbitMQ.OrdersQueue, dispatcher, log)
	w.HeartbeatInterval = cfg.Worker.HeartbeatInterval

	handler := &api.Handler{
		WorkerName: cfg.Worker.Name,
		Orders:     store,
		Database:   store,
		Broker:     broker,
		Logger:     log,
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, worker registry disabled: %v", cfg.Redis.Addr, err))
			redisClient.Close()
			redisClient = nil
		} else {
			reg := registry.NewRegistry(redisClient, 3*cfg.Worker.HeartbeatInterval, log)
			w.Registry = reg
			handler.Workers = reg
			log.Info("REDIS", fmt.Sprintf("Worker registry enabled on %s", cfg.Redis.Addr))
		}
	}
	w.Server = api.NewServer(cfg.Server, handler)

	// Closers run in reverse: broker first, database last.
	w.OnShutdown("database", bunDB.Close)
	if redisClient != nil {
		w.OnShutdown("redis", redisClient.Close)
	}
	if producer != nil {
		w.OnShutdown("kafka", producer.Close)
	}
	w.OnShutdown("catalog", catalogClient.Close)
	w.OnShutdown("rabbitmq", broker.Disconnect)

	if err := w.Run(ctx); err != nil {
		log.Error("APP", fmt.Sprintf("Worker stopped with errors: %v", err))
		log.Close()
		os.Exit(1)
	}
	log.Info("APP", "Shutdown complete")
}
