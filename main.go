package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-waitlist/internal/auth"
	"ms-waitlist/internal/config"
	"ms-waitlist/internal/database/migrations"
	eventsreg "ms-waitlist/internal/events"
	"ms-waitlist/internal/kafka"
	"ms-waitlist/internal/logger"
	"ms-waitlist/internal/tickets"
	ticketdb "ms-waitlist/internal/tickets/db"
	"ms-waitlist/internal/waitlist"
	waitlistdb "ms-waitlist/internal/waitlist/db"
	rediswrap "ms-waitlist/internal/waitlist/redis"
	"ms-waitlist/internal/waitlist/waitlist_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}
	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Waitlist Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir)
		if err := runner.Up(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.Info("DATABASE", "Migrations applied")
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.RequiredTopics()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	ticketService := tickets.NewService(&ticketdb.DB{Bun: bunDB})
	eventRegistry := eventsreg.NewRegistry(bunDB)
	store := &waitlistdb.DB{Bun: bunDB}
	limiter := rediswrap.NewLimiter(redisClient, cfg.Waitlist.JoinRateLimit, cfg.Waitlist.JoinRateWindow)
	eventLock := rediswrap.NewEventLock(redisClient)

	var publisher waitlist.KafkaPublisher
	if producer != nil {
		publisher = producer
	}

	queue := waitlist.NewService(
		store,
		ticketService,
		eventRegistry,
		limiter,
		eventLock,
		publisher,
		waitlist.TimerScheduler{},
		waitlist.SystemClock{},
		cfg.Waitlist.OfferTTL,
		log,
	)

	sweeper := waitlist.NewSweeper(queue, cfg.Waitlist.SweepInterval, log)
	go sweeper.Run(ctx)
	log.Info("APP", fmt.Sprintf("Offer TTL %s, sweep interval %s", cfg.Waitlist.OfferTTL, cfg.Waitlist.SweepInterval))

	handler := waitlist_api.NewHandler(queue, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Get("/api/waitlist/{eventId}/availability", handler.GetAvailability)
	r.Post("/webhook/stripe", handler.HandleStripeWebhook)

	// --- Protected Routes ---
	authMiddleware, err := auth.Middleware(cfg.Auth.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up auth middleware: %v", err))
	}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Route("/api/waitlist/{eventId}", func(r chi.Router) {
			r.Post("/join", handler.Join)
			r.Get("/position", handler.GetPosition)
			r.Post("/release/{entryId}", handler.Release)
		})
	})
	log.Info("ROUTER", "Waitlist routes registered under /api/waitlist")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Waitlist Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Waitlist Service shutdown complete")
	}
}
