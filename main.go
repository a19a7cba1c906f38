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

	"ms-auctions/internal/auction"
	auction_api "ms-auctions/internal/auction/api"
	auction_db "ms-auctions/internal/auction/db"
	rediswrap "ms-auctions/internal/auction/redis"
	"ms-auctions/internal/auth"
	"ms-auctions/internal/config"
	"ms-auctions/internal/database/migrations"
	"ms-auctions/internal/kafka"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/notify"
	"ms-auctions/internal/order"
	order_api "ms-auctions/internal/order/api"
	order_db "ms-auctions/internal/order/db"
	"ms-auctions/internal/order/invoice"
	"ms-auctions/internal/product"
	product_api "ms-auctions/internal/product/api"
	product_db "ms-auctions/internal/product/db"
	"ms-auctions/internal/scheduler"
	"ms-auctions/internal/sse"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}
		if err = sqldb.Ping(); err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	ctx := context.Background()

	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Auction Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()

	// --- Datastores ---
	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	migrationRunner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := migrationRunner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	// --- Kafka ---
	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		kafkaProducer = kafka.NewProducer(cfg.Kafka, log)
		defer kafkaProducer.Close()
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, auction events will not be streamed")
	}

	// --- Event fan-out ---
	priceEmitter := sse.NewPriceEventEmitter()
	var statusPublisher notify.StatusPublisher
	if kafkaProducer != nil {
		statusPublisher = kafkaProducer
	}
	fanOut := notify.NewFanOut(statusPublisher, priceEmitter)

	// --- Stripe ---
	gateway, err := auction.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Failed to initialize Stripe gateway: %v", err))
	}

	// --- Services ---
	auctionStore := &auction_db.DB{Bun: bunDB}
	redisLock := &rediswrap.Redis{Client: redisClient, Logger: log}

	productStore := &product_db.DB{Bun: bunDB}
	productService := product.NewService(productStore, log)

	auctionService := auction.NewService(
		auctionStore,
		productService,
		gateway,
		redisLock,
		fanOut,
		log,
		cfg.Auction.MaxDurationDays,
	)

	invoiceGen := invoice.NewGenerator(os.Getenv("QR_SECRET_KEY"))
	mailer := notify.NewSMTPMailer(cfg.Email, log)

	orderStore := &order_db.DB{Bun: bunDB}
	var orderPublisher order.Publisher
	if kafkaProducer != nil {
		orderPublisher = kafkaProducer
	}
	orderService := order.NewService(orderStore, auctionStore, productStore, invoiceGen, mailer, orderPublisher, log)

	// --- Handlers ---
	auctionHandler := auction_api.NewHandler(auctionService, priceEmitter, log)
	orderHandler := order_api.NewHandler(orderService, log)
	productHandler := product_api.NewHandler(productService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	auctionHandler.RegisterPublicRoutes(r)
	log.Info("ROUTER", "Public auction endpoints registered under /auctions")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret))
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		auctionHandler.RegisterRoutes(r)
		log.Info("ROUTER", "Auction routes registered under /auctions")

		orderHandler.RegisterRoutes(r)
		log.Info("ROUTER", "Order routes registered under /orders")

		productHandler.RegisterRoutes(r)
		log.Info("ROUTER", "Product routes registered under /products")
	})

	// --- Scheduled Sweeps ---
	sched := scheduler.New(log)
	sched.Register(scheduler.Job{
		Name:     "open-due-auctions",
		Interval: cfg.Auction.SweepInterval,
		Timeout:  5 * time.Minute,
		Run:      auctionService.SweepAuctionsToOpen,
	})
	sched.Register(scheduler.Job{
		Name:     "close-due-auctions",
		Interval: cfg.Auction.SweepInterval,
		Timeout:  5 * time.Minute,
		Run:      auctionService.SweepAuctionsToClose,
	})
	sched.Start()

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Auction Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	sched.Stop()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Auction Service shutdown complete")
	}
}
