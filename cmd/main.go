package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	c "github.com/fjod/basket-service/internal/cache"
	"github.com/fjod/basket-service/internal/catalog"
	"github.com/fjod/basket-service/internal/config"
	"github.com/fjod/basket-service/internal/coupon"
	basketgrpc "github.com/fjod/basket-service/internal/grpc"
	h "github.com/fjod/basket-service/internal/http"
	"github.com/fjod/basket-service/internal/logger"
	"github.com/fjod/basket-service/internal/poller"
	"github.com/fjod/basket-service/internal/repository"
	s "github.com/fjod/basket-service/internal/service"
	"github.com/fjod/basket-service/internal/shipping"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const healthInterval = 15 * time.Second

type indexer interface {
	CreateIndexes(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("basket service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDBName,
		MaxPoolSize:    cfg.MongoMaxPool,
		MinPoolSize:    cfg.MongoMinPool,
		ConnectTimeout: cfg.MongoTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoDB.Client().Disconnect(dctx)
	}()
	log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))

	repo := repository.NewMongoRepository(mongoDB)
	coupons := coupon.NewMongoRepository(mongoDB)
	for _, store := range []any{repo, coupons} {
		if ix, ok := store.(indexer); ok {
			if err := ix.CreateIndexes(ctx); err != nil {
				return fmt.Errorf("failed to create indexes: %w", err)
			}
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(); err != nil {
		return err
	}
	lookup := catalog.NewBreakerLookup(catalogRepo, catalog.BreakerSettings{}, log)

	svc := s.NewBasketService(
		repo,
		c.NewRedisCache(redisClient, 0),
		lookup,
		coupons,
		shipping.Rules{
			Standard:      cfg.ShippingStandard,
			Express:       cfg.ShippingExpress,
			FreeThreshold: cfg.ShippingFreeThreshold,
		},
		s.WithLogger(log),
	)

	router := h.NewRouter(
		h.NewBasketHandler(svc, cfg.RequestTimeout, log),
		h.NewProductHandler(catalogRepo, cfg.RequestTimeout, log),
		cfg.RequestTimeout,
		log,
	)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthServer := basketgrpc.NewHealthServer(log,
		basketgrpc.Check{Name: "mongo", Probe: func(ctx context.Context) error {
			return mongoDB.Client().Ping(ctx, nil)
		}},
		basketgrpc.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	checkoutPoller := poller.NewPoller(svc, log, poller.Config{
		Brokers: cfg.Brokers(),
		Topic:   cfg.CheckoutTopic,
		GroupID: cfg.KafkaGroupID,
	})

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("gRPC health server starting", zap.String("port", cfg.GRPCPort))
		if err := healthServer.Server().Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go healthServer.Watch(ctx, healthInterval)

	pollerDone := make(chan struct{})
	go func() {
		checkoutPoller.Run(ctx)
		close(pollerDone)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down basket service")
	case err := <-errCh:
		log.Error("server failed, shutting down", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	healthServer.Shutdown()

	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		log.Warn("poller did not stop in time")
	}
	checkoutPoller.Close()

	log.Info("basket service stopped")
	return nil
}
