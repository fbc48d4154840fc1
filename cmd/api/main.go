package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/stockorder/internal/auth"
	"github.com/safar/stockorder/internal/config"
	"github.com/safar/stockorder/internal/database"
	"github.com/safar/stockorder/internal/events"
	"github.com/safar/stockorder/internal/httpapi"
	"github.com/safar/stockorder/internal/observability"
	"github.com/safar/stockorder/internal/orders"
	"github.com/safar/stockorder/internal/products"
	"github.com/safar/stockorder/internal/store"
	"github.com/safar/stockorder/internal/store/memory"
	"go.uber.org/zap"
)

type backend struct {
	coordinator store.Coordinator
	catalog     store.Catalog
	orders      store.OrderQueries
	pinger      httpapi.Pinger
	close       func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		s := memory.New()
		return &backend{
			coordinator: s,
			catalog:     s.Products(),
			orders:      s.Orders(),
			pinger:      s,
			close:       func() error { return nil },
		}, nil
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	opts := database.DefaultTxOptions()
	opts.LockTimeout = cfg.Database.LockTimeout
	pg := store.NewPostgres(db, opts)

	return &backend{
		coordinator: pg,
		catalog:     pg.Products(),
		orders:      pg.Orders(),
		pinger:      pg,
		close:       db.Close,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Service)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Service)
	if err != nil {
		logger.Fatal("setup tracing", zap.Error(err))
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	logger.Info("store ready", zap.String("driver", cfg.Database.Driver))

	var publisher events.Publisher = events.NopPublisher{}
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic))
		publisher = kafkaPublisher
		logger.Info("publishing order events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.OrdersTopic),
		)
	}

	orderService := orders.NewService(be.coordinator, be.orders,
		orders.WithPublisher(publisher),
		orders.WithLogger(logger.Named("orders")),
		orders.WithMaxRetries(cfg.Orders.MaxRetries),
	)
	productService := products.NewService(be.catalog, be.coordinator, logger.Named("products"))

	handler := httpapi.NewHandler(
		orderService,
		productService,
		auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		be.pinger,
		logger.Named("http"),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("close kafka writer", zap.Error(err))
		}
	}
	if err := be.close(); err != nil {
		logger.Error("close store", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("shutdown tracing", zap.Error(err))
	}

	logger.Info("server exited")
}
