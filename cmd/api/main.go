package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/httpapi"
	"github.com/safar/go-storefront/internal/idempotency"
	"github.com/safar/go-storefront/internal/logger"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/orders"
	"github.com/safar/go-storefront/internal/pricing"
	"github.com/safar/go-storefront/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	lg := logger.New(logger.Options{
		Service: "storefront-api",
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	lg.Info("connected to database")

	txOpts := database.DefaultTxOptions()
	txOpts.MaxRetries = cfg.Database.TxMaxRetries
	st := store.NewPostgres(db, txOpts)

	rates := pricing.DefaultShippingRates()
	if cfg.Checkout.ShippingRatesFile != "" {
		rates, err = pricing.LoadShippingRates(cfg.Checkout.ShippingRatesFile)
		if err != nil {
			log.Fatalf("Load shipping rates: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sink, closeSink, err := newSink(cfg.Events, lg)
	if err != nil {
		log.Fatalf("Connect events backend: %v", err)
	}
	defer closeSink()

	dispatcher := events.NewDispatcher(sink, events.Options{
		Workers:         cfg.Events.Workers,
		QueueSize:       cfg.Events.QueueSize,
		DeliveryTimeout: cfg.Events.DeliveryTimeout,
	}, lg, m)
	dispatcher.Start(ctx)

	var guard idempotency.Guard = idempotency.Nop{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable, idempotency keys will fail open", "addr", cfg.Redis.Addr, "error", err)
		}
		guard = idempotency.NewRedis(rdb, cfg.Redis.IdempotencyTTL)
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Orders: orders.NewService(st, pricing.NewEngine(rates), lg,
			orders.WithMetrics(m),
			orders.WithCodeAttempts(cfg.Checkout.OrderCodeMaxAttempts)),
		Carts:   cart.NewService(st, lg),
		Events:  dispatcher,
		Guard:   guard,
		DB:      st,
		Metrics: m,
		Log:     lg,
	})

	if cfg.Log.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		lg.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		lg.Warn("events not drained before shutdown", "error", err)
	}
}

func newSink(cfg config.EventsConfig, lg *slog.Logger) (events.Sink, func(), error) {
	switch cfg.Backend {
	case config.EventsBackendRabbitMQ:
		r, err := events.NewRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case config.EventsBackendKafka:
		k := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		return k, func() { _ = k.Close() }, nil
	default:
		return events.NewLogSink(lg), func() {}, nil
	}
}
