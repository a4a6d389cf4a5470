package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dborovsky/grandnode/internal/dispatch"
	healthcheck "github.com/dborovsky/grandnode/internal/health"
	"github.com/dborovsky/grandnode/internal/messaging/kafka"
	"github.com/dborovsky/grandnode/internal/metrics"
	"github.com/dborovsky/grandnode/internal/service/giftcard"
	"github.com/dborovsky/grandnode/internal/service/httpapi"
	idemsvc "github.com/dborovsky/grandnode/internal/service/idempotency"
	outboxsvc "github.com/dborovsky/grandnode/internal/service/outbox"
	"github.com/dborovsky/grandnode/internal/service/returns"
	"github.com/dborovsky/grandnode/internal/version"
)

// Run собирает приложение по конфигурации и блокируется до отмены
// контекста либо до падения HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	returnsMetrics := metrics.NewReturnsMetrics()

	dispatcher := dispatch.New()
	returnsService := returns.NewService(
		deps.Orders,
		deps.Customers,
		deps.Returns,
		deps.Outbox,
		deps.Timeline,
		cfg.Settings,
		returnsMetrics,
		logger.WithField("layer", "returns"),
	)
	if err := returnsService.Register(dispatcher); err != nil {
		return err
	}
	ledger := giftcard.NewLedger(
		deps.Customers,
		deps.GiftCards,
		deps.Outbox,
		returnsMetrics,
		logger.WithField("layer", "giftcard"),
	)
	if err := ledger.Register(dispatcher); err != nil {
		return err
	}
	if err := dispatcher.EnsureRegistered(
		returns.RequestSubmitReturnRequest,
		returns.RequestCustomerReturnRequests,
		returns.RequestReturnRequestDetails,
		returns.RequestReturnRequestForm,
		returns.RequestReturnableOrders,
		giftcard.RequestApplyGiftCard,
		giftcard.RequestRemoveGiftCard,
	); err != nil {
		return err
	}

	// Kafka опционален: без brokers события остаются в таблице outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicReturnEvents, kafka.TopicGiftCardEvents)
		dlq := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue, kafka.TopicDeadLetterQueue)
		worker := outboxsvc.NewWorker(deps.Outbox, publisher,
			outboxsvc.WithLogger(logger.WithField("layer", "outbox")),
			outboxsvc.WithDLQPublisher(dlq),
			outboxsvc.WithPollInterval(cfg.OutboxPollInterval),
			outboxsvc.WithBatchSize(cfg.OutboxBatchSize),
			outboxsvc.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outboxsvc.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)
	}

	var invalidator *kafka.Consumer
	if kafkaProducer != nil && deps.GiftCardCache != nil {
		invalidator, err = startGiftCardCacheInvalidator(ctx, cfg, deps.GiftCardCache, logger)
		if err != nil {
			logger.WithError(err).Warn("gift card cache invalidator is not running")
		}
	}

	cleanupWorker := idemsvc.NewCleanupWorker(deps.Idempotency,
		idemsvc.WithLogger(logger.WithField("layer", "idempotency")),
		idemsvc.WithInterval(cfg.IdempotencyCleanupInterval),
		idemsvc.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	go cleanupWorker.Run(ctx)

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.Store != nil {
		store := deps.Store
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(checkCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	api := httpapi.NewServer(dispatcher, deps.Idempotency, logger.WithField("layer", "http"))
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Routes()}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	stopConsumer := func() {
		if invalidator == nil {
			return
		}
		if err := invalidator.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopConsumer()
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopConsumer()
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http server shutdown with error")
	}
}
