// Package app собирает сервис из конфигурации: хранилище, доменные сервисы, gRPC-сервер,
// фоновые воркеры и служебный HTTP-порт.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/retailpos/internal/auth"
	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/retailpos/internal/health"
	"github.com/vladislavdragonenkov/retailpos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
	"github.com/vladislavdragonenkov/retailpos/internal/notify"
	"github.com/vladislavdragonenkov/retailpos/internal/service/catalog"
	"github.com/vladislavdragonenkov/retailpos/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/retailpos/internal/service/grpc"
	"github.com/vladislavdragonenkov/retailpos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/retailpos/internal/service/inventory"
	"github.com/vladislavdragonenkov/retailpos/internal/service/orders"
	"github.com/vladislavdragonenkov/retailpos/internal/service/outbox"
	"github.com/vladislavdragonenkov/retailpos/internal/service/reports"
	"github.com/vladislavdragonenkov/retailpos/internal/service/reservations"
	"github.com/vladislavdragonenkov/retailpos/internal/version"
)

const (
	grpcStopTimeout     = 5 * time.Second
	workerStopTimeout   = 5 * time.Second
	notifyBreakerFails  = 5
	notifyBreakerWindow = 30 * time.Second
)

// Run запускает сервис и блокируется до отмены ctx или падения gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	retailMetrics := metrics.NewRetailMetrics()

	// Без Kafka сервис работает: события остаются в логах, уведомления тоже.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	services := buildServices(cfg, deps, producer, retailMetrics, logger)

	interceptors := []grpc.UnaryServerInterceptor{}
	grpcMetrics := registerGRPCMetrics(logger)
	interceptors = append(interceptors, grpcMetrics.UnaryServerInterceptor())
	if authInterceptor := buildAuthInterceptor(cfg, deps.store.Profiles(), logger); authInterceptor != nil {
		interceptors = append(interceptors, authInterceptor)
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	grpcsvc.RegisterRetailServiceServer(grpcServer, grpcsvc.NewRetailService(services, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	healthHandler := buildHealthHandler(cfg, deps, producer)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	workerCancel, workersDone := startWorkers(ctx, cfg, deps, producer, retailMetrics, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownOutboxWorker(workerCancel, workersDone, logger)
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stopGRPC(grpcServer, logger)
		shutdownOutboxWorker(workerCancel, workersDone, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownOutboxWorker(workerCancel, workersDone, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// buildServices собирает доменные сервисы поверх выбранного хранилища.
func buildServices(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, m *metrics.RetailMetrics, logger *log.Entry) grpcsvc.Services {
	orderOpts := []orders.Option{
		orders.WithLogger(logger.WithField("service", "orders")),
		orders.WithMetrics(m),
		orders.WithTimeline(deps.timelineRepo),
		orders.WithDispatcher(buildDispatcher(cfg, producer, m, logger)),
	}
	if producer != nil {
		orderOpts = append(orderOpts, orders.WithPublisher(producer))
	}

	return grpcsvc.Services{
		Checkout: checkout.NewService(deps.store,
			checkout.WithLogger(logger.WithField("service", "checkout")),
			checkout.WithMetrics(m),
		),
		Orders: orders.NewService(deps.store, deps.repo, orderOpts...),
		Reservations: reservations.NewService(deps.store,
			reservations.WithLogger(logger.WithField("service", "reservations")),
			reservations.WithMetrics(m),
		),
		Inventory: inventory.NewService(deps.store,
			inventory.WithLogger(logger.WithField("service", "inventory")),
			inventory.WithMetrics(m),
		),
		Catalog:     catalog.NewService(deps.store.Products(), logger.WithField("service", "catalog")),
		Reports:     reports.NewService(deps.store.Sales()),
		Idempotency: deps.idempotencyRepo,
	}
}

// buildDispatcher отправляет уведомления через Kafka, а без неё пишет их в лог.
// Каждый канал защищён своим circuit breaker.
func buildDispatcher(cfg Config, producer *kafka.Producer, m *metrics.RetailMetrics, logger *log.Entry) *notify.Dispatcher {
	notifyLogger := logger.WithField("service", "notify")

	var email, messaging domain.Notifier
	if producer != nil {
		email = notify.NewKafkaNotifier(producer)
		messaging = notify.NewKafkaNotifier(producer)
	} else {
		email = notify.NewLogNotifier(notifyLogger.WithField("channel", domain.NotificationEmail))
		messaging = notify.NewLogNotifier(notifyLogger.WithField("channel", domain.NotificationMessaging))
	}

	return notify.NewDispatcher(
		notify.NewBreakerNotifier(email, notify.NewCircuitBreaker(notifyBreakerFails, notifyBreakerWindow, notifyLogger)),
		notify.NewBreakerNotifier(messaging, notify.NewCircuitBreaker(notifyBreakerFails, notifyBreakerWindow, notifyLogger)),
		notify.WithLogger(notifyLogger),
		notify.WithSendTimeout(cfg.NotifyTimeout),
		notify.WithMetrics(m),
	)
}

// buildAuthInterceptor возвращает nil, если секрет не задан: тогда все запросы анонимны
// и сервисы отвечают Unauthenticated.
func buildAuthInterceptor(cfg Config, profiles domain.ProfileRepository, logger *log.Entry) grpc.UnaryServerInterceptor {
	if cfg.JWTSecret == "" {
		logger.Warn("RETAIL_JWT_SECRET is empty, all requests are anonymous")
		return nil
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.WithError(err).Warn("failed to create token issuer, all requests are anonymous")
		return nil
	}
	return auth.UnaryServerInterceptor(auth.NewResolver(issuer, profiles), logger.WithField("layer", "auth"))
}

func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcMetrics.EnableHandlingTimeHistogram()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

func buildHealthHandler(cfg Config, deps *runtimeDependencies, producer *kafka.Producer) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		handler.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.redisChecker != nil {
		handler.RegisterChecker("redis", deps.redisChecker)
	}
	if producer != nil {
		handler.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", producer.Ping))
	}
	if cfg.OutboxMaxPending > 0 && deps.outboxRepo != nil {
		handler.RegisterChecker("outbox", newOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending))
	}
	return handler
}

// newOutboxBacklogChecker сообщает degraded, когда очередь outbox длиннее maxPending.
func newOutboxBacklogChecker(repo domain.OutboxRepository, maxPending int) healthcheck.Checker {
	return healthcheck.NewOptionalChecker("outbox", func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	})
}

// startWorkers запускает outbox, очистку ключей идемпотентности и сверку удержаний.
// done закрывается, когда все воркеры вышли.
func startWorkers(
	ctx context.Context,
	cfg Config,
	deps *runtimeDependencies,
	producer *kafka.Producer,
	m *metrics.RetailMetrics,
	logger *log.Entry,
) (context.CancelFunc, <-chan struct{}) {
	workerCtx, cancel := context.WithCancel(ctx)

	var publisher, dlq domain.OutboxPublisher
	if producer != nil {
		publisher = kafka.NewOutboxPublisher(producer, "")
		dlq = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
	} else {
		publisher = outbox.NewLogPublisher(logger.WithField("worker", "outbox-log"))
	}

	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("worker", "outbox")),
		outbox.WithMetrics(m),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlq != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(dlq))
	}

	runners := []func(context.Context){
		outbox.NewWorker(deps.outboxRepo, publisher, outboxOpts...).Run,
		idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("worker", "idempotency-cleanup")),
			idempotency.WithMetrics(m),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		).Run,
		reservations.NewSweeper(deps.store,
			reservations.WithLogger(logger.WithField("worker", "reservation-sweeper")),
			reservations.WithMetrics(m),
			reservations.WithInterval(cfg.ReservationSweepInterval),
			reservations.WithBatchSize(cfg.ReservationSweepBatchSize),
		).Run,
	}

	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(workerCtx)
		}(run)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return cancel, done
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownOutboxWorker отменяет фоновые воркеры и ждёт их выхода не дольше workerStopTimeout.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("background workers stopped")
	case <-time.After(workerStopTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// startMetricsServer поднимает служебный HTTP-порт: /metrics, /healthz, /livez, /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           healthHandler.Router(promhttp.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
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
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
