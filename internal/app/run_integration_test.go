package app

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/retailpos/internal/health"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory
	cfg.JWTSecret = "run-test-secret"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_BusyGRPCAddr(t *testing.T) {
	port := findFreePort(t)
	busy := "127.0.0.1:" + strconv.Itoa(port)

	cfg := DefaultConfig()
	cfg.GRPCAddr = busy
	cfg.MetricsAddr = "127.0.0.1:0"

	// Первый экземпляр занимает порт.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan error, 1)
	go func() { firstDone <- Run(ctx, cfg) }()
	waitForServer(t, busy)

	err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected listen error for busy gRPC address")
	}

	cancel()
	select {
	case <-firstDone:
	case <-time.After(10 * time.Second):
		t.Fatal("first instance did not stop")
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("RETAIL_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("RETAIL_TEST_POSTGRES_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.close() }()

	if deps.store == nil || deps.repo == nil || deps.outboxRepo == nil || deps.timelineRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	if deps.storageChecker == nil {
		t.Fatal("expected non-nil storage checker for postgres")
	}
	check := deps.storageChecker.Check(context.Background())
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}
