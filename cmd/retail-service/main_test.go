package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/app"
)

func TestReadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "RETAIL_GRPC_ADDR=127.0.0.1:7000\nRETAIL_OUTBOX_BATCH_SIZE=25\nRETAIL_OUTBOX_POLL_INTERVAL=3s\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Unsetenv("RETAIL_GRPC_ADDR")
		_ = os.Unsetenv("RETAIL_OUTBOX_BATCH_SIZE")
		_ = os.Unsetenv("RETAIL_OUTBOX_POLL_INTERVAL")
	})

	cfg, warnings := readConfig(envFile)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if cfg.GRPCAddr != "127.0.0.1:7000" {
		t.Fatalf("unexpected grpc addr: %s", cfg.GRPCAddr)
	}
	if cfg.OutboxBatchSize != 25 || cfg.OutboxPollInterval != 3*time.Second {
		t.Fatalf("unexpected outbox settings: %+v", cfg)
	}
}

func TestReadConfig_MissingEnvFile(t *testing.T) {
	cfg, warnings := readConfig(filepath.Join(t.TempDir(), "absent.env"))
	if len(warnings) != 0 {
		t.Fatalf("missing .env must not produce warnings: %v", warnings)
	}
	if cfg.StorageDriver == "" {
		t.Fatal("expected defaults to be applied")
	}
}

func TestReadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("RETAIL_HTTP_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("RETAIL_HTTP_ADDR", ":9191")

	cfg, _ := readConfig(envFile)
	if cfg.MetricsAddr != ":9191" {
		t.Fatalf("process env must win over .env, got %s", cfg.MetricsAddr)
	}
}

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	setupLogger("debug")
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	setupLogger("nonsense")
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("invalid level must fall back to info, got %s", log.GetLevel())
	}

	if app.DefaultConfig().LogLevel != log.InfoLevel.String() {
		t.Fatal("default log level must be info")
	}
}
