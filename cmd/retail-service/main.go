package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/app"
	"github.com/vladislavdragonenkov/retailpos/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// readConfig загружает .env (если он есть) и читает RETAIL_* поверх значений по умолчанию.
func readConfig(envFiles ...string) (app.Config, []error) {
	loadErr := godotenv.Load(envFiles...)
	cfg, warnings := app.LoadConfigFromEnv()
	if loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
		warnings = append([]error{fmt.Errorf("load .env: %w", loadErr)}, warnings...)
	}
	return cfg, warnings
}

func main() {
	cfg, warnings := readConfig()
	setupLogger(cfg.LogLevel)
	for _, w := range warnings {
		log.WithError(w).Warn("invalid configuration value, default is used")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Current().Fields()).WithFields(log.Fields{
		"grpc_addr": cfg.GRPCAddr,
		"http_addr": cfg.MetricsAddr,
		"storage":   cfg.StorageDriver,
		"kafka":     cfg.KafkaBrokers != "",
		"redis":     cfg.RedisAddr != "",
	}).Info("запускаем RetailService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("RetailService остановлен")
}
