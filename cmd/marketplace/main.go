package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/marketplace/internal/app"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

func main() {
	cfg, err := app.LoadConfig(viper.New())
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	app.ConfigureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем marketplace")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("marketplace остановлен")
}
