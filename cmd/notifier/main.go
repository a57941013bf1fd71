package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pcparts-orders/internal/config"
	kafkax "github.com/ariefcatur/go-pcparts-orders/internal/kafka"
	"github.com/ariefcatur/go-pcparts-orders/internal/logx"
	"github.com/ariefcatur/go-pcparts-orders/internal/notify"
	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/ariefcatur/go-pcparts-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logx.Setup(cfg.LogLevel, cfg.LogFormat, cfg.NotifierGroup)

	if cfg.RedisAddr == "" {
		log.Fatal().Msg("REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	defer rdb.Close()

	svc := &notify.Service{Redis: rdb, ServiceName: cfg.NotifierGroup}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers(), cfg.NotifierGroup, orders.TopicOrderEvents, cfg.NotifierWorkers)

	log.Info().Str("topic", orders.TopicOrderEvents).Int("workers", cfg.NotifierWorkers).Msg("notifier consuming")
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
	}
	log.Info().Msg("notifier stopped")
}
