package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/alerts"
	"github.com/danisworo/pos-engine/internal/config"
	kafkax "github.com/danisworo/pos-engine/internal/kafka"
	"github.com/danisworo/pos-engine/internal/pos"
	"github.com/danisworo/pos-engine/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", cfg.ServiceName+"-alerts").
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &alerts.Service{
		Redis:       rdb,
		Log:         log,
		ServiceName: cfg.ServiceName + "-alerts",
	}

	group := getenv("ALERTS_GROUP", "stock-alerts")
	workers := mustAtoi(os.Getenv("ALERTS_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, pos.TopicStockAlert, workers)

	go func() {
		log.Info().
			Str("group", group).
			Str("topic", pos.TopicStockAlert).
			Int("workers", workers).
			Msg("stock alert consumer started")
		if err := cons.Start(ctx, svc.HandleStockAlert); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumer")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
