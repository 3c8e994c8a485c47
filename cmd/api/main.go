package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/danisworo/pos-engine/internal/config"
	"github.com/danisworo/pos-engine/internal/gateway"
	"github.com/danisworo/pos-engine/internal/httpx"
	kafkax "github.com/danisworo/pos-engine/internal/kafka"
	"github.com/danisworo/pos-engine/internal/pgstore"
	"github.com/danisworo/pos-engine/internal/pos"
	"github.com/danisworo/pos-engine/internal/postgres"
	"github.com/danisworo/pos-engine/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	producers := map[string]*kafkax.Producer{
		pos.EventOrderCreated:     kafkax.NewProducer(cfg.KafkaBrokers, pos.TopicOrderCreated, 1024),
		pos.EventOrderUpdated:     kafkax.NewProducer(cfg.KafkaBrokers, pos.TopicOrderUpdated, 1024),
		pos.EventPaymentCompleted: kafkax.NewProducer(cfg.KafkaBrokers, pos.TopicPaymentCompleted, 1024),
		pos.EventStockAlert:       kafkax.NewProducer(cfg.KafkaBrokers, pos.TopicStockAlert, 256),
	}
	sink := kafkax.NewSink(cfg.ServiceName, log)
	for event, p := range producers {
		p.Start(ctx)
		sink.Route(event, p)
	}

	store := pgstore.New(db, log)
	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayServerKey, cfg.GatewayName)

	orderSvc := &pos.OrderService{
		Catalog:          store,
		Orders:           store,
		Inventory:        store,
		Gateway:          gw,
		Sink:             sink,
		Log:              log,
		GatewayName:      cfg.GatewayName,
		FinishURL:        cfg.GatewayFinishURL,
		TokenExpiry:      cfg.TokenExpiry,
		TaxRateBps:       cfg.TaxRateBps,
		ServiceChargeBps: cfg.ServiceChargeBps,
	}
	retryMgr := &pos.RetryManager{
		Orders:      store,
		Gateway:     gw,
		Sink:        sink,
		Log:         log,
		FinishURL:   cfg.GatewayFinishURL,
		TokenExpiry: cfg.TokenExpiry,
		MaxRetries:  cfg.MaxPaymentRetries,
	}
	cancelSvc := &pos.CancellationService{
		Orders:  store,
		Gateway: gw,
		Sink:    sink,
		Log:     log,
	}
	// The bypass only exists for sandbox testing; production always verifies.
	skipVerify := cfg.SkipSignatureVerify && !cfg.IsProduction()
	if cfg.SkipSignatureVerify && cfg.IsProduction() {
		log.Warn().Msg("GATEWAY_SKIP_SIGNATURE ignored in production")
	}
	reconciler := &pos.Reconciler{
		Store:       store,
		Gateway:     gw,
		Sink:        sink,
		Log:         log,
		GatewayName: cfg.GatewayName,
		ServerKey:   cfg.GatewayServerKey,
		SkipVerify:  skipVerify,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service: orderSvc,
		Reader:  store,
		Retry:   retryMgr,
		Cancel:  cancelSvc,
		Redis:   rdb,
		Log:     log,
	}
	oh.Register(router)
	router.Post("/webhooks/payment", (&httpx.WebhookHandler{
		Reconciler: reconciler,
		Log:        log,
	}).ServeHTTP)

	// Compensate orders stuck between create and token issuance.
	go func() {
		t := time.NewTicker(cfg.SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				orderSvc.Sweep(ctx, cfg.TokenExpiry)
			}
		}
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	for _, p := range producers {
		p.Close()
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
