package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/cart"
	"github.com/ariefcatur/go-pcparts-orders/internal/catalog"
	"github.com/ariefcatur/go-pcparts-orders/internal/config"
	"github.com/ariefcatur/go-pcparts-orders/internal/httpx"
	"github.com/ariefcatur/go-pcparts-orders/internal/idem"
	"github.com/ariefcatur/go-pcparts-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-pcparts-orders/internal/kafka"
	"github.com/ariefcatur/go-pcparts-orders/internal/logx"
	"github.com/ariefcatur/go-pcparts-orders/internal/notify"
	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/ariefcatur/go-pcparts-orders/internal/postgres"
	"github.com/ariefcatur/go-pcparts-orders/internal/rabbitmq"
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
	logx.Setup(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat := catalog.Default()
	ledger := inventory.NewLedger(cfg.InventoryLockTimeout)
	stock := &inventory.Service{Ledger: ledger, Timeout: cfg.OrderStoreTimeout}

	// Stock and order history: durable when Postgres is configured.
	var store *orders.Store
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()

		journal := postgres.NewJournal(db)
		if err := journal.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("db migrate")
		}
		store = orders.NewStore(journal)
		stock.Journal = journal
		stats, err := journal.Restore(ctx, catalog.SeedStock(), ledger, store)
		if err != nil {
			log.Fatal().Err(err).Msg("restore from journal")
		}
		log.Info().Int("products", stats.Products).Int("events", stats.Events).Msg("state restored")
	} else {
		store = orders.NewStore(nil)
		for id, qty := range catalog.SeedStock() {
			if err := ledger.Seed(id, qty); err != nil {
				log.Fatal().Err(err).Str("product_id", id).Msg("seed stock")
			}
		}
		log.Warn().Msg("POSTGRES_DSN not set, orders and stock are in-memory only")
	}

	coord := orders.NewCoordinator(store, ledger, cat)
	coord.Service = cfg.ServiceName
	coord.StoreTimeout = cfg.OrderStoreTimeout
	coord.Idem = idem.NewMemoryStore(cfg.IdempotencyTTL)

	var carts cart.Store = cart.NewMemoryStore()
	var feed *notify.Service
	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect")
		}
		defer rdb.Close()
		coord.Idem = idem.NewRedisStore(rdb, cfg.IdempotencyTTL)
		carts = cart.NewRedisStore(rdb, redisx.TTLCart)
		feed = &notify.Service{Redis: rdb, ServiceName: cfg.NotifierGroup}
	}

	switch cfg.EventBus {
	case config.BusKafka:
		prod := kafkax.NewProducer(cfg.KafkaBrokers(), orders.TopicOrderEvents, 1024)
		prod.Start()
		defer prod.Close()
		coord.Publisher = prod
	case config.BusRabbitMQ:
		conn, ch, err := rabbitmq.Connect(cfg.RabbitMQURL, 10)
		if err != nil {
			log.Fatal().Err(err).Msg("rabbitmq connect")
		}
		defer conn.Close()
		defer ch.Close()
		coord.Publisher = rabbitmq.NewPublisher(ch)
	}

	router := httpx.NewRouter(cfg.RequestTimeout)
	(&httpx.CatalogHandler{Catalog: cat}).Register(router)
	(&httpx.InventoryHandler{Ledger: ledger, Stock: stock}).Register(router)
	(&httpx.CompatHandler{Validator: coord.Validator}).Register(router)
	(&httpx.OrdersHandler{Coord: coord}).Register(router)
	(&httpx.CartHandler{Carts: carts, Coord: coord}).Register(router)
	if feed != nil {
		(&httpx.NotificationsHandler{Feed: feed}).Register(router)
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("event_bus", cfg.EventBus).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
