package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rental/internal/app"
	"rental/internal/config"
	"rental/internal/events"
	"rental/internal/handler"
	"rental/internal/logger"
	internalRedis "rental/internal/redis"
	"rental/internal/repository"
	"rental/internal/repository/memory"
	"rental/internal/repository/postgres"
	"rental/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic first so the database and Redis clients can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	stores, closeStores, err := openStores(ctx, cfg, nrApp, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open booking store")
	}
	defer closeStores()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, running without cache, payment locks or idempotent replays")
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.WithField("addr", cfg.Redis.Addr).Info("connected to Redis")
		}
	}

	publisher := app.NewPublisher(cfg.NATS, log)
	defer publisher.Close()

	server := wireServer(stores, redisClient, publisher, nrApp, cfg, log)

	go func() {
		log.WithFields(logrus.Fields{
			"port":  cfg.Server.Port,
			"store": cfg.Store.Backend,
		}).Info("starting booking server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Info("server exited")
}

// storeSet is the persistence the services are built on.
type storeSet struct {
	bookings repository.BookingRepository
	vehicles repository.VehicleRepository
	users    repository.UserRepository
}

// openStores builds the configured backend and returns a closer for it.
func openStores(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, log logrus.FieldLogger) (storeSet, func(), error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		vehicles := memory.NewVehicleRepository()
		users := memory.NewUserRepository()
		if cfg.Store.Seed {
			app.SeedMemory(vehicles, users)
			log.Info("seeded in-memory catalog and directory")
		}
		return storeSet{
			bookings: memory.NewBookingRepository(),
			vehicles: vehicles,
			users:    users,
		}, func() {}, nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, log)
	if err != nil {
		return storeSet{}, nil, err
	}
	log.WithField("database", cfg.Database.DBName).Info("connected to PostgreSQL")

	if cfg.Store.Seed {
		if err := app.SeedPostgres(ctx, db); err != nil {
			db.Close()
			return storeSet{}, nil, err
		}
		log.Info("seeded catalog and directory")
	}

	return storeSet{
		bookings: postgres.NewBookingRepository(db),
		vehicles: postgres.NewVehicleRepository(db),
		users:    postgres.NewUserRepository(db),
	}, func() { closeDB(db, log) }, nil
}

func closeDB(db *sql.DB, log logrus.FieldLogger) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("failed to close database")
	}
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(stores storeSet, redisClient *redis.Client, publisher events.Publisher, nrApp *newrelic.Application, cfg *config.Config, log *logrus.Logger) *http.Server {
	// Interfaces stay nil without Redis so the services skip cache and locks.
	var (
		cache internalRedis.BookingCacheInterface
		locks internalRedis.LockStoreInterface
	)
	if redisClient != nil {
		cache = internalRedis.NewBookingCache(redisClient, cfg.Redis.CacheTTL)
		locks = internalRedis.NewLockStore(redisClient)
	}

	engine := service.NewLifecycleEngine(stores.bookings, stores.vehicles,
		service.WithUserDirectory(stores.users),
		service.WithLogger(log),
		service.WithCancelRetries(cfg.Lifecycle.CancelRetries),
	)
	queries := service.NewQueryService(stores.bookings, cache, log)
	notifications := service.NewNotificationService(publisher, log)
	gateway := service.NewSimulatedGateway()
	bookings := service.NewBookingService(stores.bookings, engine, queries, gateway, notifications, cache, locks, log)

	router := app.NewRouter(app.RouterDeps{
		BookingHandler:   handler.NewBookingHandler(bookings),
		DirectoryHandler: handler.NewDirectoryHandler(stores.users, stores.vehicles),
		RedisClient:      redisClient,
		NewRelicApp:      nrApp,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		Logger:           log,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
