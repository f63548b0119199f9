package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"staykeeper/internal/app/commands"
	"staykeeper/internal/app/coordinator"
	availabilityapp "staykeeper/internal/app/handlers/availability"
	listingapp "staykeeper/internal/app/handlers/listings"
	"staykeeper/internal/app/locks"
	"staykeeper/internal/app/middleware"
	"staykeeper/internal/app/outbox"
	"staykeeper/internal/app/queries"
	"staykeeper/internal/app/uow"
	"staykeeper/internal/app/validation"
	domainlistings "staykeeper/internal/domain/listings"
	"staykeeper/internal/infra/broker/kafka"
	"staykeeper/internal/infra/config"
	"staykeeper/internal/infra/db/mongo"
	"staykeeper/internal/infra/db/postgres"
	ginserver "staykeeper/internal/infra/http/gin"
	redislock "staykeeper/internal/infra/locks/redis"
	"staykeeper/internal/infra/obs"
	infraoutbox "staykeeper/internal/infra/outbox"
	"staykeeper/internal/infra/storage/memory"
)

// application holds everything serve starts and tears down.
type application struct {
	handlers ginserver.Handlers
	checks   map[string]obs.Check
	worker   *infraoutbox.Worker
	closers  []func(context.Context) error
}

// storage is what one backend contributes.
type storage struct {
	uow         uow.UoWFactory
	outbox      outbox.Outbox
	queue       infraoutbox.Queue
	idempotency middleware.IdempotencyStore
	catalog     domainlistings.Catalog
}

func (a *application) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{checks: map[string]obs.Check{}}

	var publisher outbox.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafka.NewConfig("staykeeper"))
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		publisher = producer
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
	} else {
		logger.Warn("KAFKA_BROKERS not set, events stay in the outbox")
	}

	store, err := app.openStorage(ctx, cfg, publisher, logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	locker, err := app.openLocker(ctx, cfg, logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	svc := &coordinator.Coordinator{
		Locks:        locker,
		UoW:          store.uow,
		Outbox:       store.outbox,
		Encoder:      outbox.JSONEventEncoder{},
		Completeness: domainlistings.CompletenessPolicy{Catalog: store.catalog},
		Logger:       logger,
	}

	commandBus := commands.NewInMemoryBus()
	listingapp.RegisterCommands(commandBus, svc)
	queryBus := queries.NewInMemoryBus()
	listingapp.RegisterQueries(queryBus, svc)
	availabilityapp.Register(queryBus, svc)

	validator := validation.New()
	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Logging(logger),
		middleware.Validation(validator),
		middleware.Authorization(middleware.RequireActor{}),
		middleware.OutboxFlush(store.outbox, logger),
		middleware.Idempotency(store.idempotency, nil),
	)
	queryBusWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryValidation(validator),
	)

	app.handlers = ginserver.Handlers{
		Listing:             ginserver.ListingHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
		Calendar:            ginserver.CalendarHandler{Queries: queryBusWithMiddleware, Logger: logger},
		PrincipalMiddleware: ginserver.PrincipalMiddleware{Logger: logger}.Handle,
	}

	if store.queue != nil && publisher != nil {
		app.worker = &infraoutbox.Worker{
			Queue:       store.queue,
			Producer:    publisher,
			Logger:      logger.With("component", "outbox"),
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
		}
	}
	return app, nil
}

func (a *application) openStorage(ctx context.Context, cfg config.Config, publisher outbox.Publisher, logger *slog.Logger) (storage, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return storage{}, fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.checks["mongo"] = client.Ping

		idem, err := mongo.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
		if err != nil {
			return storage{}, fmt.Errorf("mongo idempotency: %w", err)
		}
		catalog := mongo.NewCatalog(client.DB)
		if err := catalog.Seed(ctx, cfg.CatalogAmenities, cfg.CatalogTypes); err != nil {
			return storage{}, fmt.Errorf("mongo catalog: %w", err)
		}
		box := infraoutbox.NewMongoStore(client.DB)
		logger.Info("storage ready", "backend", cfg.StoreBackend, "database", cfg.MongoDB)
		return storage{
			uow:         mongo.Factory{DB: client.DB, Listings: mongo.NewListingRepository(client.DB)},
			outbox:      box,
			queue:       box,
			idempotency: idem,
			catalog:     catalog,
		}, nil

	case config.BackendPostgres:
		pool, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return storage{}, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		a.checks["postgres"] = pool.Ping

		box := postgres.NewOutboxStore(pool)
		logger.Info("storage ready", "backend", cfg.StoreBackend)
		return storage{
			uow:         postgres.Factory{Pool: pool, Listings: postgres.NewListingRepository(pool)},
			outbox:      box,
			queue:       box,
			idempotency: postgres.NewIdempotencyStore(pool, cfg.IdempotencyTTL),
			catalog:     postgres.NewCatalog(pool),
		}, nil

	default:
		listingsStore := memory.NewListingStore()
		box := memory.NewOutbox(publisher, cfg.KafkaTopicPrefix)
		logger.Info("storage ready", "backend", config.BackendMemory)
		return storage{
			uow:         memory.Factory{Listings: listingsStore, Outbox: box},
			outbox:      box,
			idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
			catalog:     memory.NewCatalog(cfg.CatalogAmenities, cfg.CatalogTypes),
		}, nil
	}
}

func (a *application) openLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (locks.Locker, error) {
	if cfg.LockBackend != config.LockRedis {
		return locks.NewLocal(), nil
	}
	client := redislock.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	logger.Info("lock backend ready", "backend", cfg.LockBackend, "addr", cfg.RedisAddr)
	return redislock.NewLocker(client, cfg.LockTTL, cfg.LockRetryInterval, logger), nil
}
