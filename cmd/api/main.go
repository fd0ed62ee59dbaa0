package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/civic-requests/internal/api/http"
	"github.com/spec-kit/civic-requests/internal/api/http/handlers"
	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/config"
	"github.com/spec-kit/civic-requests/internal/events"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/keylock"
	"github.com/spec-kit/civic-requests/internal/observability"
	"github.com/spec-kit/civic-requests/internal/persistence"
	"github.com/spec-kit/civic-requests/internal/policy"
	"github.com/spec-kit/civic-requests/internal/repository"
	"github.com/spec-kit/civic-requests/internal/repository/memory"
	"github.com/spec-kit/civic-requests/internal/service"
	"github.com/spec-kit/civic-requests/internal/worker"
)

type stores struct {
	requests repository.RequestRepository
	agents   repository.AgentRepository
	zones    repository.ZoneRepository
	citizens repository.CitizenRepository
	history  repository.RequestEventRepository
	comments repository.RequestCommentRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	repos := openStores(pg)

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	registry := policy.Default()
	if cfg.Policy.Path != "" {
		registry, err = policy.LoadFile(cfg.Policy.Path)
		if err != nil {
			logger.Fatal("failed to load policy", zap.String("path", cfg.Policy.Path), zap.Error(err))
		}
	}

	index := geo.NewIndex(registry.Sensitive)
	locks := keylock.New()
	dispatcher := events.NewInMemoryDispatcher()
	retry := &service.RetryPolicy{
		MaxRetries: cfg.Concurrency.MaxRetries,
		Backoff:    time.Duration(cfg.Concurrency.BackoffMS) * time.Millisecond,
	}

	var bridge *events.Bridge
	if cfg.NATS.URL != "" {
		conn, err := events.ConnectNATS(events.NATSConfig{
			URL:            cfg.NATS.URL,
			Name:           cfg.App.Name,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			ReconnectWait:  time.Duration(cfg.NATS.ReconnectWaitSeconds) * time.Second,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ConnectTimeout: time.Duration(cfg.NATS.ConnectTimeoutSeconds) * time.Second,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect nats", zap.Error(err))
		}
		defer conn.Drain() //nolint:errcheck
		bridge = events.NewBridge(conn, cfg.NATS.SubjectPrefix, logger)
	}

	citizenService := service.NewCitizenService(cfg.Auth, service.CitizenDependencies{
		CitizenRepo: repos.citizens,
		Logger:      logger,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo: repos.requests,
		AgentRepo:   repos.agents,
		CitizenRepo: repos.citizens,
		HistoryRepo: repos.history,
		CommentRepo: repos.comments,
		Registry:    registry,
		Index:       index,
		Locks:       locks,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Retry:       retry,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		RequestRepo: repos.requests,
		AgentRepo:   repos.agents,
		HistoryRepo: repos.history,
		Registry:    registry,
		Index:       index,
		Locks:       locks,
		Location:    cfg.App.Location(),
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Retry:       retry,
	})
	slaDeps := service.SLADependencies{
		RequestRepo: repos.requests,
		CacheTTL:    time.Duration(cfg.SLA.ReportTTLSeconds) * time.Second,
		PageSize:    cfg.SLA.PageSize,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	}
	if redis != nil {
		slaDeps.Cache = redis
	}
	slaService := service.NewSLAService(slaDeps)
	agentService := service.NewAgentService(service.AgentDependencies{
		AgentRepo:   repos.agents,
		ZoneRepo:    repos.zones,
		RequestRepo: repos.requests,
		Locks:       locks,
		Logger:      logger,
	})
	zoneService := service.NewZoneService(service.ZoneDependencies{
		ZoneRepo:    repos.zones,
		AgentRepo:   repos.agents,
		RequestRepo: repos.requests,
		Index:       index,
		Locks:       locks,
		Logger:      logger,
	})
	analyticsService := service.NewAnalyticsService(service.AnalyticsDependencies{
		RequestRepo: repos.requests,
		AgentRepo:   repos.agents,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	if err := zoneService.LoadIndex(ctx); err != nil {
		logger.Fatal("failed to load zones", zap.Error(err))
	}
	worker.StartEventWorkers(dispatcher, notificationService, bridge, logger)

	app := httptransport.NewApp(cfg.App.Name)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Citizens:       handlers.NewCitizensHandler(citizenService),
		Requests:       handlers.NewRequestsHandler(requestService, slaService),
		Agents:         handlers.NewAgentsHandler(agentService, assignmentService),
		Zones:          handlers.NewZonesHandler(zoneService),
		Analytics:      handlers.NewAnalyticsHandler(analyticsService),
		AuthMiddleware: auth.NewAuthMiddleware(citizenService.TokenManager(), repos.citizens),
		Metrics:        metrics,
		EnforceAuth:    cfg.Auth.Enforce,
	})

	sweeper := worker.NewSLASweeper(slaService,
		time.Duration(cfg.SLA.SweepIntervalSeconds)*time.Second,
		time.Duration(cfg.SLA.SweepTimeoutSeconds)*time.Second,
		logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", zap.Error(err))
	}
}

// openStores returns Postgres repositories when a pool is configured and
// in-memory stores otherwise.
func openStores(pg *persistence.Postgres) stores {
	if !pg.Enabled() {
		return stores{
			requests: memory.NewRequestStore(),
			agents:   memory.NewAgentStore(),
			zones:    memory.NewZoneStore(),
			citizens: memory.NewCitizenStore(),
			history:  memory.NewEventStore(),
			comments: memory.NewCommentStore(),
		}
	}
	pool := pg.PoolHandle()
	return stores{
		requests: repository.NewRequestRepository(pool),
		agents:   repository.NewAgentRepository(pool),
		zones:    repository.NewZoneRepository(pool),
		citizens: repository.NewCitizenRepository(pool),
		history:  repository.NewRequestEventRepository(pool),
		comments: repository.NewRequestCommentRepository(pool),
	}
}
