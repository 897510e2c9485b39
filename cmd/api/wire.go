package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/config"
	"github.com/sclint/support-desk/internal/events"
	"github.com/sclint/support-desk/internal/notify"
	"github.com/sclint/support-desk/internal/observability"
	"github.com/sclint/support-desk/internal/persistence"
	"github.com/sclint/support-desk/internal/repository"
	"github.com/sclint/support-desk/internal/service"
	"github.com/sclint/support-desk/internal/sla"
	"github.com/sclint/support-desk/internal/storage"
)

// components is the fully wired object graph shared by the commands.
type components struct {
	cfg        *config.Config
	logger     *zap.Logger
	postgres   *persistence.Postgres
	redis      *persistence.Redis
	metrics    *observability.Metrics
	dispatcher *events.AsyncDispatcher

	users         repository.UserRepository
	tickets       *service.TicketService
	notifications *service.NotificationService
	auth          *service.AuthService
}

func (c *components) close() {
	c.redis.Close()
	c.postgres.Close()
	_ = c.logger.Sync()
}

func loadBase() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, logger, nil
}

func bootstrap(ctx context.Context) (*components, error) {
	cfg, logger, err := loadBase()
	if err != nil {
		return nil, err
	}

	loc, err := cfg.SLA.Location()
	if err != nil {
		return nil, err
	}
	calendar, err := sla.NewCalendar(cfg.SLA.WorkStartHour, cfg.SLA.WorkEndHour, loc)
	if err != nil {
		return nil, err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if _, err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.MigrateUp, 0, logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)

	pool := pg.PoolHandle()
	clk := clock.Real()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	dispatcher := events.NewAsyncDispatcher(logger, cfg.Notification.QueueSize, cfg.Notification.Workers)

	var files service.FileStorage
	if cfg.Storage.Enabled() {
		store, err := storage.NewMinioStore(cfg.Storage, logger)
		if err != nil {
			rdb.Close()
			pg.Close()
			return nil, err
		}
		files = store
	} else {
		logger.Warn("attachment storage not configured; uploads will be rejected")
	}

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		UserRepo:       userRepo,
		HistoryRepo:    historyRepo,
		Dispatcher:     dispatcher,
		Rotator:        service.NewSupportRotator(userRepo),
		Keys:           service.NewTicketKeyGenerator(ticketRepo, clk, cfg.Ticket.KeyPrefix),
		Classifier:     sla.NewClassifier(calendar, clk),
		Storage:        files,
		Clock:          clk,
		Logger:         logger.Named("tickets"),
		BreachAfter:    cfg.SLA.BreachAfter(),
		MaxUploadBytes: cfg.Ticket.MaxUploadBytes,
		Location:       loc,
	})

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:       dispatcher,
		UserRepo:         userRepo,
		NotificationRepo: notificationRepo,
		Notifier:         notify.NewInAppNotifier(notificationRepo, rdb.Client, clk, logger.Named("inapp")),
		Mailer:           notify.NewSendGridMailer(cfg.Notification, logger.Named("mailer")),
		Logger:           logger.Named("notifications"),
	})

	return &components{
		cfg:           cfg,
		logger:        logger,
		postgres:      pg,
		redis:         rdb,
		metrics:       observability.NewMetrics(),
		dispatcher:    dispatcher,
		users:         userRepo,
		tickets:       tickets,
		notifications: notifications,
		auth:          service.NewAuthService(cfg.Auth, userRepo),
	}, nil
}
