package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/sclint/support-desk/internal/api/http"
	"github.com/sclint/support-desk/internal/api/http/handlers"
	"github.com/sclint/support-desk/internal/auth"
	"github.com/sclint/support-desk/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.close()
	logger := c.logger

	app := fiber.New(fiber.Config{
		AppName:      c.cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, c.metrics),
		BodyLimit:    int(c.cfg.Ticket.MaxUploadBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, c.metrics, c.cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(c.cfg.App.Name, version, c.postgres, c.redis, c.metrics),
		Auth:           handlers.NewAuthHandler(c.auth),
		Tickets:        handlers.NewTicketsHandler(c.tickets),
		Notifications:  handlers.NewNotificationsHandler(c.notifications),
		AuthMiddleware: auth.NewAuthMiddleware(c.auth.TokenManager(), c.users).Handle,
	})

	var slaWorker *worker.SLAWorker
	if c.cfg.SLA.SweepEnabled {
		loc, err := c.cfg.SLA.Location()
		if err != nil {
			return err
		}
		if slaWorker, err = worker.NewSLAWorker(c.tickets, c.cfg.SLA.SweepSchedule, loc, c.metrics, logger.Named("sla")); err != nil {
			return err
		}
	} else {
		logger.Warn("sla sweep disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.RunNotificationWorker(gctx, c.dispatcher, c.notifications)
	})

	if slaWorker != nil {
		g.Go(func() error {
			return slaWorker.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", c.cfg.App.Addr()))
		return app.Listen(c.cfg.App.Addr())
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		return err
	}
	logger.Info("service stopped")
	return nil
}
