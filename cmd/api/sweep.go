package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sclint/support-desk/internal/worker"
)

// sweep runs one SLA sweep, waits for its notifications to go out, and exits.
func sweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	loc, err := c.cfg.SLA.Location()
	if err != nil {
		return err
	}
	slaWorker, err := worker.NewSLAWorker(c.tickets, c.cfg.SLA.SweepSchedule, loc, c.metrics, c.logger.Named("sla"))
	if err != nil {
		return err
	}

	deliverCtx, stopDelivery := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		return worker.RunNotificationWorker(deliverCtx, c.dispatcher, c.notifications)
	})

	report, sweepErr := slaWorker.RunOnce(ctx)
	stopDelivery()
	if err := g.Wait(); err != nil {
		c.logger.Warn("notification delivery ended with error", zap.Error(err))
	}
	if sweepErr != nil {
		return sweepErr
	}

	c.logger.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("reclassified", report.Reclassified),
		zap.Int("breached", report.Breached),
		zap.Int("failed", report.Failed))
	return nil
}
