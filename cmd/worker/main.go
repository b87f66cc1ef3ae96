package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/studiopay/internal/bootstrap"
	infraRedis "github.com/cassiomorais/studiopay/internal/infrastructure/redis"
	"github.com/cassiomorais/studiopay/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx, "studiopay-worker", "studiopay_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svc, err := app.Services()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build services")
	}
	dispatcher, err := app.Dispatcher(svc)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build notification dispatcher")
	}

	// --- Wake-up stream consumer ---
	jobsCfg := app.Config.Jobs
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.JobWakeupStream,
		jobsCfg.ConsumerGroup,
		app.Config.InstanceID,
		int64(jobsCfg.BatchSize),
		jobsCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group, relying on polling")
	}

	jobWorker := worker.NewJobWorker(svc.Jobs, dispatcher, svc.TxManager, consumer,
		app.RetryPolicy(), jobsCfg, app.Metrics, app.Logger)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Notification job workers, reaper and wake-up listener.
	g.Go(func() error {
		return jobWorker.Run(gCtx)
	})

	// 2. Expiry of push payments nobody answered.
	if app.Config.Sweeper.Enabled {
		sweeper := worker.NewPaymentSweeper(svc.Payments, svc.Gateway, svc.Reconciler,
			infraRedis.NewLocker(app.Redis), app.Config.Sweeper, app.Config.Gateway.PaymentExpiry,
			app.Metrics, app.Logger)
		g.Go(func() error {
			return sweeper.Run(gCtx)
		})
	}

	app.Logger.Info().
		Str("stream", infraRedis.JobWakeupStream).
		Str("group", jobsCfg.ConsumerGroup).
		Int("workers", jobsCfg.Workers).
		Bool("sweeper", app.Config.Sweeper.Enabled).
		Msg("Worker started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
