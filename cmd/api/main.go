package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/studiopay/internal/bootstrap"
	"github.com/cassiomorais/studiopay/internal/controller"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "studiopay-api", "studiopay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svc, err := app.Services()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build services")
	}

	health := controller.NewHealthController().
		Check("database", app.Pool.Ping).
		Check("redis", func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() })

	router := controller.NewRouter(controller.RouterDeps{
		Checkout:   svc.Checkout,
		Queries:    svc.Queries,
		Verifier:   svc.Verifier,
		Reconciler: svc.Reconciler,
		Operator:   svc.Operator,
		Health:     health,
		Metrics:    app.Metrics,
		Server:     app.Config.Server,
		Auth:       app.Config.Auth,
		Logger:     app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
