package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cassiomorais/framelink/internal/bootstrap"
	"github.com/cassiomorais/framelink/internal/dispatch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "framelink-relay", "framelink")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := dispatch.NewServer(dispatch.ServerDeps{
		Store:   app.Store,
		Claimer: app.Claimer,
		Redis:   app.Redis,
		Metrics: app.Metrics,
		Logger:  app.Logger,
		Relay:   app.Config.Relay,
	})

	addr := fmt.Sprintf(":%d", app.Config.Relay.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  app.Config.Relay.ReadTimeout,
		WriteTimeout: app.Config.Relay.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting relay server")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info().Msg("Shutting down relay server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Relay.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Relay server exited with error")
		os.Exit(1)
	}
	app.Logger.Info().Msg("Relay server exited")
}
