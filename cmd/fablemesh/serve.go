package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fablemesh/internal/api"
	"fablemesh/internal/arc"
	"fablemesh/internal/config"
	"fablemesh/internal/feed"
	"fablemesh/internal/pipeline"
	"fablemesh/internal/reconcile"
	"fablemesh/internal/relationship"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	emitter := feed.NewEmitter(db, log)
	defer emitter.Wait()

	p := pipeline.New(
		db,
		embedder,
		relationship.NewMaintainer(db, cfg.Graph, log),
		arc.NewAssigner(db, cfg.Arcs, log),
		emitter,
		log,
	)
	reader := feed.NewReader(db, cfg.Feed.DefaultPageSize, cfg.Feed.MaxPageSize)
	reconciler := reconcile.New(db, cfg.Graph, cfg.Arcs, log)

	router := api.SetupRouter(api.NewHandler(db, p, reader, reconciler, log))
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.WithField("addr", cfg.Server.Addr).Info("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
