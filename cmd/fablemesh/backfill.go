package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fablemesh/internal/arc"
	"fablemesh/internal/config"
	"fablemesh/internal/feed"
	"fablemesh/internal/pipeline"
	"fablemesh/internal/relationship"
)

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill [world-id]",
		Short: "Clear derived state and replay the content corpus in creation order",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBackfill,
	}
}

func runBackfill(cmd *cobra.Command, args []string) error {
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

	p := pipeline.New(
		db,
		embedder,
		relationship.NewMaintainer(db, cfg.Graph, log),
		arc.NewAssigner(db, cfg.Arcs, log),
		feed.NewEmitter(db, log),
		log,
	)

	worldID := ""
	if len(args) == 1 {
		worldID = args[0]
	}
	result, err := p.Backfill(ctx, worldID)
	if err != nil {
		return err
	}
	cmd.Printf("replayed %d content items\n", result.ItemsReplayed)
	return nil
}
