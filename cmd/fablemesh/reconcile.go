package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fablemesh/internal/config"
	"fablemesh/internal/reconcile"
)

var (
	reconcileDaemon   bool
	reconcileInterval time.Duration
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [world-id]",
		Short: "Recompute derived state from the content corpus and repair drift",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReconcile,
	}
	cmd.Flags().BoolVar(&reconcileDaemon, "daemon", false, "Keep running, reconciling on an interval")
	cmd.Flags().DurationVar(&reconcileInterval, "interval", 0, "Override the configured reconcile interval (implies --daemon)")
	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	reconciler := reconcile.New(db, cfg.Graph, cfg.Arcs, log)

	if reconcileDaemon || reconcileInterval > 0 {
		interval := reconcileInterval
		if interval == 0 {
			interval = cfg.Reconcile.Interval
		}
		return reconciler.Run(ctx, interval)
	}

	worldID := ""
	if len(args) == 1 {
		worldID = args[0]
	}
	result, err := reconciler.Reconcile(ctx, worldID)
	if err != nil {
		return err
	}
	cmd.Printf("reconciled %d worlds: %d edges (%d drifted), %d arcs (%d drifted)\n",
		result.Worlds, result.Edges, result.EdgesDrifted, result.Arcs, result.ArcsDrifted)
	return nil
}
