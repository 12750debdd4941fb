package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Kostaaa1/bililive/internal/config"
	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/internal/server"
	"github.com/Kostaaa1/bililive/internal/store"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to every configured and stored room and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			l := logger.New(cfg.Log)
			logger.Init(l)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	l := logger.L()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := newApp(ctx, cfg, l, nil)
	if err != nil {
		return err
	}
	defer a.close()

	stored, err := st.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range stored {
		if err := a.registry.Add(rec.Room); err != nil && !errors.Is(err, live.ErrRoomExists) {
			l.Warn().Err(err).Stringer("room", rec.Room).Msg("skipping stored room")
		}
	}
	a.watch(ctx, cfg.Rooms...)
	l.Info().Int("rooms", len(a.registry.Rooms())).Msg("rooms registered")

	srv := server.New(cfg.Server, server.NewRooms(a.registry, st), a.metrics.Handler(), l)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.queue.Run(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	err = g.Wait()
	l.Info().Msg("shutting down")
	return err
}
