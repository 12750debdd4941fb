package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Kostaaa1/bililive/internal/cli/view/monitor"
	"github.com/Kostaaa1/bililive/internal/config"
	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/internal/sink"
)

func watchCmd(configPath *string) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "watch <uid>...",
		Short: "Follow rooms in a terminal view",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uids, err := parseUIDs(args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			// the terminal belongs to the view
			var out io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			cfg.Log.Pretty = false
			l := logger.NewWithWriter(cfg.Log, out)
			logger.Init(l)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cfg, uids)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file instead of discarding them")
	return cmd
}

func watch(ctx context.Context, cfg *config.Config, uids []uint64) error {
	events := sink.NewChannel(1024)
	a, err := newApp(ctx, cfg, logger.L(), events)
	if err != nil {
		return err
	}
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	g.Go(func() error {
		return a.queue.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		a.watch(ctx, uids...)
		return monitor.Run(ctx, a.registry, events.C())
	})
	return g.Wait()
}

func parseUIDs(args []string) ([]uint64, error) {
	uids := make([]uint64, 0, len(args))
	for _, arg := range args {
		uid, err := strconv.ParseUint(arg, 10, 64)
		if err != nil || uid == 0 {
			return nil, fmt.Errorf("invalid uid %q", arg)
		}
		uids = append(uids, uid)
	}
	return uids, nil
}
