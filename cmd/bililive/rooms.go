package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Kostaaa1/bililive/internal/config"
	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/internal/store"
	"github.com/Kostaaa1/bililive/pkg/bilibili"
)

func roomsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage the stored room list picked up by run",
	}

	withStore := func(fn func(ctx context.Context, cfg *config.Config, st *store.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.Init(logger.New(cfg.Log))

			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()
			return fn(cmd.Context(), cfg, st, args)
		}
	}

	var byRoomNumber bool
	add := &cobra.Command{
		Use:   "add <uid>...",
		Short: "Resolve and store rooms",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(func(ctx context.Context, cfg *config.Config, st *store.Store, args []string) error {
			ids, err := parseUIDs(args)
			if err != nil {
				return err
			}
			client := newClient(cfg, logger.L())
			for _, id := range ids {
				var up *bilibili.Up
				if byRoomNumber {
					up, err = client.UpByRoomNumber(ctx, id)
				} else {
					up, err = client.UpByUID(ctx, id)
				}
				if err != nil {
					return fmt.Errorf("resolve %d: %w", id, err)
				}
				if up.RoomNumber == 0 {
					return fmt.Errorf("uid %d: %w", up.UID, bilibili.ErrNoLiveRoom)
				}
				if err := st.Save(ctx, up.Room()); err != nil {
					return err
				}
				fmt.Printf("added %s, room %d\n", up.Room(), up.RoomNumber)
			}
			return nil
		}),
	}
	add.Flags().BoolVar(&byRoomNumber, "room-number", false, "arguments are room numbers instead of uids")

	remove := &cobra.Command{
		Use:   "remove <uid>...",
		Short: "Forget stored rooms",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(func(ctx context.Context, _ *config.Config, st *store.Store, args []string) error {
			uids, err := parseUIDs(args)
			if err != nil {
				return err
			}
			for _, uid := range uids {
				if err := st.Delete(ctx, uid); err != nil {
					return fmt.Errorf("remove %d: %w", uid, err)
				}
			}
			return nil
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print stored rooms",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, _ *config.Config, st *store.Store, _ []string) error {
			recs, err := st.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UID\tNAME\tROOM\tADDED")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					strconv.FormatUint(rec.UID, 10), rec.Name,
					strconv.FormatUint(rec.RoomNumber, 10), humanize.Time(rec.AddedAt))
			}
			return w.Flush()
		}),
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}
