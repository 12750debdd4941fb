package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/internal/cache"
	"github.com/Kostaaa1/bililive/internal/config"
	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/internal/metrics"
	"github.com/Kostaaa1/bililive/internal/sink"
	"github.com/Kostaaa1/bililive/pkg/bilibili"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

// app holds the wiring shared by run and watch.
type app struct {
	cfg      *config.Config
	l        zerolog.Logger
	client   *bilibili.Client
	resolver *bilibili.Resolver
	metrics  *metrics.Metrics
	queue    *live.Queue
	registry *live.Registry
	rdb      *redis.Client
	closers  []func() error
}

func needsRedis(cfg *config.Config) bool {
	if cfg.Cache.Driver == cache.DriverRedis {
		return true
	}
	for _, d := range cfg.Sink.Drivers {
		if d == sink.DriverRedis {
			return true
		}
	}
	return false
}

func newClient(cfg *config.Config, l zerolog.Logger) *bilibili.Client {
	return bilibili.New(
		bilibili.WithHTTPClient(&http.Client{Timeout: cfg.Network.Timeout}),
		bilibili.WithUserAgent(cfg.Network.UserAgent),
		bilibili.WithCredentials(cfg.Account),
		bilibili.WithRetry(cfg.Network.APIRetryMax, cfg.Network.APIRetryInterval),
		bilibili.WithLogger(l.With().Str("component", "api").Logger()),
	)
}

// newApp builds every collaborator. The sink built from cfg.Sink is wrapped
// around extra, which may be nil.
func newApp(ctx context.Context, cfg *config.Config, l zerolog.Logger, extra sink.Publisher) (*app, error) {
	a := &app{cfg: cfg, l: l, metrics: metrics.New()}

	if needsRedis(cfg) {
		rdb, err := sink.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	var rc redis.UniversalClient
	if a.rdb != nil {
		rc = a.rdb
	}
	c, err := cache.New(cfg.Cache, rc)
	if err != nil {
		a.close()
		return nil, err
	}

	a.client = newClient(cfg, l)
	if cfg.Account.Buvid3 == "" {
		if buvid, err := a.client.Buvid3(ctx); err != nil {
			l.Warn().Err(err).Msg("failed to fetch buvid3, connecting without it")
		} else {
			a.client.SetBuvid3(buvid)
		}
	}

	a.resolver = bilibili.NewResolver(a.client,
		bilibili.WithCache(c, cfg.Cache.TTL),
		bilibili.WithCatalogTTL(cfg.Live.GiftCacheTTL),
		bilibili.WithResolverLogger(l.With().Str("component", "resolver").Logger()),
	)

	pubs, err := sink.New(ctx, cfg.Sink, rc, l.With().Str("component", "sink").Logger())
	if err != nil {
		a.close()
		return nil, err
	}
	if extra != nil {
		pubs.Add(extra)
	}
	a.closers = append([]func() error{pubs.Close}, a.closers...)

	decoder := event.NewDecoder(a.resolver,
		event.WithLogger(l.With().Str("component", "decoder").Logger()),
		event.WithRawLog(cfg.Live.RawMessageLog),
		event.WithFailureHook(a.metrics.DecodeFailure),
	)

	opts := cfg.Live.Options
	creds := a.client.Credentials()
	opts.UID = creds.UID
	opts.Buvid = creds.Buvid3
	opts.UserAgent = a.client.UserAgent()

	a.queue = live.NewQueue(opts.ConnectInterval, l.With().Str("component", "queue").Logger(), a.metrics)
	a.registry = live.NewRegistry(a.queue, a.resolver, opts, live.Deps{
		Platform: a.client,
		Decoder:  decoder,
		Sink:     a.metrics.Sink(pubs),
		Observer: a.metrics,
		Logger:   l,
	})
	return a, nil
}

// watch registers uids. Rooms already watched are skipped; other failures
// are logged and the uid is left out.
func (a *app) watch(ctx context.Context, uids ...uint64) {
	for _, uid := range uids {
		room, err := a.registry.AddByUID(ctx, uid)
		switch {
		case errors.Is(err, live.ErrRoomExists):
		case err != nil:
			a.l.Error().Err(err).Uint64(logger.FieldUID, uid).Msg("failed to add room")
		default:
			a.l.Info().Stringer("room", room).Msg("room added")
		}
	}
}

func (a *app) close() {
	if a.registry != nil {
		a.registry.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.l.Warn().Err(err).Msg("shutdown step failed")
		}
	}
}
