package bilibili

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

const (
	defaultIdentityTTL = 10 * time.Minute
	defaultCatalogTTL  = time.Hour
	identityKeyPrefix  = "bililive:up:"
)

// Cache stores encoded lookups. Get returns ErrCacheMiss for unknown keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// API is the subset of Client the resolver needs.
type API interface {
	UpByUID(ctx context.Context, uid uint64) (*Up, error)
	UpByRoomNumber(ctx context.Context, roomNumber uint64) (*Up, error)
	GiftConfig(ctx context.Context) (*GiftConfig, error)
}

// Resolver answers identity, gift and room lookups on top of the API, with
// identities cached and the gift catalog refreshed on a TTL.
type Resolver struct {
	api         API
	cache       Cache
	identityTTL time.Duration
	catalogTTL  time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	gifts     map[uint64]GiftInfo
	guards    map[string]string
	fetchedAt time.Time
}

type ResolverOption func(*Resolver)

// WithCache enables identity caching. A nil cache disables it.
func WithCache(c Cache, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
		if ttl > 0 {
			r.identityTTL = ttl
		}
	}
}

func WithCatalogTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.catalogTTL = ttl
		}
	}
}

func WithResolverLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

func NewResolver(api API, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		api:         api,
		identityTTL: defaultIdentityTTL,
		catalogTTL:  defaultCatalogTTL,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) up(ctx context.Context, uid uint64) (*Up, error) {
	key := identityKeyPrefix + strconv.FormatUint(uid, 10)

	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			var up Up
			if err := json.Unmarshal(raw, &up); err == nil {
				return &up, nil
			}
		case !errors.Is(err, ErrCacheMiss):
			r.logger.Warn().Err(err).Str("key", key).Msg("identity cache read failed")
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.api.UpByUID(ctx, uid)
	})
	if err != nil {
		return nil, err
	}
	up := v.(*Up)

	if r.cache != nil {
		if raw, err := json.Marshal(up); err == nil {
			if err := r.cache.Set(ctx, key, raw, r.identityTTL); err != nil {
				r.logger.Warn().Err(err).Str("key", key).Msg("identity cache write failed")
			}
		}
	}
	return up, nil
}

func (r *Resolver) LookupIdentity(ctx context.Context, uid uint64) (event.Identity, error) {
	up, err := r.up(ctx, uid)
	if err != nil {
		return event.Identity{}, err
	}
	return event.Identity{Name: up.Name, Avatar: up.Face, RoomNumber: up.RoomNumber}, nil
}

// ResolveUID returns the room owned by uid, or ErrNoLiveRoom.
func (r *Resolver) ResolveUID(ctx context.Context, uid uint64) (event.Room, error) {
	up, err := r.up(ctx, uid)
	if err != nil {
		return event.Room{}, err
	}
	if up.RoomNumber == 0 {
		return event.Room{}, fmt.Errorf("uid %d: %w", uid, ErrNoLiveRoom)
	}
	return up.Room(), nil
}

func (r *Resolver) ResolveRoomNumber(ctx context.Context, roomNumber uint64) (event.Room, error) {
	up, err := r.api.UpByRoomNumber(ctx, roomNumber)
	if err != nil {
		return event.Room{}, err
	}
	if up.RoomNumber == 0 {
		up.RoomNumber = roomNumber
	}
	return up.Room(), nil
}

func (r *Resolver) catalog(ctx context.Context) (map[uint64]GiftInfo, map[string]string, error) {
	r.mu.RLock()
	gifts, guards, fetchedAt := r.gifts, r.guards, r.fetchedAt
	r.mu.RUnlock()

	if gifts != nil && r.now().Sub(fetchedAt) < r.catalogTTL {
		return gifts, guards, nil
	}

	_, err, _ := r.group.Do("catalog", func() (any, error) {
		cfg, err := r.api.GiftConfig(ctx)
		if err != nil {
			return nil, err
		}
		byID := make(map[uint64]GiftInfo, len(cfg.Gifts))
		for _, g := range cfg.Gifts {
			byID[g.ID] = g
		}

		r.mu.Lock()
		r.gifts = byID
		r.guards = cfg.GuardIcons
		r.fetchedAt = r.now()
		r.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		// keep serving the previous catalog
		if gifts != nil {
			r.logger.Warn().Err(err).Msg("gift catalog refresh failed, serving stale copy")
			return gifts, guards, nil
		}
		return nil, nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gifts, r.guards, nil
}

func (r *Resolver) LookupGift(ctx context.Context, giftID uint64) (event.GiftEntry, error) {
	gifts, _, err := r.catalog(ctx)
	if err != nil {
		return event.GiftEntry{}, err
	}
	g, ok := gifts[giftID]
	if !ok {
		return event.GiftEntry{}, fmt.Errorf("gift %d not in catalog", giftID)
	}
	return event.GiftEntry{ID: g.ID, Name: g.Name, Price: g.Price, Image: g.Image}, nil
}

func (r *Resolver) LookupGuardIcon(ctx context.Context, roleName string) (string, error) {
	_, guards, err := r.catalog(ctx)
	if err != nil {
		return "", err
	}
	icon, ok := guards[roleName]
	if !ok {
		return "", fmt.Errorf("no icon for role %q", roleName)
	}
	return icon, nil
}
