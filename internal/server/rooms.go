package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/internal/store"
	"github.com/Kostaaa1/bililive/pkg/bilibili"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

// Registry is the part of live.Registry the API drives.
type Registry interface {
	AddByUID(ctx context.Context, uid uint64) (event.Room, error)
	AddByRoomNumber(ctx context.Context, roomNumber uint64) (event.Room, error)
	Remove(uid uint64) error
	Status() []live.Status
}

type Store interface {
	Save(ctx context.Context, room event.Room) error
	Delete(ctx context.Context, uid uint64) error
}

type Rooms struct {
	registry Registry
	store    Store
}

// NewRooms serves the watched room set. st may be nil, in which case changes
// are not persisted.
func NewRooms(registry Registry, st Store) *Rooms {
	return &Rooms{registry: registry, store: st}
}

func (h *Rooms) Register(r *gin.RouterGroup) {
	r.GET("/rooms", h.list)
	r.POST("/rooms", h.add)
	r.DELETE("/rooms/:uid", h.remove)
}

func (h *Rooms) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(h.registry.Status())})
}

func (h *Rooms) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.registry.Status()})
}

type addRequest struct {
	UID        uint64 `json:"uid"`
	RoomNumber uint64 `json:"room_number"`
}

func (h *Rooms) add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		room event.Room
		err  error
	)
	ctx := c.Request.Context()
	switch {
	case req.UID != 0:
		room, err = h.registry.AddByUID(ctx, req.UID)
	case req.RoomNumber != 0:
		room, err = h.registry.AddByRoomNumber(ctx, req.RoomNumber)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid or room_number is required"})
		return
	}
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	if h.store != nil {
		if err := h.store.Save(ctx, room); err != nil {
			l := logger.Ctx(ctx)
			l.Error().Err(err).Uint64(logger.FieldUID, room.UID).Msg("failed to persist room")
		}
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Rooms) remove(c *gin.Context) {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uid"})
		return
	}

	if err := h.registry.Remove(uid); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	if h.store != nil {
		ctx := c.Request.Context()
		if err := h.store.Delete(ctx, uid); err != nil && !errors.Is(err, store.ErrNotFound) {
			l := logger.Ctx(ctx)
			l.Error().Err(err).Uint64(logger.FieldUID, uid).Msg("failed to forget room")
		}
	}
	c.Status(http.StatusNoContent)
}

func statusOf(err error) int {
	var respErr *bilibili.ResponseError
	switch {
	case errors.Is(err, live.ErrRoomExists):
		return http.StatusConflict
	case errors.Is(err, live.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, live.ErrNoLiveRoom), errors.Is(err, bilibili.ErrNoLiveRoom):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bilibili.ErrNetwork), errors.Is(err, bilibili.ErrRequestFailed), errors.As(err, &respErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
