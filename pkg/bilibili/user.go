package bilibili

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

// Up is a streamer account and its live room.
type Up struct {
	UID        uint64 `json:"uid"`
	Name       string `json:"name"`
	Face       string `json:"face"`
	RoomNumber uint64 `json:"room_number"`
}

func (u Up) Room() event.Room {
	return event.Room{
		UID:        u.UID,
		Name:       u.Name,
		RoomNumber: u.RoomNumber,
		Avatar:     u.Face,
	}
}

func (c *Client) UpByUID(ctx context.Context, uid uint64) (*Up, error) {
	u := c.endpoints.Live + "/live_user/v1/Master/info?uid=" + strconv.FormatUint(uid, 10)

	var data struct {
		Info struct {
			Uname string `json:"uname"`
			Face  string `json:"face"`
		} `json:"info"`
		RoomID uint64 `json:"room_id"`
	}
	if err := c.get(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("up %d: %w", uid, err)
	}

	return &Up{
		UID:        uid,
		Name:       data.Info.Uname,
		Face:       data.Info.Face,
		RoomNumber: data.RoomID,
	}, nil
}

func (c *Client) UpByRoomNumber(ctx context.Context, roomNumber uint64) (*Up, error) {
	u := c.endpoints.Live + "/room/v1/Room/get_info?room_id=" + strconv.FormatUint(roomNumber, 10)

	var data struct {
		UID uint64 `json:"uid"`
	}
	if err := c.get(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("room %d: %w", roomNumber, err)
	}
	if data.UID == 0 {
		return nil, fmt.Errorf("room %d: %w: no owner uid", roomNumber, ErrRequestFailed)
	}
	return c.UpByUID(ctx, data.UID)
}
