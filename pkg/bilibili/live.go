package bilibili

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
)

type Host struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	WSSPort int    `json:"wss_port"`
	WSPort  int    `json:"ws_port"`
}

// URL is the secure websocket address of the push channel.
func (h Host) URL() string {
	return fmt.Sprintf("wss://%s:%d/sub", h.Host, h.WSSPort)
}

// ConnectInfo is what a room connection needs to authenticate.
type ConnectInfo struct {
	Token string `json:"token"`
	Hosts []Host `json:"host_list"`
}

// Message is one entry of the room's recent chat history.
type Message struct {
	UID  uint64 `json:"uid"`
	Text string `json:"text"`
}

func (c *Client) ConnectInfo(ctx context.Context, roomNumber uint64) (*ConnectInfo, error) {
	sign, err := c.webSign(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("id", strconv.FormatUint(roomNumber, 10))
	params.Set("type", "0")

	u := c.endpoints.Live + "/xlive/web-room/v1/index/getDanmuInfo?" + sign.Sign(params, c.now())

	var info ConnectInfo
	if err := c.get(ctx, u, &info); err != nil {
		return nil, fmt.Errorf("connect info for room %d: %w", roomNumber, err)
	}
	if len(info.Hosts) == 0 {
		return nil, fmt.Errorf("connect info for room %d: %w: empty host list", roomNumber, ErrRequestFailed)
	}
	return &info, nil
}

// Keepalive reports the session as an active web viewer so the room keeps
// counting it.
func (c *Client) Keepalive(ctx context.Context, roomNumber uint64) error {
	hb := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("60|%d|1|0", roomNumber)))
	u := c.endpoints.LiveTrace + "/xlive/rdata-interface/v1/heartbeat/webHeartBeat?pf=web&hb=" + url.QueryEscape(hb)

	if err := c.get(ctx, u, nil); err != nil {
		return fmt.Errorf("keepalive for room %d: %w", roomNumber, err)
	}
	return nil
}

func (c *Client) RecentMessages(ctx context.Context, roomNumber uint64) ([]Message, error) {
	u := c.endpoints.Live + "/xlive/web-room/v1/dM/gethistory?roomid=" + strconv.FormatUint(roomNumber, 10)

	var data struct {
		Room []Message `json:"room"`
	}
	if err := c.get(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("recent messages for room %d: %w", roomNumber, err)
	}
	return data.Room, nil
}

// Buvid3 asks the platform for an anonymous browser id.
func (c *Client) Buvid3(ctx context.Context) (string, error) {
	var data struct {
		Buvid string `json:"buvid"`
	}
	if err := c.get(ctx, c.endpoints.API+"/x/web-frontend/getbuvid", &data); err != nil {
		return "", fmt.Errorf("buvid3: %w", err)
	}
	if data.Buvid == "" {
		return "", fmt.Errorf("buvid3: %w: empty buvid", ErrRequestFailed)
	}
	return data.Buvid, nil
}
