package bilibili

import (
	"context"
	"fmt"
)

type GiftInfo struct {
	ID    uint64  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// GiftConfig is the platform-wide gift catalog plus the icon of every
// membership role.
type GiftConfig struct {
	Gifts      []GiftInfo
	GuardIcons map[string]string
}

func (c *Client) GiftConfig(ctx context.Context) (*GiftConfig, error) {
	u := c.endpoints.Live + "/xlive/web-room/v1/giftPanel/roomGiftConfig?platform=pc"

	var data struct {
		GlobalGift struct {
			List []struct {
				ID       uint64 `json:"id"`
				Name     string `json:"name"`
				Price    int64  `json:"price"`
				ImgBasic string `json:"img_basic"`
			} `json:"list"`
		} `json:"global_gift"`
		GuardResources []struct {
			Name string `json:"name"`
			Img  string `json:"img"`
		} `json:"guard_resources"`
	}
	if err := c.get(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("gift config: %w", err)
	}

	cfg := &GiftConfig{
		Gifts:      make([]GiftInfo, 0, len(data.GlobalGift.List)),
		GuardIcons: make(map[string]string, len(data.GuardResources)),
	}
	for _, g := range data.GlobalGift.List {
		cfg.Gifts = append(cfg.Gifts, GiftInfo{
			ID:    g.ID,
			Name:  g.Name,
			Price: float64(g.Price) / 1000,
			Image: g.ImgBasic,
		})
	}
	for _, r := range data.GuardResources {
		cfg.GuardIcons[r.Name] = r.Img
	}
	return cfg, nil
}
