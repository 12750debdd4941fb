package bilibili

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ticketKeyID  = "ec02"
	ticketSecret = "XgwSnGZ1p"
)

var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

// WebSign is the ticket plus the two wbi keys issued by GenWebTicket.
type WebSign struct {
	Ticket  string
	Expires time.Time
	ImgKey  string
	SubKey  string
}

func (w *WebSign) valid(now time.Time) bool {
	return w != nil && w.Ticket != "" && now.Before(w.Expires)
}

// MixinKey permutes imgKey+subKey through the mixin table and keeps the
// first 32 characters.
func (w *WebSign) MixinKey() string {
	raw := w.ImgKey + w.SubKey
	var b strings.Builder
	for _, idx := range mixinKeyEncTab {
		if idx < len(raw) {
			b.WriteByte(raw[idx])
		}
	}
	key := b.String()
	if len(key) > 32 {
		key = key[:32]
	}
	return key
}

// Sign returns params with wts and w_rid appended, encoded in key order.
func (w *WebSign) Sign(params url.Values, now time.Time) string {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = append([]string(nil), v...)
	}
	signed.Set("wts", strconv.FormatInt(now.Unix(), 10))

	query := encodeSorted(signed)
	sum := md5.Sum([]byte(query + w.MixinKey()))
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}

func encodeSorted(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, val := range v[k] {
			parts = append(parts, escape(k)+"="+escape(val))
		}
	}
	return strings.Join(parts, "&")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func hmacHex(key, msg string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// wbiKey turns ".../7cd084941338484aae1ad9425b84077c.png" into its file stem.
func wbiKey(rawURL string) string {
	base := path.Base(rawURL)
	return strings.TrimSuffix(base, path.Ext(base))
}

type ticketData struct {
	Ticket    string `json:"ticket"`
	CreatedAt int64  `json:"created_at"`
	TTL       int64  `json:"ttl"`
	Nav       struct {
		Img string `json:"img"`
		Sub string `json:"sub"`
	} `json:"nav"`
}

// GenWebTicket asks the platform for a fresh ticket and wbi keys.
func (c *Client) GenWebTicket(ctx context.Context) (*WebSign, error) {
	ts := strconv.FormatInt(c.now().Unix(), 10)

	q := url.Values{}
	q.Set("key_id", ticketKeyID)
	q.Set("hexsign", hmacHex(ticketSecret, "ts"+ts))
	q.Set("context[ts]", ts)
	q.Set("csrf", c.Credentials().BiliJct)

	u := c.endpoints.API + "/bapis/bilibili.api.ticket.v1.Ticket/GenWebTicket?" + q.Encode()

	var data ticketData
	if err := c.post(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("gen web ticket: %w", err)
	}
	if data.Ticket == "" || data.Nav.Img == "" || data.Nav.Sub == "" {
		return nil, fmt.Errorf("gen web ticket: %w: incomplete ticket", ErrRequestFailed)
	}

	return &WebSign{
		Ticket:  data.Ticket,
		Expires: time.Unix(data.CreatedAt+data.TTL, 0),
		ImgKey:  wbiKey(data.Nav.Img),
		SubKey:  wbiKey(data.Nav.Sub),
	}, nil
}

// webSign returns the cached ticket, refreshing it once it expires.
func (c *Client) webSign(ctx context.Context) (*WebSign, error) {
	c.mu.RLock()
	sign := c.sign
	c.mu.RUnlock()
	if sign.valid(c.now()) {
		return sign, nil
	}

	fresh, err := c.GenWebTicket(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sign = fresh
	c.mu.Unlock()
	return fresh, nil
}
