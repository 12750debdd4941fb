package bilibili

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultMaxAttempts   = 3
	defaultRetryInterval = 3 * time.Second
	referer              = "https://www.bilibili.com"
)

// Endpoints holds the hosts the client talks to. Tests point all of them at
// one httptest server.
type Endpoints struct {
	API       string
	Live      string
	LiveTrace string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		API:       "https://api.bilibili.com",
		Live:      "https://api.live.bilibili.com",
		LiveTrace: "https://live-trace.bilibili.com",
	}
}

// Credentials are the cookies of a logged in account. All fields are
// optional; anonymous sessions get throttled harder by the platform.
type Credentials struct {
	UID      uint64 `mapstructure:"uid"`
	SessData string `mapstructure:"sessdata"`
	BiliJct  string `mapstructure:"bili_jct"`
	Buvid3   string `mapstructure:"buvid3"`
}

func (c Credentials) loggedIn() bool {
	return c.SessData != "" && c.BiliJct != "" && c.Buvid3 != ""
}

type Client struct {
	httpClient    *http.Client
	endpoints     Endpoints
	userAgent     string
	maxAttempts   int
	retryInterval time.Duration
	logger        zerolog.Logger
	now           func() time.Time

	mu    sync.RWMutex
	creds Credentials
	sign  *WebSign
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithCredentials(creds Credentials) Option {
	return func(c *Client) { c.creds = creds }
}

// WithRetry sets how many attempts a call gets and the fixed pause between
// them. Only ErrNetwork failures are retried.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if interval >= 0 {
			c.retryInterval = interval
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		endpoints:     DefaultEndpoints(),
		userAgent:     DefaultUserAgent,
		maxAttempts:   defaultMaxAttempts,
		retryInterval: defaultRetryInterval,
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) UserAgent() string {
	return c.userAgent
}

func (c *Client) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// SetBuvid3 stores a freshly issued browser id when none was configured.
func (c *Client) SetBuvid3(buvid string) {
	c.mu.Lock()
	c.creds.Buvid3 = buvid
	c.mu.Unlock()
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Referer", referer)
	h.Set("User-Agent", c.userAgent)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var cookies []string
	if c.creds.loggedIn() {
		cookies = append(cookies,
			"SESSDATA="+c.creds.SessData,
			"bili_jct="+c.creds.BiliJct,
		)
	}
	if c.creds.Buvid3 != "" {
		cookies = append(cookies, "buvid3="+c.creds.Buvid3)
	}
	if c.sign != nil && c.sign.Ticket != "" {
		cookies = append(cookies,
			"bili_ticket="+c.sign.Ticket,
			fmt.Sprintf("bili_ticket_expires=%d", c.sign.Expires.Unix()),
		)
	}
	if len(cookies) > 0 {
		h.Set("Cookie", strings.Join(cookies, "; "))
	}
	return h
}

type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) get(ctx context.Context, url string, dst any) error {
	return c.call(ctx, http.MethodGet, url, dst)
}

func (c *Client) post(ctx context.Context, url string, dst any) error {
	return c.call(ctx, http.MethodPost, url, dst)
}

// call retries ErrNetwork failures with a fixed pause and returns the last
// error once attempts run out. Anything else fails fast.
func (c *Client) call(ctx context.Context, method, url string, dst any) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.do(ctx, method, url, dst)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNetwork) {
			return err
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}

		c.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Dur("backoff", c.retryInterval).
			Msg("api call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}

	return fmt.Errorf("max attempts (%d) reached: %w", c.maxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, method, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrRequestFailed, err)
	}
	req.Header = c.headers()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d from %s", ErrNetwork, resp.StatusCode, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d from %s", ErrRequestFailed, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrRequestFailed, err)
	}
	if env.Code == nil {
		return fmt.Errorf("%w: response has no code field", ErrRequestFailed)
	}
	if *env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = "no message"
		}
		return &ResponseError{Code: *env.Code, Message: msg}
	}

	if dst == nil {
		return nil
	}

	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = env.Result
	}
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: response has neither data nor result", ErrRequestFailed)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrRequestFailed, err)
	}
	return nil
}
