package mobula

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
	"resty.dev/v3"
)

var (
	ErrNotFound    = errors.New("mobula: not found")
	ErrUnavailable = errors.New("mobula: provider unavailable")
)

// ClientConfig HTTP 客户端参数
type ClientConfig struct {
	APIKey     string
	Timeout    time.Duration // 单次请求超时
	RateLimit  int           // 每分钟请求次数，0 不限速
	MaxRetries int
}

// Client 带限速的 resty 客户端
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)/60), 1)
	}

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
			wctx, cancel := context.WithTimeout(r.Context(), cfg.Timeout)
			defer cancel()
			if err := limiter.Wait(wctx); err != nil {
				return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
			}
			if cfg.APIKey != "" {
				r.SetHeader("Authorization", cfg.APIKey)
			}
			log.Debug().Str("url", r.URL).Msg("outgoing request")
			return nil
		}).
		AddResponseMiddleware(func(c *resty.Client, resp *resty.Response) error {
			if resp.StatusCode() >= 400 {
				log.Warn().Int("status", resp.StatusCode()).Str("url", resp.Request.URL).Msg("provider request failed")
			}
			return nil
		})

	return &Client{http: rc, limiter: limiter}
}

// GetJSON 发起 GET 并返回解析后的 JSON
// 404 映射为 ErrNotFound，其余失败包装为 ErrUnavailable
func (c *Client) GetJSON(ctx context.Context, url string, query map[string]string) (gjson.Result, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return gjson.Result{}, ErrNotFound
	case code >= 400:
		return gjson.Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}

	body := strings.TrimSpace(resp.String())
	if !gjson.Valid(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json body", ErrUnavailable)
	}
	return gjson.Parse(body), nil
}

func (c *Client) Close() error {
	return c.http.Close()
}
