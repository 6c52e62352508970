package upstox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oipulse/internal/config"
	"oipulse/internal/logger"
)

// ErrDataFetch 标记一次行情抓取失败，引擎据此跳过当轮而不中断循环。
var ErrDataFetch = errors.New("行情抓取失败")

// ErrUnauthorized 标记 token 失效，需要人工更换。
var ErrUnauthorized = errors.New("upstox token 鉴权失败")

const responseLimitBytes = 4 << 20

// Client 封装 Upstox v2 REST 访问:Bearer 鉴权、单次超时与重试退避。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	attempts   int
	retryBase  time.Duration
}

func NewClient(cfg config.UpstoxConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("upstox.base_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 upstox.base_url 失败: %w", err)
	}
	token := cfg.ResolveToken()
	if token == "" {
		return nil, fmt.Errorf("upstox access token 未配置(配置文件或 UPSTOX_ACCESS_TOKEN)")
	}
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 3
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		token:      token,
		attempts:   attempts,
		retryBase:  time.Second,
	}, nil
}

// SetHTTPClient 供测试替换底层 HTTP 客户端。
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// getJSON 拉取一个 JSON 端点，带重试退避。鉴权失败不重试。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("upstox client 未初始化")
	}
	endpoint, err := c.resolveEndpoint(path, query)
	if err != nil {
		return nil, err
	}

	delay := c.retryBase
	if delay <= 0 {
		delay = time.Second
	}
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err := c.doOnce(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt < c.attempts {
			logger.Warnf("upstox 请求失败(第 %d/%d 次)，%s 后重试: %v", attempt, c.attempts, delay, err)
			if !sleepWithContext(ctx, delay) {
				return nil, ctx.Err()
			}
			delay = nextDelay(delay)
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: upstox 返回 %s", ErrDataFetch, resp.Status)
		}
		return nil, fmt.Errorf("%w: upstox 返回 %s: %s", ErrDataFetch, resp.Status, strings.TrimSpace(string(data)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimitBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", ErrDataFetch, err)
	}
	return body, nil
}

func (c *Client) resolveEndpoint(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("解析请求路径失败: %w", err)
	}
	endpoint := c.baseURL.ResolveReference(ref)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
