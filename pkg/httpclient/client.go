package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client 交易所 REST 客户端的公共底座（Binance/MEXC adapter 共用）。
// 注意：这里不做自动重试——重试会放大重复下单风险，重试策略属于调用方
// 或更外层的传输设施，不属于执行核心。
type Client struct {
	client *resty.Client
}

// NewClient 创建客户端。resty 会自动读取 HTTP_PROXY/HTTPS_PROXY 环境变量。
func NewClient(host string, timeout time.Duration) *Client {
	host = strings.TrimSuffix(host, "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout)
	return &Client{client: client}
}

// BaseURL 返回当前 base URL（测试时指向 httptest server）
func (c *Client) BaseURL() string {
	return c.client.BaseURL
}

// RequestOptions 单次请求选项
type RequestOptions struct {
	Headers map[string]string
	Query   map[string]string
	Body    any // string/[]byte 原样发送，其余 JSON 序列化
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "goperp/1.0")
	return r
}

// DoRequest 执行一次请求并把 2xx 响应 JSON 反序列化到 out。
// 非 2xx 响应返回 error，error 文本包含交易所返回的原始 body，
// adapter 把它转换为 {success:false, error} 时保持可读。
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) error {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if len(opt.Query) > 0 {
			rc.SetQueryParams(opt.Query)
		}
		if opt.Body != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Body)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	var (
		resp *resty.Response
		err  error
	)
	switch strings.ToUpper(method) {
	case http.MethodGet:
		resp, err = rc.Get(endpoint)
	case http.MethodPost:
		resp, err = rc.Post(endpoint)
	case http.MethodDelete:
		resp, err = rc.Delete(endpoint)
	case http.MethodPut:
		resp, err = rc.Put(endpoint)
	default:
		return fmt.Errorf("unsupported method: %s", method)
	}
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}
	if !resp.IsSuccess() {
		return errors.Errorf("%s %s: http %d: %s", method, endpoint, resp.StatusCode(), compactBody(resp.Body()))
	}
	return nil
}

// compactBody 把错误 body 压缩为单行，便于塞进 error 字符串
func compactBody(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	var v any
	if json.Unmarshal(b, &v) == nil {
		if s, err := json.Marshal(v); err == nil {
			return string(s)
		}
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}
