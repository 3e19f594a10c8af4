// Package rest 通过图数据库的 HTTP REST 接口执行查询，作为 bolt 之外的另一种传输。
package rest

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Doer 发送 HTTP 请求，hertz 的 *client.Client 实现了该接口
type Doer interface {
	Do(ctx context.Context, req *protocol.Request, resp *protocol.Response) error
}

// RestRequest 相对于基础 URI 发起请求
type RestRequest interface {
	Get(ctx context.Context, path string) (*RequestResult, error)
	Post(ctx context.Context, path string, data any) (*RequestResult, error)
	Put(ctx context.Context, path string, data any) (*RequestResult, error)
	Delete(ctx context.Context, path string) (*RequestResult, error)
	// With 返回以 uri 为基础 URI 的请求，共享同一个客户端与认证信息
	With(uri string) RestRequest
	URI() string
}

// ExecutingRestRequest 用 hertz 客户端执行请求，请求体与响应体使用 JSON
type ExecutingRestRequest struct {
	baseURI string
	auth    string
	client  Doer
}

// NewClient 创建共享的 hertz 客户端
func NewClient(timeout time.Duration) (*client.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("rest: 创建 HTTP 客户端失败: %w", err)
	}
	return c, nil
}

// NewExecutingRestRequest user 为空时不发送认证头
func NewExecutingRestRequest(c Doer, baseURI, user, password string) *ExecutingRestRequest {
	r := &ExecutingRestRequest{baseURI: strings.TrimRight(baseURI, "/"), client: c}
	if user != "" {
		r.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
	}
	return r
}

func (r *ExecutingRestRequest) URI() string { return r.baseURI }

func (r *ExecutingRestRequest) With(uri string) RestRequest {
	return &ExecutingRestRequest{baseURI: strings.TrimRight(uri, "/"), auth: r.auth, client: r.client}
}

func (r *ExecutingRestRequest) Get(ctx context.Context, path string) (*RequestResult, error) {
	return r.do(ctx, consts.MethodGet, path, nil)
}

func (r *ExecutingRestRequest) Post(ctx context.Context, path string, data any) (*RequestResult, error) {
	return r.do(ctx, consts.MethodPost, path, data)
}

func (r *ExecutingRestRequest) Put(ctx context.Context, path string, data any) (*RequestResult, error) {
	return r.do(ctx, consts.MethodPut, path, data)
}

func (r *ExecutingRestRequest) Delete(ctx context.Context, path string) (*RequestResult, error) {
	return r.do(ctx, consts.MethodDelete, path, nil)
}

// resolve 绝对 URI 原样使用，相对路径拼接在基础 URI 之后
func (r *ExecutingRestRequest) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" {
		return r.baseURI
	}
	return r.baseURI + "/" + strings.TrimLeft(path, "/")
}

func (r *ExecutingRestRequest) do(ctx context.Context, method, path string, data any) (*RequestResult, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(r.resolve(path))
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if r.auth != "" {
		req.Header.Set("Authorization", r.auth)
	}
	if data != nil {
		body, err := sonic.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("rest: 序列化请求体失败: %w", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	if err := r.client.Do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("rest: %s %s 失败: %w", method, r.resolve(path), err)
	}
	// resp 会被回收，响应体需要复制
	return &RequestResult{
		Status:   resp.StatusCode(),
		Location: resp.Header.Get("Location"),
		Body:     append([]byte(nil), resp.Body()...),
	}, nil
}

// Encode 对路径片段做 URL 编码
func Encode(v any) string {
	return url.PathEscape(fmt.Sprint(v))
}
