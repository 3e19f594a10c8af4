package rest

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

var (
	// ErrNotFound 节点、关系或索引不存在
	ErrNotFound = errors.New("rest: not found")
	// ErrUnexpectedStatus 服务器返回了非预期的状态码
	ErrUnexpectedStatus = errors.New("rest: unexpected status")
)

// RequestResult 一次请求的结果
type RequestResult struct {
	Status   int
	Location string
	Body     []byte
}

func (r *RequestResult) StatusIs(status int) bool {
	return r.Status == status
}

func (r *RequestResult) StatusOtherThan(status int) bool {
	return r.Status != status
}

// Success 2xx
func (r *RequestResult) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// Text 原始响应体
func (r *RequestResult) Text() string {
	return string(r.Body)
}

// ToEntity 按 JSON 解析响应体，空响应体返回 nil
func (r *RequestResult) ToEntity() (any, error) {
	if len(r.Body) == 0 {
		return nil, nil
	}
	var v any
	if err := sonic.Unmarshal(r.Body, &v); err != nil {
		return nil, fmt.Errorf("rest: 解析响应失败: %w", err)
	}
	return v, nil
}

// IsMap 响应体是否为 JSON 对象
func (r *RequestResult) IsMap() bool {
	v, err := r.ToEntity()
	if err != nil {
		return false
	}
	_, ok := v.(map[string]any)
	return ok
}

// ToMap 把响应体解析为 JSON 对象
func (r *RequestResult) ToMap() (map[string]any, error) {
	v, err := r.ToEntity()
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rest: 响应不是 JSON 对象: %s", r.Text())
	}
	return m, nil
}

// Decode 把响应体解析到 dst
func (r *RequestResult) Decode(dst any) error {
	if err := sonic.Unmarshal(r.Body, dst); err != nil {
		return fmt.Errorf("rest: 解析响应失败: %w", err)
	}
	return nil
}

// check 404 映射为 ErrNotFound，其他非 2xx 带上状态码和响应体
func (r *RequestResult) check(what string) error {
	switch {
	case r.StatusIs(consts.StatusNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case !r.Success():
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, what, r.Status, r.Text())
	}
	return nil
}
