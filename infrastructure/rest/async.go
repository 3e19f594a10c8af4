package rest

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkers 并发请求的默认上限
const DefaultWorkers = 8

// Statement 一条待执行的 Cypher
type Statement struct {
	Cypher string
	Params map[string]any
}

// AsyncAPI 在有限数量的 goroutine 上并发调用 RestAPI
type AsyncAPI struct {
	api     *RestAPI
	workers int
}

// NewAsyncAPI workers 不大于 0 时使用 DefaultWorkers
func NewAsyncAPI(api *RestAPI, workers int) *AsyncAPI {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &AsyncAPI{api: api, workers: workers}
}

// QueryAll 并发执行语句，结果与输入顺序一致。任一语句失败时取消其余请求。
func (a *AsyncAPI) QueryAll(ctx context.Context, statements []Statement) ([]*CypherResult, error) {
	results := make([]*CypherResult, len(statements))
	p := pool.New().WithMaxGoroutines(a.workers).WithContext(ctx).WithCancelOnError()
	for i, st := range statements {
		i, st := i, st
		p.Go(func(ctx context.Context) error {
			res, err := a.api.Query(ctx, st.Cypher, EncodeParams(st.Params))
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetNodes 并发按 ID 读取节点，结果与 ids 顺序一致
func (a *AsyncAPI) GetNodes(ctx context.Context, ids []int64, mode LoadMode) ([]*RestNode, error) {
	nodes := make([]*RestNode, len(ids))
	p := pool.New().WithMaxGoroutines(a.workers).WithContext(ctx).WithCancelOnError()
	for i, id := range ids {
		i, id := i, id
		p.Go(func(ctx context.Context) error {
			n, err := a.api.GetNodeByID(ctx, id, mode)
			if err != nil {
				return err
			}
			nodes[i] = n
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}
