package graphrepo

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Op 变更类型
type Op string

const (
	OpSaved   Op = "saved"
	OpDeleted Op = "deleted"
)

// Event 实体变更事件，其他实例收到后删除本地缓存中的对应 key
type Event struct {
	Entity string `json:"entity"`
	ID     any    `json:"id"`
	Op     Op     `json:"op"`
}

// Key 事件对应的缓存 key
func (e Event) Key() string {
	return EntityKey(e.Entity, e.ID)
}

// EntityKey 实体缓存 key，格式为 实体名:ID
func EntityKey(entity string, id any) string {
	return fmt.Sprintf("%s:%v", entity, id)
}

func (r *Repository[T]) tracksChanges() bool {
	return r.cache != nil || r.publisher != nil
}

// changed 写操作已经成功，缓存与事件的失败只记录警告
func (r *Repository[T]) changed(ctx context.Context, id any, op Op) {
	ev := Event{Entity: r.entity.Name, ID: id, Op: op}
	if r.cache != nil {
		if err := r.cache.Delete(ctx, ev.Key()); err != nil {
			r.logger.Warn("删除缓存失败", zap.String("key", ev.Key()), zap.Error(err))
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, r.opts.RoutingKey, ev); err != nil {
			r.logger.Warn("发布变更事件失败", zap.String("key", ev.Key()), zap.Error(err))
		}
	}
}
