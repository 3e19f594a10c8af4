package mapping

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Context 是实体映射元数据的注册表。
// 注册在启动阶段完成，之后的查询只读，并发安全。
type Context struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*NodeDescription
	byName map[string]*NodeDescription
	logger *zap.Logger
}

// NewContext 创建一个空的映射上下文
func NewContext(logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		byType: make(map[reflect.Type]*NodeDescription),
		byName: make(map[string]*NodeDescription),
		logger: logger.Named("mapping"),
	}
}

// Register 扫描结构体类型并注册，关系目标类型会被递归注册。
// 参数可以是值、指针或 reflect.Type。
func (c *Context) Register(values ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []*NodeDescription
	for _, v := range values {
		t, ok := v.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(v)
		}
		if t == nil {
			return fmt.Errorf("%w: nil entity", ErrMapping)
		}
		if err := c.registerType(derefType(t), &added); err != nil {
			c.rollback(added)
			return err
		}
	}
	if err := c.link(added); err != nil {
		c.rollback(added)
		return err
	}
	for _, nd := range added {
		if err := verify(nd); err != nil {
			c.rollback(added)
			return err
		}
		c.logger.Debug("注册实体", zap.String("entity", nd.Name), zap.Strings("labels", nd.AllLabels()))
	}
	return nil
}

func (c *Context) registerType(t reflect.Type, added *[]*NodeDescription) error {
	if _, ok := c.byType[t]; ok {
		return nil
	}
	nd, err := scanType(t)
	if err != nil {
		return err
	}
	if existing, ok := c.byName[nd.Name]; ok && existing.GoType != t {
		return fmt.Errorf("%w: entity name %s registered twice", ErrMapping, nd.Name)
	}
	c.byType[t] = nd
	c.byName[nd.Name] = nd
	*added = append(*added, nd)

	for _, rel := range nd.relationships {
		if err := c.registerType(rel.targetType, added); err != nil {
			return err
		}
	}
	return nil
}

// link 把关系描述中延迟解析的目标实体补齐
func (c *Context) link(added []*NodeDescription) error {
	for _, nd := range added {
		for _, rel := range nd.relationships {
			if rel.Target != nil {
				continue
			}
			var target *NodeDescription
			switch {
			case rel.targetType != nil:
				target = c.byType[rel.targetType]
			case rel.targetName != "":
				target = c.byName[rel.targetName]
			}
			if target == nil {
				return fmt.Errorf("%w: relationship %s.%s targets unknown entity %s",
					ErrUnknownEntity, nd.Name, rel.FieldName, rel.targetName)
			}
			rel.Target = target
		}
	}
	return nil
}

func (c *Context) rollback(added []*NodeDescription) {
	for _, nd := range added {
		if nd.GoType != nil {
			delete(c.byType, nd.GoType)
		}
		delete(c.byName, nd.Name)
	}
}

// verify 校验单个实体：重复属性、动态关系
func verify(nd *NodeDescription) error {
	seen := make(map[string]int)
	for _, p := range nd.properties {
		if p.Transient || p.IsAssociation() {
			continue
		}
		if p.IsID && nd.IsUsingInternalIDs() {
			continue
		}
		seen[p.PropertyName]++
	}
	var dups []string
	for name, n := range seen {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		noun := "property"
		if len(dups) > 1 {
			noun = "properties"
		}
		return fmt.Errorf("%w: Duplicate definition of %s [%s] in entity %s.",
			ErrMapping, noun, strings.Join(dups, ", "), nd.Name)
	}

	dynamicTargets := make(map[*NodeDescription]int)
	for _, rel := range nd.relationships {
		if rel.Dynamic {
			dynamicTargets[rel.Target]++
		}
	}
	for target, n := range dynamicTargets {
		if n > 1 {
			return fmt.Errorf("%w: Only one dynamic relationship between two entities is permitted. %s has %d to %s",
				ErrMapping, nd.Name, n, target.Name)
		}
	}
	return nil
}

// NodeDescription 返回已注册实体的描述，v 可以是值、指针或 reflect.Type
func (c *Context) NodeDescription(v any) (*NodeDescription, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnknownEntity)
	}
	t = derefType(t)
	if t.Kind() == reflect.Slice {
		t = derefType(t.Elem())
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	nd, ok := c.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, t)
	}
	return nd, nil
}

// NodeDescriptionByName 按实体名查找（结构体实体和声明式实体都适用）
func (c *Context) NodeDescriptionByName(name string) (*NodeDescription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nd, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return nd, nil
}

// Entities 按名称排序返回全部实体
func (c *Context) Entities() []*NodeDescription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*NodeDescription, 0, len(c.byName))
	for _, nd := range c.byName {
		out = append(out, nd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
