package mapping

import (
	"fmt"
	"strings"
	"unicode"
)

// PropertyPath 是从根实体出发、可能跨越关系的属性路径，
// 例如 Person 上的 address.city 由两段组成。
type PropertyPath struct {
	Root     *NodeDescription
	Segments []*PersistentProperty
}

// Leaf 返回路径的最后一段
func (p PropertyPath) Leaf() *PersistentProperty {
	if len(p.Segments) == 0 {
		return nil
	}
	return p.Segments[len(p.Segments)-1]
}

// Owner 返回叶子属性所属的实体
func (p PropertyPath) Owner() *NodeDescription {
	cur := p.Root
	for _, seg := range p.Segments[:max(len(p.Segments)-1, 0)] {
		cur = seg.Relationship.Target
	}
	return cur
}

// Hops 返回路径经过的关系，叶子本身是关联时也包含在内
func (p PropertyPath) Hops() []*RelationshipDescription {
	var out []*RelationshipDescription
	for _, seg := range p.Segments {
		if seg.IsAssociation() {
			out = append(out, seg.Relationship)
		}
	}
	return out
}

// HasRelationship 路径是否跨越关系
func (p PropertyPath) HasRelationship() bool {
	for _, seg := range p.Segments {
		if seg.IsAssociation() {
			return true
		}
	}
	return false
}

// Len 路径段数
func (p PropertyPath) Len() int {
	return len(p.Segments)
}

// String 以图属性名输出点分路径
func (p PropertyPath) String() string {
	names := make([]string, len(p.Segments))
	for i, seg := range p.Segments {
		names[i] = seg.PropertyName
	}
	return strings.Join(names, ".")
}

// PropertyPath 在实体上解析属性路径，支持 address.city、address_city 和 addressCity 三种写法
func (c *Context) PropertyPath(nd *NodeDescription, path string) (PropertyPath, error) {
	if nd == nil {
		return PropertyPath{}, fmt.Errorf("%w: nil entity", ErrUnknownEntity)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	segs, err := resolvePath(nd, path)
	if err != nil {
		return PropertyPath{}, fmt.Errorf("%w: %s on entity %s", ErrUnknownProperty, path, nd.Name)
	}
	return PropertyPath{Root: nd, Segments: segs}, nil
}

func resolvePath(nd *NodeDescription, s string) ([]*PersistentProperty, error) {
	if s == "" || nd == nil {
		return nil, ErrUnknownProperty
	}
	if p, ok := nd.Property(s); ok {
		return []*PersistentProperty{p}, nil
	}

	if i := strings.IndexAny(s, "._"); i > 0 {
		head, tail := s[:i], s[i+1:]
		if p, ok := nd.Property(head); ok && p.IsAssociation() {
			rest, err := resolvePath(p.Relationship.Target, tail)
			if err == nil {
				return append([]*PersistentProperty{p}, rest...), nil
			}
		}
	}

	// 驼峰写法：从最长的前缀开始尝试
	runes := []rune(s)
	for i := len(runes) - 1; i > 0; i-- {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		head := string(runes[:i])
		p, ok := nd.Property(head)
		if !ok || !p.IsAssociation() {
			continue
		}
		rest, err := resolvePath(p.Relationship.Target, lowerFirst(string(runes[i:])))
		if err == nil {
			return append([]*PersistentProperty{p}, rest...), nil
		}
	}
	return nil, ErrUnknownProperty
}
