package legacy

import (
	"fmt"
	"strings"

	"neo4jogm/biz/query/geo"
	"neo4jogm/biz/query/part"
)

type startKind int

const (
	exactStart   startKind = iota // `v`=node:`Idx`(`key`={0})
	queryStart                    // `v`=node:`Idx`({0})，值为 Lucene 查询串
	spatialStart                  // `v`=node:`Idx`({0})，值为 withinDistance / bbox
	graphIDStart                  // `v`=node({0})
)

// StartClause 基于旧式索引或内部 ID 的起点查找
type StartClause struct {
	kind  startKind
	parts []*PartInfo
}

func newStartClause(pi *PartInfo) *StartClause {
	c := &StartClause{parts: []*PartInfo{pi}}
	switch {
	case pi.IsSpatial():
		c.kind = spatialStart
	case pi.IsFullText() || pi.Type() != part.SimpleProperty:
		c.kind = queryStart
	default:
		c.kind = exactStart
	}
	return c
}

func newGraphIDStartClause(pi *PartInfo) *StartClause {
	return &StartClause{kind: graphIDStart, parts: []*PartInfo{pi}}
}

// startable 判断片段能否作为索引起点
func startable(pi *PartInfo) bool {
	if pi.IsSpatial() {
		return pi.Type() == part.Near || pi.Type() == part.Within
	}
	switch pi.Type() {
	case part.SimpleProperty, part.Like, part.StartingWith, part.EndingWith, part.Containing:
		return !pi.Part().IgnoreCase || pi.IsFullText()
	}
	return false
}

// PartInfo 返回第一个片段
func (c *StartClause) PartInfo() *PartInfo { return c.parts[0] }

// PartInfos 返回全部片段
func (c *StartClause) PartInfos() []*PartInfo { return c.parts }

func (c *StartClause) sameIdentifier(pi *PartInfo) bool {
	return c.kind != graphIDStart && c.parts[0].Variable() == pi.Variable()
}

func (c *StartClause) sameIndex(pi *PartInfo) bool {
	return c.kind != spatialStart && !pi.IsSpatial() && c.parts[0].IndexName() == pi.IndexName()
}

// merge 同一索引上的多个片段合并为一个 Lucene 查询
func (c *StartClause) merge(pi *PartInfo) {
	c.parts = append(c.parts, pi)
	c.kind = queryStart
}

// HasMultipleParts 是否由多个片段合并而来
func (c *StartClause) HasMultipleParts() bool {
	return len(c.parts) > 1
}

func (c *StartClause) String() string {
	first := c.parts[0]
	switch c.kind {
	case graphIDStart:
		return fmt.Sprintf("`%s`=node(%s)", first.Variable(), first.placeholder(0))
	case exactStart:
		return fmt.Sprintf("`%s`=node:`%s`(`%s`=%s)", first.Variable(), first.IndexName(), first.IndexKey(), first.placeholder(0))
	default:
		return fmt.Sprintf("`%s`=node:`%s`(%s)", first.Variable(), first.IndexName(), first.placeholder(0))
	}
}

func (c *StartClause) resolve(params map[string]any, convert func(any) any) error {
	first := c.parts[0]
	switch c.kind {
	case graphIDStart:
		params[first.slot(0)] = convert(params[first.slot(0)])
	case exactStart:
		params[first.slot(0)] = convert(params[first.slot(0)])
	case spatialStart:
		q, err := spatialQuery(first, params)
		if err != nil {
			return err
		}
		params[first.slot(0)] = q
	case queryStart:
		fragments := make([]string, 0, len(c.parts))
		for _, pi := range c.parts {
			f, err := luceneFragment(pi, convert(params[pi.slot(0)]), len(c.parts) > 1)
			if err != nil {
				return err
			}
			fragments = append(fragments, f)
			if pi != first {
				delete(params, pi.slot(0))
			}
		}
		params[first.slot(0)] = strings.Join(fragments, " AND ")
	}
	return nil
}

// luceneFragment 把单个片段的值转为 key:value 形式
func luceneFragment(pi *PartInfo, value any, merged bool) (string, error) {
	s := fmt.Sprint(value)
	key := pi.IndexKey()
	hasSpace := strings.ContainsAny(s, " \t")
	switch pi.Type() {
	case part.StartingWith, part.EndingWith, part.Containing:
		if hasSpace {
			return "", fmt.Errorf("%w: wildcard index query on %s cannot contain whitespace: %q", ErrInvalidValue, key, s)
		}
		switch pi.Type() {
		case part.StartingWith:
			s += "*"
		case part.EndingWith:
			s = "*" + s
		default:
			s = "*" + s + "*"
		}
		return key + ":" + s, nil
	case part.Like:
		s = strings.ReplaceAll(s, "%", "*")
	}
	if pi.IsFullText() && !merged && strings.Contains(s, ":") {
		return s, nil
	}
	if hasSpace {
		s = `"` + s + `"`
	}
	return key + ":" + s, nil
}

func spatialQuery(pi *PartInfo, params map[string]any) (string, error) {
	value := params[pi.slot(0)]
	switch pi.Type() {
	case part.Within:
		switch shape := value.(type) {
		case geo.Circle:
			return geo.WithinDistanceQuery(shape.Center, shape.RadiusKm), nil
		case geo.Box:
			return geo.BBoxQuery(shape), nil
		}
	case part.Near:
		center, ok := value.(geo.Point)
		if !ok {
			break
		}
		dist, ok := toKm(params[pi.slot(1)])
		if !ok {
			return "", fmt.Errorf("%w: Near on %s expects a distance, got %T", ErrInvalidValue, pi.IndexKey(), params[pi.slot(1)])
		}
		delete(params, pi.slot(1))
		return geo.WithinDistanceQuery(center, dist), nil
	}
	return "", fmt.Errorf("%w: %s on %s does not accept %T", ErrInvalidValue, pi.Type(), pi.IndexKey(), value)
}

func toKm(v any) (float64, bool) {
	switch d := v.(type) {
	case geo.Distance:
		return float64(d), true
	case float64:
		return d, true
	case int:
		return float64(d), true
	case int64:
		return float64(d), true
	}
	return 0, false
}
