package mapping

import (
	"reflect"
	"strings"
)

// IDStrategy 描述实体 ID 的生成方式
type IDStrategy int

const (
	// IDAssigned 由应用自己赋值，对应图中的一个普通属性
	IDAssigned IDStrategy = iota
	// IDInternal 使用数据库内部 id(n)
	IDInternal
	// IDUUID 保存时若为空则生成 UUID，同样落在图属性上
	IDUUID
)

func (s IDStrategy) String() string {
	switch s {
	case IDInternal:
		return "internal"
	case IDUUID:
		return "uuid"
	default:
		return "assigned"
	}
}

// IDDescription 描述实体的 ID
type IDDescription struct {
	Strategy     IDStrategy
	PropertyName string // 内部 ID 时为空
}

// IsInternallyGenerated 是否使用数据库内部 ID
func (d IDDescription) IsInternallyGenerated() bool {
	return d.Strategy == IDInternal
}

// Direction 关系方向，以实体自身为起点
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Undirected
)

func (d Direction) String() string {
	switch d {
	case Incoming:
		return "INCOMING"
	case Undirected:
		return "UNDIRECTED"
	default:
		return "OUTGOING"
	}
}

// ParseDirection 解析配置或 tag 中的方向写法
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "incoming":
		return Incoming
	case "both", "undirected":
		return Undirected
	default:
		return Outgoing
	}
}

// RelationshipDescription 描述实体上的一个关联
type RelationshipDescription struct {
	FieldName string
	Type      string // 动态关系时为空
	Direction Direction
	Dynamic   bool
	Source    *NodeDescription
	Target    *NodeDescription

	targetType reflect.Type
	targetName string
}

// IsOutgoing 关系是否从 Source 指向 Target
func (r *RelationshipDescription) IsOutgoing() bool {
	return r.Direction == Outgoing
}

// PersistentProperty 是实体上的一个持久化字段
type PersistentProperty struct {
	FieldName    string
	PropertyName string
	GoType       reflect.Type

	IsID          bool
	Indexed       bool
	IndexName     string // 为空时使用实体主标签
	FullText      bool
	Spatial       bool
	Unique        bool
	DynamicLabels bool
	Transient     bool

	// Relationship 非空表示该字段是关联而不是普通属性
	Relationship *RelationshipDescription

	fieldIndex []int
}

// IsAssociation 字段是否为关联
func (p *PersistentProperty) IsAssociation() bool {
	return p.Relationship != nil
}

// IsPrimitive 普通（非关联）属性
func (p *PersistentProperty) IsPrimitive() bool {
	return p.Relationship == nil
}

// NodeDescription 是一个实体的映射元数据
type NodeDescription struct {
	Name             string
	PrimaryLabel     string
	AdditionalLabels []string
	ID               IDDescription
	GoType           reflect.Type // 声明式实体为 nil

	idProperty    *PersistentProperty
	properties    []*PersistentProperty
	byField       map[string]*PersistentProperty
	relationships []*RelationshipDescription
}

func newNodeDescription(name string) *NodeDescription {
	return &NodeDescription{
		Name:    name,
		byField: make(map[string]*PersistentProperty),
	}
}

// AllLabels 返回主标签加附加标签
func (n *NodeDescription) AllLabels() []string {
	labels := make([]string, 0, 1+len(n.AdditionalLabels))
	labels = append(labels, n.PrimaryLabel)
	return append(labels, n.AdditionalLabels...)
}

// IsUsingInternalIDs 是否使用内部 ID
func (n *NodeDescription) IsUsingInternalIDs() bool {
	return n.ID.IsInternallyGenerated()
}

// IDProperty 返回 ID 字段，可能为 nil
func (n *NodeDescription) IDProperty() *PersistentProperty {
	return n.idProperty
}

// Property 按字段名（或图属性名）查找持久化属性
func (n *NodeDescription) Property(name string) (*PersistentProperty, bool) {
	if p, ok := n.byField[name]; ok {
		return p, true
	}
	for _, p := range n.properties {
		if p.PropertyName == name || strings.EqualFold(p.FieldName, name) {
			return p, true
		}
	}
	return nil, false
}

// GraphProperties 返回所有非关联、非瞬态的属性（保持声明顺序）
func (n *NodeDescription) GraphProperties() []*PersistentProperty {
	var out []*PersistentProperty
	for _, p := range n.properties {
		if p.IsPrimitive() && !p.Transient {
			out = append(out, p)
		}
	}
	return out
}

// Properties 返回全部字段，包括关联
func (n *NodeDescription) Properties() []*PersistentProperty {
	return n.properties
}

// Relationships 返回实体的所有关联描述
func (n *NodeDescription) Relationships() []*RelationshipDescription {
	return n.relationships
}

func (n *NodeDescription) addProperty(p *PersistentProperty) {
	n.properties = append(n.properties, p)
	n.byField[p.FieldName] = p
	if p.IsID {
		n.idProperty = p
	}
	if p.Relationship != nil {
		p.Relationship.Source = n
		n.relationships = append(n.relationships, p.Relationship)
	}
}
