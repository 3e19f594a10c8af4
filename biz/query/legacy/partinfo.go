package legacy

import (
	"fmt"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query/part"
)

// PartInfo 是一个谓词片段在查询中的完整信息，构造后不再修改
type PartInfo struct {
	path     mapping.PropertyPath
	variable string
	part     part.Part
	index    int // 第一个占位符的下标，类型限制子句为 -1
}

func newPartInfo(path mapping.PropertyPath, variable string, p part.Part, index int) *PartInfo {
	return &PartInfo{path: path, variable: variable, part: p, index: index}
}

func (pi *PartInfo) Path() mapping.PropertyPath { return pi.path }
func (pi *PartInfo) Variable() string           { return pi.variable }
func (pi *PartInfo) Part() part.Part            { return pi.part }
func (pi *PartInfo) Type() part.Type            { return pi.part.Type }
func (pi *PartInfo) ParameterIndex() int        { return pi.index }

// Arity 片段占用的占位符个数
func (pi *PartInfo) Arity() int {
	if pi.index < 0 {
		return 0
	}
	return pi.part.Type.NumberOfArguments()
}

// Leaf 叶子属性
func (pi *PartInfo) Leaf() *mapping.PersistentProperty {
	return pi.path.Leaf()
}

// IsPrimitive 叶子是否为普通属性
func (pi *PartInfo) IsPrimitive() bool {
	return pi.Leaf().IsPrimitive()
}

// IsRelationship 叶子是否为关联
func (pi *PartInfo) IsRelationship() bool {
	return pi.Leaf().IsAssociation()
}

func (pi *PartInfo) IsIndexed() bool  { return pi.Leaf().Indexed }
func (pi *PartInfo) IsFullText() bool { return pi.Leaf().FullText }
func (pi *PartInfo) IsSpatial() bool  { return pi.Leaf().Spatial }

// IsLabelIndexed 普通索引在标签策略下是 schema 索引，只能放在 WHERE 中
func (pi *PartInfo) IsLabelIndexed(useLabels bool) bool {
	return useLabels && pi.IsIndexed() && !pi.IsFullText() && !pi.IsSpatial()
}

// IndexName 旧式索引名，未声明时使用叶子所属实体的主标签
func (pi *PartInfo) IndexName() string {
	if name := pi.Leaf().IndexName; name != "" {
		return name
	}
	return pi.path.Owner().PrimaryLabel
}

// IndexKey 索引键即图属性名
func (pi *PartInfo) IndexKey() string {
	return pi.Leaf().PropertyName
}

func (pi *PartInfo) placeholder(offset int) string {
	return fmt.Sprintf("{%d}", pi.index+offset)
}

func (pi *PartInfo) slot(offset int) string {
	return fmt.Sprint(pi.index + offset)
}

func (pi *PartInfo) String() string {
	return fmt.Sprintf("%s %s {%d}", pi.path, pi.part.Type, pi.index)
}
