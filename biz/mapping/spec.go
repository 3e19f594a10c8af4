package mapping

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// EntitySpec 是通过配置声明的实体，不需要 Go 结构体
type EntitySpec struct {
	Name          string             `mapstructure:"name"`
	Labels        []string           `mapstructure:"labels"`
	ID            string             `mapstructure:"id"`
	IDStrategy    string             `mapstructure:"id_strategy"` // assigned | internal | uuid
	Properties    []PropertySpec     `mapstructure:"properties"`
	Relationships []RelationshipSpec `mapstructure:"relationships"`
}

// PropertySpec 声明式实体的属性
type PropertySpec struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"` // string | int | float | bool | strings
	Index     bool   `mapstructure:"index"`
	IndexName string `mapstructure:"index_name"`
	FullText  bool   `mapstructure:"fulltext"`
	Spatial   bool   `mapstructure:"spatial"`
	Unique    bool   `mapstructure:"unique"`
}

// RelationshipSpec 声明式实体的关系
type RelationshipSpec struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Direction string `mapstructure:"direction"`
	Target    string `mapstructure:"target"`
	Dynamic   bool   `mapstructure:"dynamic"`
}

var specTypes = map[string]reflect.Type{
	"":        reflect.TypeOf(""),
	"string":  reflect.TypeOf(""),
	"int":     reflect.TypeOf(int64(0)),
	"float":   reflect.TypeOf(float64(0)),
	"bool":    reflect.TypeOf(false),
	"strings": reflect.TypeOf([]string(nil)),
}

func buildFromSpec(spec EntitySpec) (*NodeDescription, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: entity spec without name", ErrMapping)
	}
	nd := newNodeDescription(spec.Name)
	if len(spec.Labels) > 0 {
		nd.PrimaryLabel = spec.Labels[0]
		nd.AdditionalLabels = append([]string{}, spec.Labels[1:]...)
	} else {
		nd.PrimaryLabel = spec.Name
	}

	idName := spec.ID
	switch spec.IDStrategy {
	case "internal":
		if idName != "" {
			return nil, fmt.Errorf("%w: Cannot use internal id strategy with custom property %s on entity %s",
				ErrMapping, idName, nd.Name)
		}
		nd.ID = IDDescription{Strategy: IDInternal}
		idName = "id"
	case "uuid":
		if idName == "" {
			idName = "id"
		}
		nd.ID = IDDescription{Strategy: IDUUID, PropertyName: idName}
	case "", "assigned":
		if idName == "" {
			idName = "id"
		}
		nd.ID = IDDescription{Strategy: IDAssigned, PropertyName: idName}
	default:
		return nil, fmt.Errorf("%w: unknown id strategy %q on entity %s", ErrMapping, spec.IDStrategy, nd.Name)
	}
	idType := reflect.TypeOf("")
	if nd.IsUsingInternalIDs() {
		idType = reflect.TypeOf(int64(0))
	}
	nd.addProperty(&PersistentProperty{FieldName: idName, PropertyName: idName, GoType: idType, IsID: true})

	for _, ps := range spec.Properties {
		gt, ok := specTypes[ps.Type]
		if !ok {
			return nil, fmt.Errorf("%w: unknown property type %q on %s.%s", ErrMapping, ps.Type, nd.Name, ps.Name)
		}
		nd.addProperty(&PersistentProperty{
			FieldName:    ps.Name,
			PropertyName: ps.Name,
			GoType:       gt,
			Indexed:      ps.Index || ps.FullText || ps.Spatial,
			IndexName:    ps.IndexName,
			FullText:     ps.FullText,
			Spatial:      ps.Spatial,
			Unique:       ps.Unique,
		})
	}
	for _, rs := range spec.Relationships {
		if rs.Dynamic && rs.Type != "" {
			return nil, fmt.Errorf("%w: Dynamic relationships cannot be used with a fixed type on %s.%s",
				ErrMapping, nd.Name, rs.Name)
		}
		rel := &RelationshipDescription{
			FieldName:  rs.Name,
			Type:       rs.Type,
			Direction:  ParseDirection(rs.Direction),
			Dynamic:    rs.Dynamic,
			targetName: rs.Target,
		}
		if !rs.Dynamic && rel.Type == "" {
			rel.Type = upperSnake(rs.Name)
		}
		nd.addProperty(&PersistentProperty{FieldName: rs.Name, PropertyName: rs.Name, Relationship: rel})
	}
	return nd, nil
}

// RegisterSpec 注册声明式实体。关系目标按名称解析，
// 同一批次内的实体可以互相引用。
func (c *Context) RegisterSpec(specs ...EntitySpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []*NodeDescription
	for _, spec := range specs {
		nd, err := buildFromSpec(spec)
		if err != nil {
			c.rollback(added)
			return err
		}
		if _, ok := c.byName[nd.Name]; ok {
			c.rollback(added)
			return fmt.Errorf("%w: entity name %s registered twice", ErrMapping, nd.Name)
		}
		c.byName[nd.Name] = nd
		added = append(added, nd)
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
	}
	c.logger.Info("注册声明式实体", zap.Int("count", len(added)))
	return nil
}
