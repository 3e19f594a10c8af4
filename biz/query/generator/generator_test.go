package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4jogm/biz/mapping"
	"neo4jogm/biz/query"
	"neo4jogm/biz/query/filter"
)

type Entity1 struct {
	ID                   int64 `graph:"id,id"`
	Name                 string
	DynamicRelationships map[string]*Entity1 `graph:",dir=in"`
}

type MultipleLabelEntity1 struct {
	ID                   int64 `graph:"id,id"`
	Name                 string
	DynamicRelationships map[string]*MultipleLabelEntity1 `graph:",dir=in"`
}

func (MultipleLabelEntity1) NodeLabels() []string { return []string{"Entity1", "MultipleLabel"} }

type Entity2 struct {
	ID   int64 `graph:"id,id"`
	Name string
}

type MultipleLabelEntity2 struct {
	ID   int64 `graph:"id,id"`
	Name string
}

func (MultipleLabelEntity2) NodeLabels() []string { return []string{"Entity2", "MultipleLabel"} }

type InternalEntity struct {
	ID   int64 `graph:",id,internal"`
	Name string
}

type Hobby struct {
	ID    string
	Name  string
	Owner *Person `graph:",rel=OWNED_BY"`
}

type Person struct {
	ID      string `graph:"id,id"`
	Name    string
	Hobbies []*Hobby `graph:",rel=LIKES"`
}

func newContext(t *testing.T) *mapping.Context {
	ctx := mapping.NewContext(nil)
	require.NoError(t, ctx.Register(&Entity1{}, &MultipleLabelEntity1{}, &Entity2{}, &MultipleLabelEntity2{}, &InternalEntity{}, &Person{}))
	return ctx
}

func describe(t *testing.T, ctx *mapping.Context, v any) *mapping.NodeDescription {
	nd, err := ctx.NodeDescription(v)
	require.NoError(t, err)
	return nd
}

func TestGenerator_PrepareSaveOfRelationship(t *testing.T) {
	ctx := newContext(t)
	dynamicIncoming := &mapping.RelationshipDescription{Dynamic: true, Direction: mapping.Incoming}

	t.Run("带标签的起点", func(t *testing.T) {
		got := Default.PrepareSaveOfRelationship(describe(t, ctx, &Entity1{}), dynamicIncoming, "REL", 1)
		assert.Equal(t, "MATCH (startNode:`Entity1`) WHERE startNode.id = $fromId MATCH (endNode)"+
			" WHERE id(endNode) = 1 MERGE (startNode)<-[:`REL`]-(endNode)", got)
	})

	t.Run("多标签", func(t *testing.T) {
		got := Default.PrepareSaveOfRelationship(describe(t, ctx, &MultipleLabelEntity1{}), dynamicIncoming, "REL", 1)
		assert.Equal(t, "MATCH (startNode:`Entity1`:`MultipleLabel`) WHERE startNode.id = $fromId MATCH (endNode)"+
			" WHERE id(endNode) = 1 MERGE (startNode)<-[:`REL`]-(endNode)", got)
	})

	t.Run("内部ID", func(t *testing.T) {
		got := Default.PrepareSaveOfRelationship(describe(t, ctx, &InternalEntity{}), dynamicIncoming, "REL", 1)
		assert.Equal(t, "MATCH (startNode) WHERE id(startNode) = $fromId MATCH (endNode)"+
			" WHERE id(endNode) = 1 MERGE (startNode)<-[:`REL`]-(endNode)", got)
	})

	t.Run("固定类型的出边", func(t *testing.T) {
		person := describe(t, ctx, &Person{})
		hobbies, ok := person.Property("Hobbies")
		require.True(t, ok)
		got := Default.PrepareSaveOfRelationship(person, hobbies.Relationship, "IGNORED", 7)
		assert.Equal(t, "MATCH (startNode:`Person`) WHERE startNode.id = $fromId MATCH (endNode)"+
			" WHERE id(endNode) = 7 MERGE (startNode)-[:`LIKES`]->(endNode)", got)
	})
}

func TestGenerator_PrepareDeleteOfRelationship(t *testing.T) {
	ctx := newContext(t)

	t.Run("带标签的起点", func(t *testing.T) {
		rel := &mapping.RelationshipDescription{Direction: mapping.Incoming, Target: describe(t, ctx, &Entity2{})}
		got := Default.PrepareDeleteOfRelationship(describe(t, ctx, &Entity1{}), rel)
		assert.Equal(t, "MATCH (startNode:`Entity1`)<-[rel]-(:`Entity2`) WHERE startNode.id = $fromId DELETE rel", got)
	})

	t.Run("多标签", func(t *testing.T) {
		rel := &mapping.RelationshipDescription{Direction: mapping.Incoming, Target: describe(t, ctx, &MultipleLabelEntity2{})}
		got := Default.PrepareDeleteOfRelationship(describe(t, ctx, &MultipleLabelEntity1{}), rel)
		assert.Equal(t, "MATCH (startNode:`Entity1`:`MultipleLabel`)<-[rel]-(:`Entity2`:`MultipleLabel`) WHERE startNode.id = $fromId DELETE rel", got)
	})

	t.Run("内部ID", func(t *testing.T) {
		rel := &mapping.RelationshipDescription{Dynamic: true, Direction: mapping.Incoming, Target: describe(t, ctx, &Entity2{})}
		got := Default.PrepareDeleteOfRelationship(describe(t, ctx, &InternalEntity{}), rel)
		assert.Equal(t, "MATCH (startNode)<-[rel]-(:`Entity2`) WHERE id(startNode) = $fromId DELETE rel", got)
	})

	t.Run("固定类型", func(t *testing.T) {
		person := describe(t, ctx, &Person{})
		hobbies, _ := person.Property("Hobbies")
		got := Default.PrepareDeleteOfRelationship(person, hobbies.Relationship)
		assert.Equal(t, "MATCH (startNode:`Person`)-[rel:`LIKES`]->(:`Hobby`) WHERE startNode.id = $fromId DELETE rel", got)
	})
}

func TestGenerator_PrepareSaveOf(t *testing.T) {
	ctx := newContext(t)

	t.Run("外部ID使用MERGE", func(t *testing.T) {
		assert.Equal(t,
			"MERGE (n:`Entity1`:`MultipleLabel` {`id`: $__id__}) SET n += $__properties__ RETURN id(n) AS __id__",
			Default.PrepareSaveOf(describe(t, ctx, &MultipleLabelEntity1{})))
	})

	t.Run("内部ID新建或更新", func(t *testing.T) {
		assert.Equal(t,
			"OPTIONAL MATCH (hlp:`InternalEntity`) WHERE id(hlp) = $__id__ WITH hlp WHERE hlp IS NULL "+
				"CREATE (n:`InternalEntity`) SET n = $__properties__ RETURN id(n) AS __id__ UNION "+
				"MATCH (n:`InternalEntity`) WHERE id(n) = $__id__ SET n += $__properties__ RETURN id(n) AS __id__",
			Default.PrepareSaveOf(describe(t, ctx, &InternalEntity{})))
	})

	t.Run("REST风格参数", func(t *testing.T) {
		g := New(filter.Rest)
		person := describe(t, ctx, &Person{})
		assert.Equal(t, "MATCH (n:`Person`) WHERE n.`id` = {__id__} RETURN n", g.PrepareFindOf(person, g.IDCondition(person)))
		assert.Equal(t, "MATCH (n:`Person`) WHERE n.`id` = {__id__} DETACH DELETE n", g.PrepareDeleteOf(person, g.IDCondition(person)))
		assert.Equal(t, "MATCH (n:`Person`) RETURN count(n) AS __count__", g.CountOf(person, ""))
	})

	t.Run("动态标签", func(t *testing.T) {
		assert.Equal(t, "MATCH (n) WHERE id(n) = $__id__ SET n:`A`:`B` REMOVE n:`C`",
			Default.PrepareUpdateLabels([]string{"A", "B"}, []string{"C"}))
	})
}

func TestCreateOrderByFragment(t *testing.T) {
	tests := []struct {
		name     string
		pageable *query.Pageable
		expected string
	}{
		{
			name: "多个排序项",
			pageable: query.PageRequest(1, 2, query.AscOrder("a"), query.AscOrder("b"),
				query.AscOrder("foo"), query.DescOrder("bar")),
			expected: "ORDER BY a ASC, b ASC, foo ASC, bar DESC",
		},
		{name: "无分页", pageable: nil, expected: ""},
		{name: "未排序", pageable: query.PageRequest(1, 2), expected: ""},
		{name: "排序为nil", pageable: &query.Pageable{Page: 1, Size: 2}, expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CreateOrderByFragment(tt.pageable))
		})
	}
}

func TestToSortItems(t *testing.T) {
	ctx := newContext(t)
	person := describe(t, ctx, &Person{})

	t.Run("简单属性、嵌套属性与函数", func(t *testing.T) {
		items, err := ToSortItems(person, query.ByOrders(
			query.AscOrder("name"),
			query.DescOrder("hobbies.name"),
			query.AscOrder("toLower(name)"),
			query.Order{Property: "name", IgnoreCase: true},
		))
		require.NoError(t, err)
		assert.Equal(t, "ORDER BY n.name ASC, n_hobbies.name DESC, toLower(n.name) ASC, toLower(n.name) ASC", OrderBy(items))
		assert.Equal(t, []string{"OPTIONAL MATCH (n)-[:`LIKES`]->(n_hobbies:`Hobby`)"}, SortPatterns(person, items))
	})

	t.Run("超过一层关系", func(t *testing.T) {
		_, err := ToSortItems(person, query.By("hobbies.owner.name"))
		assert.ErrorIs(t, err, ErrSortDepth)
	})

	t.Run("未知属性", func(t *testing.T) {
		_, err := ToSortItems(person, query.By("unknown"))
		assert.ErrorIs(t, err, ErrSortProperty)

		_, err = ToSortItems(person, query.By("hobbies.unknown"))
		assert.ErrorIs(t, err, ErrSortProperty)
	})

	t.Run("关联本身不能排序", func(t *testing.T) {
		_, err := ToSortItems(person, query.By("hobbies"))
		assert.ErrorIs(t, err, ErrSortProperty)
	})
}

func TestGenerator_FilterQuery(t *testing.T) {
	ctx := newContext(t)
	person := describe(t, ctx, &Person{})
	byName := filter.Filters{{PropertyName: "name", Operator: filter.OpEquals, Value: "A"}}

	t.Run("排序与分页", func(t *testing.T) {
		cypher, params, err := Default.FilterQuery(person, byName, LoadOptions{
			Sort:       query.By("name"),
			Pagination: &query.Pagination{Offset: 0, Limit: 10},
		})
		require.NoError(t, err)
		assert.Equal(t, "MATCH (n:`Person`) WHERE n.`name` = $name_0 RETURN n ORDER BY n.name ASC SKIP 0 LIMIT 10", cypher)
		assert.Equal(t, map[string]any{"name_0": "A"}, params)
	})

	t.Run("跨关系排序", func(t *testing.T) {
		cypher, _, err := Default.FilterQuery(person, nil, LoadOptions{Sort: query.By("hobbies.name"), Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, "MATCH (n:`Person`) OPTIONAL MATCH (n)-[:`LIKES`]->(n_hobbies:`Hobby`) "+
			"WITH n ORDER BY n_hobbies.name ASC RETURN DISTINCT n LIMIT 3", cypher)
	})

	t.Run("计数", func(t *testing.T) {
		cypher, _, err := Default.FilterQuery(person, nil, LoadOptions{Mode: ModeCount})
		require.NoError(t, err)
		assert.Equal(t, "MATCH (n:`Person`) RETURN count(DISTINCT n) AS __count__", cypher)
	})

	t.Run("删除并返回ID", func(t *testing.T) {
		cypher, _, err := Default.FilterQuery(person, byName, LoadOptions{Mode: ModeDeleteIDs})
		require.NoError(t, err)
		assert.Equal(t, "MATCH (n:`Person`) WHERE n.`name` = $name_0 WITH n, n.`id` AS __id__ DETACH DELETE n RETURN __id__", cypher)
	})

	t.Run("删除并计数", func(t *testing.T) {
		cypher, _, err := Default.FilterQuery(person, byName, LoadOptions{Mode: ModeDelete})
		require.NoError(t, err)
		assert.Equal(t, "MATCH (n:`Person`) WHERE n.`name` = $name_0 DETACH DELETE n RETURN count(*) AS __count__", cypher)
	})
}
