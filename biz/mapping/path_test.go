package mapping

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_PropertyPath(t *testing.T) {
	ctx := NewContext(nil)
	require.NoError(t, ctx.Register(Person{}))
	person, err := ctx.NodeDescription(Person{})
	require.NoError(t, err)

	tests := []struct {
		path     string
		expected string
		hops     int
		owner    string
	}{
		{"name", "name", 0, "Person"},
		{"Name", "name", 0, "Person"},
		{"addressCity", "address.city", 1, "Address"},
		{"address.city", "address.city", 1, "Address"},
		{"address_city", "address.city", 1, "Address"},
		{"addressCountryName", "address.country.name", 2, "Country"},
		{"friendsName", "friends.name", 1, "Person"},
		{"address", "address", 1, "Person"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, err := ctx.PropertyPath(person, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.String())
			assert.Len(t, p.Hops(), tt.hops)
			assert.Equal(t, tt.owner, p.Owner().Name)
		})
	}

	t.Run("未知属性", func(t *testing.T) {
		_, err := ctx.PropertyPath(person, "addressStreet")
		assert.ErrorIs(t, err, ErrUnknownProperty)
	})
}

func TestContext_Convert(t *testing.T) {
	ctx := NewContext(nil)
	require.NoError(t, ctx.Register(Person{}))

	t.Run("ToProperties只包含图属性", func(t *testing.T) {
		p := &Person{ID: "p1", Name: "Alice", Age: 30, Extra: []string{"Vip"}, Scratch: "x", Address: &Address{City: "Berlin"}}
		props, err := ctx.ToProperties(p)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": "p1", "name": "Alice", "age": int64(30), "bio": ""}, props)

		labels, err := ctx.ExtraLabels(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"Vip"}, labels)
	})

	t.Run("Populate转换数值和标签", func(t *testing.T) {
		node := GraphNode{
			ID:     7,
			Labels: []string{"Person", "Vip"},
			Props:  map[string]any{"id": "p1", "name": "Alice", "age": float64(30)},
		}
		var p Person
		require.NoError(t, ctx.Populate(node, &p))
		assert.Equal(t, "p1", p.ID)
		assert.Equal(t, "Alice", p.Name)
		assert.Equal(t, 30, p.Age)
		assert.Equal(t, []string{"Vip"}, p.Extra)
	})

	t.Run("内部ID写回", func(t *testing.T) {
		var a Address
		require.NoError(t, ctx.Populate(GraphNode{ID: 42, Props: map[string]any{"city": "Paris"}}, &a))
		assert.Equal(t, int64(42), a.ID)
		assert.Equal(t, "Paris", a.City)

		id, err := ctx.IDValue(&a)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})

	t.Run("零值ID返回nil", func(t *testing.T) {
		id, err := ctx.IDValue(Person{})
		require.NoError(t, err)
		assert.Nil(t, id)

		var p Person
		require.NoError(t, ctx.SetID(&p, "generated"))
		assert.Equal(t, "generated", p.ID)
	})

	t.Run("类型不匹配", func(t *testing.T) {
		var p Person
		err := ctx.Populate(GraphNode{Props: map[string]any{"age": "old"}}, &p)
		assert.ErrorIs(t, err, ErrConversion)
	})

	t.Run("时间字符串", func(t *testing.T) {
		var ts time.Time
		err := assignValue(reflect.ValueOf(&ts).Elem(), "2024-05-01T10:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, 2024, ts.Year())
	})
}
