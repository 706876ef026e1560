package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/tagvalue"
)

func TestAddTagRejectsDuplicate(t *testing.T) {
	g := New("g1", 1000)
	require.Nil(t, g.AddTag(TagDef{Name: "t1", Kind: tagvalue.KindInt32}))
	err := g.AddTag(TagDef{Name: "t1", Kind: tagvalue.KindInt32})
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.TagExist, err.Code())
}

func TestUpdateTagRejectsUnknown(t *testing.T) {
	g := New("g1", 1000)
	err := g.UpdateTag(TagDef{Name: "missing", Kind: tagvalue.KindInt32})
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.TagNotFound, err.Code())
}

func TestDelTagNoopOnMissing(t *testing.T) {
	g := New("g1", 1000)
	g.DelTag("missing") // must not panic
	assert.Equal(t, 0, g.TagCount())
}

func TestGetTagsPreservesInsertionOrder(t *testing.T) {
	g := New("g1", 1000)
	require.Nil(t, g.AddTag(TagDef{Name: "b", Kind: tagvalue.KindInt32}))
	require.Nil(t, g.AddTag(TagDef{Name: "a", Kind: tagvalue.KindInt32}))
	tags := g.GetTags()
	require.Len(t, tags, 2)
	assert.Equal(t, "b", tags[0].Name)
	assert.Equal(t, "a", tags[1].Name)
}

func TestQueryTagFiltersBySubstring(t *testing.T) {
	g := New("g1", 1000)
	require.Nil(t, g.AddTag(TagDef{Name: "temp_1", Kind: tagvalue.KindInt32}))
	require.Nil(t, g.AddTag(TagDef{Name: "pressure_1", Kind: tagvalue.KindInt32}))
	got := g.QueryTag("temp")
	require.Len(t, got, 1)
	assert.Equal(t, "temp_1", got[0].Name)
}

func TestDelTagRemovesFromOrder(t *testing.T) {
	g := New("g1", 1000)
	require.Nil(t, g.AddTag(TagDef{Name: "a", Kind: tagvalue.KindInt32}))
	require.Nil(t, g.AddTag(TagDef{Name: "b", Kind: tagvalue.KindInt32}))
	g.DelTag("a")
	tags := g.GetTags()
	require.Len(t, tags, 1)
	assert.Equal(t, "b", tags[0].Name)
}
