package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/iiotgw/internal/gwerrors"
)

func TestRegistryAddRejectsDuplicateName(t *testing.T) {
	r := New()
	require.Nil(t, r.Add(newTestAdapter("n1", "p1", Driver)))
	err := r.Add(newTestAdapter("n1", "p2", App))
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.NodeExist, err.Code())
}

func TestRegistryDelRejectsUnknown(t *testing.T) {
	r := New()
	err := r.Del("missing")
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.NodeNotExist, err.Code())
}

func TestFilterByTypeAndPluginAndName(t *testing.T) {
	r := New()
	require.Nil(t, r.Add(newTestAdapter("d1", "plugA", Driver)))
	require.Nil(t, r.Add(newTestAdapter("d2", "plugB", Driver)))
	require.Nil(t, r.Add(newTestAdapter("a1", "plugA", App)))

	driverType := Driver
	got := r.Filter(Filter{Type: &driverType})
	assert.Len(t, got, 2)

	pluginA := "plugA"
	got = r.Filter(Filter{PluginName: &pluginA})
	assert.Len(t, got, 2)

	name := "d1"
	got = r.Filter(Filter{Name: &name})
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].Name)
}

func TestUpdateNameRejectsUnknownOldName(t *testing.T) {
	r := New()
	err := r.UpdateName("missing", "new")
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.NodeNotExist, err.Code())
}

func TestUpdateNameRejectsNameAlreadyTaken(t *testing.T) {
	r := New()
	require.Nil(t, r.Add(newTestAdapter("d1", "p1", Driver)))
	require.Nil(t, r.Add(newTestAdapter("d2", "p1", Driver)))
	err := r.UpdateName("d1", "d2")
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.NodeExist, err.Code())
}

func TestUpdateNameRekeysRegistry(t *testing.T) {
	r := New()
	require.Nil(t, r.Add(newTestAdapter("d1", "p1", Driver)))
	require.Nil(t, r.UpdateName("d1", "d2"))

	_, ok := r.Find("d1")
	assert.False(t, ok)
	a, ok := r.Find("d2")
	require.True(t, ok)
	assert.Equal(t, "d2", a.Name)
}

func TestIsDriverAndGetPipe(t *testing.T) {
	r := New()
	a := New("d1", "p1", Driver, "pipe1", nil)
	require.Nil(t, r.Add(a))

	assert.True(t, r.IsDriver("d1"))
	pipe, ok := r.GetPipe("d1")
	require.True(t, ok)
	assert.Equal(t, Pipe("pipe1"), pipe)

	_, ok = r.GetPipe("missing")
	assert.False(t, ok)
}

func TestGetFiltersByType(t *testing.T) {
	r := New()
	require.Nil(t, r.Add(New("d1", "p1", Driver, "pipe1", nil)))
	require.Nil(t, r.Add(New("a1", "p2", App, "pipe2", nil)))

	drivers := r.Get(Driver)
	require.Len(t, drivers, 1)
	assert.Equal(t, "d1", drivers[0].Name)
}

// newTestAdapter is a small test helper building an Adapter with a synthetic
// pipe, since most registry behavior doesn't depend on pipe value.
func newTestAdapter(name, pluginName string, typ Type) *Adapter {
	return New(name, pluginName, typ, Pipe(name+"-pipe"), nil)
}
