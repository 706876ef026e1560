package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/iiotgw/internal/node"
)

func TestSubIsIdempotentOverwritingParamsAndPipe(t *testing.T) {
	r := New()
	p1 := "p1"
	r.Sub("driver1", "app1", "g1", &p1, "pipe1", ViaSubscribe)
	p2 := "p2"
	r.Sub("driver1", "app1", "g1", &p2, "pipe2", ViaSubscribe)

	entries := r.Get("app1")
	require.Len(t, entries, 1)
	assert.Equal(t, "p2", *entries[0].Params)
	assert.Equal(t, node.Pipe("pipe2"), entries[0].Pipe)
}

func TestUnsubRemovesOnlyMatchingTriple(t *testing.T) {
	r := New()
	r.Sub("driver1", "app1", "g1", nil, "pipe1", ViaSubscribe)
	r.Sub("driver1", "app1", "g2", nil, "pipe1", ViaSubscribe)
	r.Unsub("driver1", "app1", "g1")
	entries := r.Get("app1")
	require.Len(t, entries, 1)
	assert.Equal(t, "g2", entries[0].Group)
}

func TestGetNDriverMapsExcludesPlainSubscriptions(t *testing.T) {
	r := New()
	r.Sub("driver1", "app1", "g1", nil, "pipe1", ViaSubscribe)
	r.Sub("driver1", "ndriver1", "g1", nil, "pipe2", ViaMap)

	assert.Len(t, r.Get("app1"), 1)
	assert.Len(t, r.GetNDriverMaps("ndriver1"), 1)
	assert.Len(t, r.Get("ndriver1"), 0)
}

func TestRemoveDeletesEntriesByDriverOrApp(t *testing.T) {
	r := New()
	r.Sub("driver1", "app1", "g1", nil, "pipe1", ViaSubscribe)
	r.Sub("driver2", "app1", "g1", nil, "pipe1", ViaSubscribe)
	r.Remove("driver1")
	assert.Len(t, r.Get("app1"), 1)
	r.Remove("app1")
	assert.Len(t, r.Get("app1"), 0)
}

func TestUpdateDriverNameRekeys(t *testing.T) {
	r := New()
	r.Sub("driver1", "app1", "g1", nil, "pipe1", ViaSubscribe)
	r.UpdateDriverName("driver1", "driverX")
	entries := r.Get("app1")
	require.Len(t, entries, 1)
	assert.Equal(t, "driverX", entries[0].Driver)
}

func TestUpdateAppNameRekeys(t *testing.T) {
	r := New()
	r.Sub("driver1", "app1", "g1", nil, "pipe1", ViaSubscribe)
	r.UpdateAppName("app1", "appX")
	assert.Len(t, r.Get("app1"), 0)
	assert.Len(t, r.Get("appX"), 1)
}

func TestSubscribersOfCombinesSubscribeAndMap(t *testing.T) {
	r := New()
	r.Sub("driver1", "app1", "g1", nil, "pipe1", ViaSubscribe)
	r.Sub("driver1", "ndriver1", "g1", nil, "pipe2", ViaMap)
	assert.Len(t, r.SubscribersOf("driver1", "g1"), 2)
	assert.Len(t, r.SubscribersOf("driver1", "g2"), 0)
}
