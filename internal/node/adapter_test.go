package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/iiotgw/internal/cache"
	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/plugin"
)

type fakeDriverHandle struct {
	mu      sync.Mutex
	started bool
	groups  []*group.Group
}

func (f *fakeDriverHandle) Start(ctx context.Context, c *cache.Cache, groups []*group.Group) {
	f.mu.Lock()
	f.started = true
	f.groups = groups
	f.mu.Unlock()
	<-ctx.Done()
}

func (f *fakeDriverHandle) wasStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func TestNewAllocatesCacheOnlyForDriverTypes(t *testing.T) {
	drv := New("d1", "p1", Driver, "pipe1", nil)
	assert.NotNil(t, drv.Cache)

	app := New("a1", "p2", App, "pipe2", nil)
	assert.Nil(t, app.Cache)
}

func TestAddGroupRejectsBelowIntervalLimit(t *testing.T) {
	a := New("d1", "p1", Driver, "pipe1", nil)
	err := a.AddGroup("g1", group.IntervalLimit-1)
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.GroupParameterInvalid, err.Code())
}

func TestAddGroupRejectsDuplicate(t *testing.T) {
	a := New("d1", "p1", Driver, "pipe1", nil)
	require.Nil(t, a.AddGroup("g1", 1000))
	err := a.AddGroup("g1", 1000)
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.GroupExist, err.Code())
}

func TestInitWithoutStartDoesNotLaunchDriverHandle(t *testing.T) {
	handle := &fakeDriverHandle{}
	a := New("d1", "p1", Driver, "pipe1", &plugin.Instance{PluginName: "p1", Handle: handle})
	require.Nil(t, a.Init(context.Background(), false))
	time.Sleep(10 * time.Millisecond)
	assert.False(t, handle.wasStarted())
}

func TestInitWithStartLaunchesDriverHandle(t *testing.T) {
	handle := &fakeDriverHandle{}
	a := New("d1", "p1", Driver, "pipe1", &plugin.Instance{PluginName: "p1", Handle: handle})
	require.Nil(t, a.AddGroup("g1", 1000))
	require.Nil(t, a.Init(context.Background(), true))

	require.Eventually(t, handle.wasStarted, time.Second, 5*time.Millisecond)
	assert.Len(t, handle.groups, 1)

	a.Uninit()
}

func TestStartPollingIsIdempotent(t *testing.T) {
	handle := &fakeDriverHandle{}
	a := New("d1", "p1", Driver, "pipe1", &plugin.Instance{PluginName: "p1", Handle: handle})
	require.Nil(t, a.Init(context.Background(), false))

	a.StartPolling()
	a.StartPolling() // must not panic or double-launch
	require.Eventually(t, handle.wasStarted, time.Second, 5*time.Millisecond)

	a.Uninit()
}

func TestUninitCancelsRunningDriverHandle(t *testing.T) {
	handle := &fakeDriverHandle{}
	a := New("d1", "p1", Driver, "pipe1", &plugin.Instance{PluginName: "p1", Handle: handle})
	require.Nil(t, a.Init(context.Background(), true))
	require.Eventually(t, handle.wasStarted, time.Second, 5*time.Millisecond)

	a.Uninit()
	assert.Equal(t, StateStopped, a.State())
}

func TestGroupsReturnsInsertionOrder(t *testing.T) {
	a := New("d1", "p1", Driver, "pipe1", nil)
	require.Nil(t, a.AddGroup("g2", 1000))
	require.Nil(t, a.AddGroup("g1", 1000))
	groups := a.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "g2", groups[0].Name())
	assert.Equal(t, "g1", groups[1].Name())
}
