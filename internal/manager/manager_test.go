package manager

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/node"
	"github.com/fieldmesh/iiotgw/internal/plugin"
	"github.com/fieldmesh/iiotgw/internal/pluginloader"
	"github.com/fieldmesh/iiotgw/internal/tagvalue"
	"github.com/fieldmesh/iiotgw/internal/transport"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	logger := zerolog.New(io.Discard)
	mgr := New(pluginloader.DefaultLoader{}, transport.NewMem(), logger)

	require.Nil(t, mgr.AddBuiltinPlugin(testDriverDescriptor, testDriverFactory, testCloseFn))
	require.Nil(t, mgr.AddBuiltinPlugin(testAppDescriptor, testAppFactory, testCloseFn))
	require.Nil(t, mgr.AddBuiltinPlugin(testSingleDescriptor, testDriverFactory, testCloseFn))
	return mgr
}

func TestAddNodeRejectsUnknownPlugin(t *testing.T) {
	mgr := testManager(t)
	err := mgr.AddNode(context.Background(), "d1", "missing", false)
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.PluginNotFound, err.Code())
}

func TestAddNodeRejectsSinglePlugin(t *testing.T) {
	mgr := testManager(t)
	err := mgr.AddNode(context.Background(), "d1", testSingleDescriptor.Name, false)
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.LibraryNotAllowCreateInstance, err.Code())
}

func TestAddNodeThenDuplicateNameFails(t *testing.T) {
	mgr := testManager(t)
	require.Nil(t, mgr.AddNode(context.Background(), "d1", testDriverDescriptor.Name, false))
	err := mgr.AddNode(context.Background(), "d1", testDriverDescriptor.Name, false)
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.NodeExist, err.Code())
}

func TestDelNodeRemovesSubscriptions(t *testing.T) {
	mgr := testManager(t)
	require.Nil(t, mgr.AddNode(context.Background(), "driver1", testDriverDescriptor.Name, false))
	require.Nil(t, mgr.AddNode(context.Background(), "app1", testAppDescriptor.Name, false))
	drv, _ := mgr.nodes.Find("driver1")
	require.Nil(t, drv.AddGroup("g1", 1000))

	require.Nil(t, mgr.Subscribe("app1", "driver1", "g1", nil))
	require.Len(t, mgr.GetSubGroup("app1"), 1)

	require.Nil(t, mgr.DelNode("driver1"))
	assert.Empty(t, mgr.GetSubGroup("app1"))
}

func TestUpdateNodeNameRollsBackOnFailure(t *testing.T) {
	mgr := testManager(t)
	require.Nil(t, mgr.AddNode(context.Background(), "driver1", testDriverDescriptor.Name, false))
	require.Nil(t, mgr.AddNode(context.Background(), "driver2", testDriverDescriptor.Name, false))
	require.Nil(t, mgr.AddNode(context.Background(), "app1", testAppDescriptor.Name, false))
	drv, _ := mgr.nodes.Find("driver1")
	require.Nil(t, drv.AddGroup("g1", 1000))
	require.Nil(t, mgr.Subscribe("app1", "driver1", "g1", nil))

	err := mgr.UpdateNodeName("driver1", "driver2")
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.NodeExist, err.Code())

	subs := mgr.GetSubGroup("app1")
	require.Len(t, subs, 1)
	assert.Equal(t, "driver1", subs[0].Driver)
}

func TestUpdateNodeNameSucceedsAndRekeysSubscriptions(t *testing.T) {
	mgr := testManager(t)
	require.Nil(t, mgr.AddNode(context.Background(), "driver1", testDriverDescriptor.Name, false))
	require.Nil(t, mgr.AddNode(context.Background(), "app1", testAppDescriptor.Name, false))
	drv, _ := mgr.nodes.Find("driver1")
	require.Nil(t, drv.AddGroup("g1", 1000))
	require.Nil(t, mgr.Subscribe("app1", "driver1", "g1", nil))

	require.Nil(t, mgr.UpdateNodeName("driver1", "driverX"))

	subs := mgr.GetSubGroup("app1")
	require.Len(t, subs, 1)
	assert.Equal(t, "driverX", subs[0].Driver)
}

func TestSubscribeRejectsMonitor(t *testing.T) {
	mgr := testManager(t)
	err := mgr.Subscribe("monitor", "driver1", "g1", nil)
	require.NotNil(t, err)
	assert.Equal(t, gwerrors.NodeNotAllowSubscribe, err.Code())
}

func TestAddTemplateAndInstantiate(t *testing.T) {
	mgr := testManager(t)
	spec := TemplateSpec{
		Name:       "tmpl1",
		PluginName: testDriverDescriptor.Name,
		Groups: []GroupSpec{
			{Name: "g1", IntervalMS: 1000, Tags: []group.TagDef{
				{Name: "t1", Kind: tagvalue.KindInt32},
			}},
		},
	}
	require.Nil(t, mgr.AddTemplate(spec))

	require.Nil(t, mgr.InstantiateTemplate(context.Background(), "tmpl1", "node1"))

	n, ok := mgr.nodes.Find("node1")
	require.True(t, ok)
	g, ok := n.GetGroup("g1")
	require.True(t, ok)
	assert.Equal(t, uint32(1000), g.GetInterval())
	assert.Equal(t, 1, g.TagCount())
}

func TestAddTemplateTagsStopsAtFirstFailure(t *testing.T) {
	mgr := testManager(t)
	spec := TemplateSpec{Name: "tmpl1", PluginName: testDriverDescriptor.Name, Groups: []GroupSpec{{Name: "g1", IntervalMS: 1000}}}
	require.Nil(t, mgr.AddTemplate(spec))

	tags := []group.TagDef{
		{Name: "t1", Kind: tagvalue.KindInt32},
		{Name: "t1", Kind: tagvalue.KindInt32}, // duplicate, should fail here
		{Name: "t2", Kind: tagvalue.KindInt32},
	}
	idx, err := mgr.AddTemplateTags("tmpl1", "g1", tags)
	require.NotNil(t, err)
	assert.Equal(t, 1, idx)

	got, gerr := mgr.GetTemplateTags("tmpl1", "g1", "")
	require.Nil(t, gerr)
	assert.Len(t, got, 1)
}

// --- test plugin fixtures ---

var testDriverDescriptor = plugin.Descriptor{Name: "test-driver", Kind: node.Driver, Single: false}
var testSingleDescriptor = plugin.Descriptor{Name: "test-single", Kind: node.Driver, Single: true}
var testAppDescriptor = plugin.Descriptor{Name: "test-app", Kind: node.App, Single: false}

func testDriverFactory() (interface{}, error) { return struct{}{}, nil }
func testAppFactory() (interface{}, error)    { return struct{}{}, nil }
func testCloseFn(interface{}) error           { return nil }
