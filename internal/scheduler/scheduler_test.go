package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/iiotgw/internal/node"
	"github.com/fieldmesh/iiotgw/internal/subscription"
	"github.com/fieldmesh/iiotgw/internal/tagvalue"
	"github.com/fieldmesh/iiotgw/internal/transport"
)

type fakeSubLookup struct {
	entries map[string][]subscription.Entry
}

func (f *fakeSubLookup) SubscribersOf(driver, group string) []subscription.Entry {
	return f.entries[driver+"/"+group]
}

func TestPollerSkipsTickWithNoChangedTags(t *testing.T) {
	adapter := node.New("driver1", "p1", node.Driver, "driver1-pipe", nil)
	require.Nil(t, adapter.AddGroup("g1", 100))
	adapter.Cache.Add("g1", "t1", tagvalue.Int32(1))

	tr := transport.NewMem()
	tr.RegisterPipe("app1-pipe")
	subs := &fakeSubLookup{entries: map[string][]subscription.Entry{
		"driver1/g1": {{Driver: "driver1", Group: "g1", App: "app1", Pipe: "app1-pipe"}},
	}}

	p := New(adapter, tr, subs, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	defer func() { cancel(); p.Stop() }()

	time.Sleep(150 * time.Millisecond)
	_, err := tr.RecvFrom(timeoutCtx(10*time.Millisecond), "app1-pipe")
	assert.Error(t, err, "no report should be sent when nothing changed")
}

func TestPollerReportsChangedTagsToSubscribers(t *testing.T) {
	adapter := node.New("driver1", "p1", node.Driver, "driver1-pipe", nil)
	require.Nil(t, adapter.AddGroup("g1", 100))
	adapter.Cache.Add("g1", "t1", tagvalue.Int32(1))
	adapter.Cache.Update("g1", "t1", 1, tagvalue.Int32(2))

	tr := transport.NewMem()
	tr.RegisterPipe("app1-pipe")
	subs := &fakeSubLookup{entries: map[string][]subscription.Entry{
		"driver1/g1": {{Driver: "driver1", Group: "g1", App: "app1", Pipe: "app1-pipe"}},
	}}

	p := New(adapter, tr, subs, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	defer func() { cancel(); p.Stop() }()

	msg, err := tr.RecvFrom(timeoutCtx(time.Second), "app1-pipe")
	require.NoError(t, err)
	assert.Equal(t, MsgReport, msg.Header.Type)
	assert.Equal(t, "driver1", msg.Header.Sender)
	assert.Equal(t, "app1", msg.Header.Receiver)

	var body ReportBody
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "driver1", body.Driver)
	assert.Equal(t, "g1", body.Group)
	require.Len(t, body.Values, 1)
	assert.Equal(t, "t1", body.Values[0].Key.Tag)
}

func TestPollerSkipsGroupsWithNoSubscribers(t *testing.T) {
	adapter := node.New("driver1", "p1", node.Driver, "driver1-pipe", nil)
	require.Nil(t, adapter.AddGroup("g1", 100))
	adapter.Cache.Add("g1", "t1", tagvalue.Int32(1))
	adapter.Cache.Update("g1", "t1", 1, tagvalue.Int32(2))

	tr := transport.NewMem()
	subs := &fakeSubLookup{entries: map[string][]subscription.Entry{}}

	p := New(adapter, tr, subs, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	defer func() { cancel(); p.Stop() }()

	time.Sleep(150 * time.Millisecond) // no panic, no send attempted
}

func TestStopWaitsForGroupGoroutines(t *testing.T) {
	adapter := node.New("driver1", "p1", node.Driver, "driver1-pipe", nil)
	require.Nil(t, adapter.AddGroup("g1", 100))

	tr := transport.NewMem()
	subs := &fakeSubLookup{}

	p := New(adapter, tr, subs, zerolog.New(io.Discard))
	p.Start(context.Background())
	p.Stop() // must return promptly, not hang
}

func timeoutCtx(d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	_ = cancel
	return ctx
}
