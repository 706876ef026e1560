// Package scheduler implements the per-driver polling loop (SPEC_FULL.md
// §4.8): one Poller per driver Adapter, running one goroutine with its own
// time.Ticker per Group, reading the driver's TagCache and fanning changed
// values out to every subscriber's pipe over the transport.
//
// Grounded on the teacher's internal/tracker.ConnectionTracker.Start: a
// ticker-driven loop selecting between ticker.C and a stop channel, run in
// a background goroutine per Start call. The IIoT domain wants one such
// loop per driver rather than the tracker's single global loop, since
// every driver node has its own set of groups and intervals.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldmesh/iiotgw/internal/cache"
	"github.com/fieldmesh/iiotgw/internal/node"
	"github.com/fieldmesh/iiotgw/internal/subscription"
	"github.com/fieldmesh/iiotgw/internal/transport"
)

// MsgReport is the message type the scheduler emits for a changed group
// reading, mirroring transport.MsgSubscribeGroup's role as the only other
// core-emitted message type (SPEC_FULL.md §6).
const MsgReport transport.MsgType = "REPORT"

// ReportBody is MsgReport's JSON body: one driver group's changed tag
// values at the moment the scheduler polled it.
type ReportBody struct {
	Driver string        `json:"driver"`
	Group  string        `json:"group"`
	Values []cache.Entry `json:"values"`
	Params *string       `json:"params,omitempty"`
}

// SubLookup is the subset of Manager the scheduler needs: resolving which
// pipes should receive a (driver, group) report. Declared as an interface
// here, rather than importing internal/manager directly, so the scheduler
// package has no dependency on Manager's control-plane surface — only on
// the read it actually performs.
type SubLookup interface {
	// SubscribersOf returns every subscription entry whose driver/group
	// match, covering both plain app subscriptions and ndriver maps.
	SubscribersOf(driver, group string) []subscription.Entry
}

// Poller drives one driver Adapter's groups on independent tickers and
// forwards changed readings to subscribers over a Transport. Construct one
// per driver node; Stop cancels every group's ticker goroutine.
type Poller struct {
	adapter   *node.Adapter
	transport transport.Transport
	subs      SubLookup
	logger    zerolog.Logger

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New constructs a Poller for adapter. adapter.Type must be node.Driver or
// node.NDriver — callers are responsible for only constructing pollers for
// nodes that actually own a TagCache and groups (SPEC_FULL.md §4.8).
func New(adapter *node.Adapter, tr transport.Transport, subs SubLookup, logger zerolog.Logger) *Poller {
	return &Poller{adapter: adapter, transport: tr, subs: subs, logger: logger}
}

// Start launches one goroutine per group, each ticking at the group's
// configured interval. Groups added to the adapter after Start is called
// are not picked up — Manager must stop and restart the poller (or add the
// node fresh) when a driver's group set changes while running, matching
// the source's "groups are fixed once the driver subsystem is running"
// behavior. Start is idempotent: a second call on an already-started
// Poller is a no-op, since Manager may start a node's groups either
// eagerly at AddNode or later via StartNode (instantiate_template), never
// both.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, g := range p.adapter.Groups() {
		p.wg.Add(1)
		go p.runGroup(runCtx, g.Name(), g.GetInterval())
	}
}

// Stop cancels every group goroutine and waits for them to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) runGroup(ctx context.Context, groupName string, intervalMS uint32) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.poll(groupName)
		case <-ctx.Done():
			return
		}
	}
}

// poll reads every changed tag in groupName from the driver's cache and
// forwards one REPORT message per subscribed pipe. A cache entry whose
// Kind is ERROR is always included (SPEC_FULL.md §4.1's latch), everything
// else only if its Changed flag is set.
func (p *Poller) poll(groupName string) {
	if p.adapter.Cache == nil {
		return
	}

	changed := snapshotGroupChanged(p.adapter, groupName)
	if len(changed) == 0 {
		return
	}

	subs := p.subs.SubscribersOf(p.adapter.Name, groupName)
	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		body := ReportBody{Driver: p.adapter.Name, Group: groupName, Values: changed, Params: sub.Params}
		data, err := json.Marshal(body)
		if err != nil {
			p.logger.Warn().Err(err).Str("driver", p.adapter.Name).Str("group", groupName).Msg("scheduler: failed to encode report")
			continue
		}
		msg := transport.Message{
			Header: transport.NewHeader(MsgReport, p.adapter.Name, sub.App),
			Body:   data,
		}
		if err := p.transport.Send(sub.Pipe, msg); err != nil {
			p.logger.Warn().Err(err).Str("driver", p.adapter.Name).Str("app", sub.App).Str("group", groupName).Msg("scheduler: report delivery failed")
		}
	}
}

// snapshotGroupChanged reads every changed entry belonging to groupName
// from the cache, using GetChanged per tag so the changed flag clears
// exactly once per poll, as required by SPEC_FULL.md §4.1.
func snapshotGroupChanged(adapter *node.Adapter, groupName string) []cache.Entry {
	g, ok := adapter.GetGroup(groupName)
	if !ok {
		return nil
	}
	var out []cache.Entry
	for _, tag := range g.GetTags() {
		entry, ok := adapter.Cache.GetChanged(groupName, tag.Name)
		if !ok {
			continue
		}
		out = append(out, entry)
	}
	return out
}
