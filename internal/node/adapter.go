// Package node implements Adapter and NodeRegistry (SPEC_FULL.md §4.5): a
// running instance of a plugin inside the host process, and the
// process-wide map of node names to Adapters.
//
// Structurally this plays the role the teacher's internal/nodes/manager.go
// plays for Kubernetes cluster nodes (a name-keyed, mutex-guarded registry
// with typed lookups/filters) — but that package's actual operations
// (cordon, drain, taint) have no IIoT referent and are not carried forward;
// only the registry shape is reused.
package node

import (
	"context"
	"sync"

	"github.com/fieldmesh/iiotgw/internal/cache"
	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/plugin"
)

// Type is the role an Adapter plays. It is an alias of plugin.Kind, so a
// node's Type and its plugin's declared kind share one set of values.
type Type = plugin.Kind

const (
	Driver  = plugin.Driver
	App     = plugin.App
	NDriver = plugin.NDriver
)

// State is an Adapter's lifecycle state (SPEC_FULL.md §4.7 add_node:
// "init → (running) → uninit → destroy").
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

// Pipe is an opaque transport handle addressing a single node's inbox
// (SPEC_FULL.md §6). Concretely a NATS subject when bound to
// internal/transport's NATS implementation.
type Pipe string

// Adapter is a running instance of a plugin. For DRIVER/NDRIVER nodes it
// additionally owns a TagCache and a set of Groups; APP nodes own neither.
// An Adapter exclusively owns its plugin Instance; the PluginRegistry
// merely tracks its reference count for Del safety (SPEC_FULL.md §3
// Ownership summary).
type Adapter struct {
	mu sync.Mutex

	Name       string
	PluginName string
	Type       Type
	Pipe       Pipe
	Instance   *plugin.Instance

	state   State
	cancel  context.CancelFunc
	runCtx  context.Context
	polling bool

	Cache      *cache.Cache
	groupOrder []string
	groups     map[string]*group.Group
}

// New constructs an Adapter. For DRIVER/NDRIVER types a Cache is
// allocated; APP adapters leave it nil.
func New(name, pluginName string, typ Type, pipe Pipe, instance *plugin.Instance) *Adapter {
	a := &Adapter{
		Name:       name,
		PluginName: pluginName,
		Type:       typ,
		Pipe:       pipe,
		Instance:   instance,
		groups:     make(map[string]*group.Group),
	}
	if typ == Driver || typ == NDriver {
		a.Cache = cache.New()
	}
	return a
}

// DriverHandle is the contract a DRIVER/NDRIVER plugin's instance handle
// may optionally satisfy: a self-driven worker that reads field devices
// and pushes values into its own Adapter's cache via Cache.Add/Update. The
// scheduler (internal/scheduler) independently reads the cache on a timer
// and fans changed values out to subscribers — DriverHandle only owns
// acquisition, never delivery (SPEC_FULL.md §4.8 "Coroutine-free": the core
// exposes no async contract of its own, this is ambient infrastructure
// around it).
type DriverHandle interface {
	Start(ctx context.Context, c *cache.Cache, groups []*group.Group)
}

// Init transitions the Adapter to running. If start is true and the
// plugin's instance handle satisfies DriverHandle, its worker loop is
// launched in a goroutine bound to an internal context that Uninit
// cancels. start=false constructs the node without polling — used by
// instantiate_template, which creates nodes before their groups are fully
// populated (SPEC_FULL.md §4.7).
func (a *Adapter) Init(ctx context.Context, start bool) *gwerrors.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = StateRunning

	a.runCtx = runCtx
	if start {
		a.startPollingLocked()
	}
	return nil
}

// StartPolling launches the plugin instance's DriverHandle worker, if one
// is present and not already running. Separate from Init so callers that
// build a node's groups after creating it (instantiate_template,
// SPEC_FULL.md §4.7) can create the node stopped and start polling once
// configuration is complete.
func (a *Adapter) StartPolling() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startPollingLocked()
}

// startPollingLocked must be called with mu held.
func (a *Adapter) startPollingLocked() {
	if a.polling || a.Instance == nil || a.runCtx == nil {
		return
	}
	handle, ok := a.Instance.Handle.(DriverHandle)
	if !ok {
		return
	}
	groups := make([]*group.Group, 0, len(a.groupOrder))
	for _, n := range a.groupOrder {
		groups = append(groups, a.groups[n])
	}
	a.polling = true
	go handle.Start(a.runCtx, a.Cache, groups)
}

// Uninit cancels the Adapter's run context and awaits nothing further: per
// spec, del_node "awaits this flag before freeing the plugin instance" —
// in Go that await is the scheduler goroutine observing ctx.Done() and
// returning, which the Manager's del_node joins before calling Destroy.
func (a *Adapter) Uninit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.state = StateStopped
}

// Destroy releases the plugin instance via registry and drops the tag
// cache, if any. registry may be nil for test adapters with no live
// instance.
func (a *Adapter) Destroy(registry *plugin.Registry) *gwerrors.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if registry != nil && a.Instance != nil {
		if err := registry.DestroyInstance(a.Instance); err != nil {
			return err
		}
	}
	if a.Cache != nil {
		a.Cache.Destroy()
	}
	return nil
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Context returns the Adapter's run context, established by Init and
// cancelled by Uninit. Callers that need to tie their own lifecycle to the
// Adapter's (the scheduler's Poller, chiefly) derive their own cancellable
// context from this one rather than from context.Background(), so a
// del_node's Uninit tears down report delivery the same moment it tears
// down acquisition.
func (a *Adapter) Context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runCtx
}

// AddGroup materializes a new poll group on a driver/ndriver Adapter,
// rejecting an interval below group.IntervalLimit
// (GROUP_PARAMETER_INVALID, SPEC_FULL.md §4.7 instantiate_template).
func (a *Adapter) AddGroup(name string, intervalMS uint32) *gwerrors.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if intervalMS < group.IntervalLimit {
		return gwerrors.New(gwerrors.GroupParameterInvalid, "group interval below minimum")
	}
	if _, exists := a.groups[name]; exists {
		return gwerrors.New(gwerrors.GroupExist, "group "+name+" already exists on node "+a.Name)
	}
	a.groups[name] = group.New(name, intervalMS)
	a.groupOrder = append(a.groupOrder, name)
	return nil
}

func (a *Adapter) GroupExist(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.groups[name]
	return ok
}

func (a *Adapter) GetGroup(name string) (*group.Group, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[name]
	return g, ok
}

// Groups returns every group in insertion order.
func (a *Adapter) Groups() []*group.Group {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*group.Group, 0, len(a.groupOrder))
	for _, n := range a.groupOrder {
		out = append(out, a.groups[n])
	}
	return out
}
