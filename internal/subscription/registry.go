// Package subscription implements SubscriptionRegistry (SPEC_FULL.md §4.6):
// the directed many-to-many relation (driver, group) → {(app, params,
// pipe)} and its inverse, grounded on
// _examples/original_source/src/core/manager_internal.c's
// subscribe_manager (manager_subscribe / neu_subscribe_manager_sub /
// neu_subscribe_manager_remove) for the exact operation semantics.
package subscription

import (
	"sync"

	"github.com/fieldmesh/iiotgw/internal/node"
)

// Via records which API surface created a subscription: the ordinary
// app-to-driver-group subscribe, or the ndriver-map path (SPEC_FULL.md
// §4.7 add_ndriver_map), which shares storage but is queried separately by
// get_ndriver_maps.
type Via int

const (
	ViaSubscribe Via = iota
	ViaMap
)

// Entry is one subscription: a (driver, group, app) triple plus cached
// pipe and optional params.
type Entry struct {
	Driver string
	Group  string
	App    string
	Params *string
	Pipe   node.Pipe
	Via    Via
}

type key struct {
	Driver string
	Group  string
	App    string
}

// Registry stores subscriptions keyed by (driver, group, app).
type Registry struct {
	mu   sync.RWMutex
	subs map[key]*Entry
}

func New() *Registry {
	return &Registry{subs: make(map[key]*Entry)}
}

// Sub inserts or updates a subscription. Idempotent on (driver, app,
// group): re-subscribing overwrites only params and pipe (SPEC_FULL.md
// §8 invariant 8).
func (r *Registry) Sub(driver, app, group string, params *string, pipe node.Pipe, via Via) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{Driver: driver, Group: group, App: app}
	if e, exists := r.subs[k]; exists {
		e.Params = params
		e.Pipe = pipe
		return
	}
	r.subs[k] = &Entry{Driver: driver, Group: group, App: app, Params: params, Pipe: pipe, Via: via}
}

// Unsub removes a single (driver, group, app) subscription, no-op if
// absent.
func (r *Registry) Unsub(driver, app, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, key{Driver: driver, Group: group, App: app})
}

// Get returns every subscription where app is the subscriber, as a
// snapshot: each Entry is copied and its Params string is cloned into a
// fresh pointer, so callers own the result independently of the registry.
func (r *Registry) Get(app string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.subs {
		if e.App == app && e.Via == ViaSubscribe {
			cp := *e
			if e.Params != nil {
				p := *e.Params
				cp.Params = &p
			}
			out = append(out, cp)
		}
	}
	return out
}

// GetNDriverMaps returns every subscription made through the ndriver-map
// API where ndriver is the subscriber (SPEC_FULL.md §4.7 add_ndriver_map).
func (r *Registry) GetNDriverMaps(ndriver string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.subs {
		if e.App == ndriver && e.Via == ViaMap {
			out = append(out, *e)
		}
	}
	return out
}

// SubscribersOf returns every subscription entry — both plain app
// subscriptions and ndriver maps — whose (driver, group) match, for the
// scheduler's report fan-out (SPEC_FULL.md §4.8).
func (r *Registry) SubscribersOf(driver, group string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.subs {
		if e.Driver == driver && e.Group == group {
			out = append(out, *e)
		}
	}
	return out
}

// Remove deletes every subscription in which nodeName appears as either
// driver or app, used on node deletion (SPEC_FULL.md §4.7 del_node).
func (r *Registry) Remove(nodeName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.subs {
		if e.Driver == nodeName || e.App == nodeName {
			delete(r.subs, k)
		}
	}
}

// UpdateDriverName rekeys every subscription whose driver matches oldName.
func (r *Registry) UpdateDriverName(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rekey(func(e *Entry) bool { return e.Driver == oldName }, func(e *Entry) { e.Driver = newName })
}

// UpdateAppName rekeys every subscription whose app matches oldName.
func (r *Registry) UpdateAppName(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rekey(func(e *Entry) bool { return e.App == oldName }, func(e *Entry) { e.App = newName })
}

// rekey must be called with mu held. It replaces every matching entry's map
// key (since key is derived from Driver/Group/App, which mutate) in place.
func (r *Registry) rekey(match func(*Entry) bool, apply func(*Entry)) {
	matched := make(map[key]*Entry)
	for k, e := range r.subs {
		if match(e) {
			matched[k] = e
		}
	}
	for k, e := range matched {
		delete(r.subs, k)
		apply(e)
		r.subs[key{Driver: e.Driver, Group: e.Group, App: e.App}] = e
	}
}

// DriverGroupRecord is one flattened (driver, group) row, produced by
// Manager.GetDriverGroup from node/group data rather than from this
// registry — kept here only as a shared shape used by both packages.
type DriverGroupRecord struct {
	Driver   string
	Group    string
	Interval uint32
	TagCount int
}
