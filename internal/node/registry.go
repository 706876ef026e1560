package node

import (
	"sync"

	"github.com/fieldmesh/iiotgw/internal/gwerrors"
)

// Info is a read-only projection of an Adapter used by Manager.GetNodes /
// Manager.GetNodeInfo (SPEC_FULL.md §4.5, §4.7).
type Info struct {
	Name       string
	Type       Type
	PluginName string
	State      State
}

// Filter narrows Registry.Filter's results. A nil field matches anything.
type Filter struct {
	Type       *Type
	PluginName *string
	Name       *string
}

// Registry is the process-wide map of node names to Adapters
// (SPEC_FULL.md §4.5). It enforces name uniqueness; it does not own
// Adapter lifecycle beyond bookkeeping (Manager drives Init/Uninit/Destroy
// calls directly).
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Adapter
}

func New() *Registry {
	return &Registry{nodes: make(map[string]*Adapter)}
}

// Add inserts adapter, rejecting a name already in use (NODE_EXIST).
func (r *Registry) Add(a *Adapter) *gwerrors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[a.Name]; exists {
		return gwerrors.ErrNodeExist(a.Name)
	}
	r.nodes[a.Name] = a
	return nil
}

// Del removes name, returning NODE_NOT_EXIST if absent.
func (r *Registry) Del(name string) *gwerrors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[name]; !exists {
		return gwerrors.ErrNodeNotExist(name)
	}
	delete(r.nodes, name)
	return nil
}

func (r *Registry) Find(name string) (*Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.nodes[name]
	return a, ok
}

// Filter returns every Adapter matching every non-nil field of f.
func (r *Registry) Filter(f Filter) []*Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Adapter
	for _, a := range r.nodes {
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		if f.PluginName != nil && a.PluginName != *f.PluginName {
			continue
		}
		if f.Name != nil && a.Name != *f.Name {
			continue
		}
		out = append(out, a)
	}
	return out
}

// UpdateName performs a pure rename, rejecting an unknown old name or a
// new name already in use. Callers (Manager.UpdateNodeName) are
// responsible for rekeying SubscriptionRegistry around this call per the
// atomicity rule in SPEC_FULL.md §4.7.
func (r *Registry) UpdateName(oldName, newName string) *gwerrors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, exists := r.nodes[oldName]
	if !exists {
		return gwerrors.ErrNodeNotExist(oldName)
	}
	if _, taken := r.nodes[newName]; taken {
		return gwerrors.ErrNodeExist(newName)
	}
	delete(r.nodes, oldName)
	a.Name = newName
	r.nodes[newName] = a
	return nil
}

func (r *Registry) IsDriver(name string) bool {
	a, ok := r.Find(name)
	return ok && a.Type == Driver
}

func (r *Registry) GetPipe(name string) (Pipe, bool) {
	a, ok := r.Find(name)
	if !ok {
		return "", false
	}
	return a.Pipe, true
}

// Get returns Info for every node of the given type.
func (r *Registry) Get(t Type) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Info
	for _, a := range r.nodes {
		if a.Type != t {
			continue
		}
		out = append(out, Info{Name: a.Name, Type: a.Type, PluginName: a.PluginName, State: a.State()})
	}
	return out
}
