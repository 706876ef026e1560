package template

import (
	"sync"

	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/plugin"
)

// Registry is TemplateRegistry (SPEC_FULL.md §4): a map template_name →
// Template, owning exactly one plugin instance per template for validator
// access (SPEC_FULL.md §3 Ownership summary). It performs no plugin
// creation/destruction itself — Manager.AddTemplate/DelTemplate own that —
// it only tracks the pairing so Del/Clear can hand the instance back to
// the caller for release.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	instances map[string]*plugin.Instance
}

func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*Template),
		instances: make(map[string]*plugin.Instance),
	}
}

// Add inserts tmpl paired with the plugin instance it was built with,
// rejecting a name already in use.
func (r *Registry) Add(tmpl *Template, inst *plugin.Instance) *gwerrors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[tmpl.Name]; exists {
		return gwerrors.New(gwerrors.TemplateExist, "template "+tmpl.Name+" already exists")
	}
	r.templates[tmpl.Name] = tmpl
	r.instances[tmpl.Name] = inst
	return nil
}

// Del removes name and returns its plugin instance for the caller to
// release.
func (r *Registry) Del(name string) (*plugin.Instance, *gwerrors.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[name]; !exists {
		return nil, gwerrors.ErrTemplateNotFound(name)
	}
	inst := r.instances[name]
	delete(r.templates, name)
	delete(r.instances, name)
	return inst, nil
}

// Clear removes every template and returns their plugin instances for
// release.
func (r *Registry) Clear() []*plugin.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*plugin.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		if inst != nil {
			out = append(out, inst)
		}
	}
	r.templates = make(map[string]*Template)
	r.instances = make(map[string]*plugin.Instance)
	return out
}

func (r *Registry) Find(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

func (r *Registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	return out
}
