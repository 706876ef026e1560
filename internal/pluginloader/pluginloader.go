// Package pluginloader implements the dynamic plugin loader the gateway's
// PluginRegistry depends on (SPEC_FULL.md §6 "Plugin ABI (consumed)"): it
// maps a library path on disk to a module descriptor and an
// open/close lifecycle, exactly the contract spec.md §1 describes as
// "assumed to expose load(path) → handle+module_descriptor and
// unload(handle)".
//
// Concrete binding: Go's standard library "plugin" package — .so files
// built with -buildmode=plugin, looked up by well-known exported symbol
// names. No ecosystem library offers a materially better story for
// same-process dynamic code loading on the platforms Go plugins support,
// so this is stdlib by necessity rather than by omission (see DESIGN.md).
package pluginloader

import (
	"fmt"
	"plugin"
)

// Kind discriminates the role a loaded plugin module plays, mirroring
// neu_node_type_e.
type Kind int

const (
	Driver Kind = iota
	App
	NDriver
)

func (k Kind) String() string {
	switch k {
	case Driver:
		return "DRIVER"
	case App:
		return "APP"
	case NDriver:
		return "NDRIVER"
	default:
		return "UNKNOWN"
	}
}

// Descriptor is the module descriptor a plugin library exports (SPEC_FULL.md
// §6): its name, role, and whether it may be instantiated more than once.
type Descriptor struct {
	Name   string
	Kind   Kind
	Single bool
}

// TagValidator validates a candidate tag (by name, type discriminant, and
// precision) before it is admitted into a Group. Kept primitive (no
// dependency on internal/group) so pluginloader has no dependency on the
// rest of the domain model — only internal/plugin, which does own that
// dependency, adapts this into a group.TagDef-shaped validator.
type TagValidator func(name string, typeTag uint8, precision uint8) error

// Module is everything the registry needs from a loaded plugin library:
// its descriptor, a constructor for per-node instances, a matching
// destructor, and (for DRIVER/NDRIVER modules) a tag validator.
type Module struct {
	Descriptor   Descriptor
	Open         func() (interface{}, error)
	Close        func(interface{}) error
	TagValidator TagValidator
}

// Loader loads and unloads plugin libraries by path.
type Loader interface {
	Load(path string) (*Module, error)
	Unload(path string) error
}

// DefaultLoader loads Go plugin (.so) files built with -buildmode=plugin.
// Each library must export:
//
//	var ModuleDescriptor = pluginloader.Descriptor{...}
//	func Open() (interface{}, error)
//	func Close(interface{}) error
//
// and, for DRIVER/NDRIVER modules, an optional:
//
//	func ValidateTag(name string, typeTag uint8, precision uint8) error
type DefaultLoader struct{}

func (DefaultLoader) Load(path string) (*Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pluginloader: open %s: %w", path, err)
	}

	descSym, err := p.Lookup("ModuleDescriptor")
	if err != nil {
		return nil, fmt.Errorf("pluginloader: %s missing ModuleDescriptor: %w", path, err)
	}
	desc, ok := descSym.(*Descriptor)
	if !ok {
		return nil, fmt.Errorf("pluginloader: %s ModuleDescriptor has wrong type", path)
	}

	openSym, err := p.Lookup("Open")
	if err != nil {
		return nil, fmt.Errorf("pluginloader: %s missing Open: %w", path, err)
	}
	open, ok := openSym.(func() (interface{}, error))
	if !ok {
		return nil, fmt.Errorf("pluginloader: %s Open has wrong signature", path)
	}

	closeSym, err := p.Lookup("Close")
	if err != nil {
		return nil, fmt.Errorf("pluginloader: %s missing Close: %w", path, err)
	}
	closeFn, ok := closeSym.(func(interface{}) error)
	if !ok {
		return nil, fmt.Errorf("pluginloader: %s Close has wrong signature", path)
	}

	var validator TagValidator
	if validateSym, err := p.Lookup("ValidateTag"); err == nil {
		if v, ok := validateSym.(func(string, uint8, uint8) error); ok {
			validator = v
		}
	}

	return &Module{
		Descriptor:   *desc,
		Open:         open,
		Close:        closeFn,
		TagValidator: validator,
	}, nil
}

// Unload is a documented no-op: the Go plugin package provides no
// dlclose-equivalent, so a library mapped into the process stays mapped for
// the process lifetime. Real Neuron dlclose()s the shared object; this is a
// known platform limitation of Go plugins, not an oversight (see
// DESIGN.md). The registry still accounts for the library as unloaded from
// its own bookkeeping perspective.
func (DefaultLoader) Unload(path string) error {
	return nil
}
