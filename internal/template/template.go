// Package template implements Template (SPEC_FULL.md §4.3): a named,
// plugin-typed blueprint composed of Groups plus a plugin-supplied tag
// validator, used to rapidly instantiate identically-configured driver
// nodes. Templates are pure data holders — no async work, no I/O.
package template

import (
	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
)

// Validator checks a candidate tag definition before it is added to a
// template group, returning the plugin's validation error verbatim on
// rejection. Manager.AddTemplate takes it from the plugin's Descriptor
// (TagValidator); a nil Validator admits every tag.
type Validator func(group.TagDef) *gwerrors.Error

// Template is a named collection of Groups bound to a plugin, validated
// through Validator.
type Template struct {
	Name       string
	PluginName string
	Validator  Validator

	order  []string
	groups map[string]*group.Group
}

// New constructs an empty Template.
func New(name, pluginName string, validator Validator) *Template {
	return &Template{
		Name:       name,
		PluginName: pluginName,
		Validator:  validator,
		groups:     make(map[string]*group.Group),
	}
}

// AddGroup inserts a new, empty group at the given interval, rejecting
// duplicate names.
func (t *Template) AddGroup(name string, intervalMS uint32) *gwerrors.Error {
	if _, exists := t.groups[name]; exists {
		return gwerrors.New(gwerrors.GroupExist, "group "+name+" already exists in template "+t.Name)
	}
	t.groups[name] = group.New(name, intervalMS)
	t.order = append(t.order, name)
	return nil
}

// UpdateGroup replaces a group's interval, rejecting unknown names.
func (t *Template) UpdateGroup(name string, intervalMS uint32) *gwerrors.Error {
	g, exists := t.groups[name]
	if !exists {
		return gwerrors.ErrGroupNotFound(name)
	}
	g.SetInterval(intervalMS)
	return nil
}

// DelGroup removes a group by name, no-op if absent.
func (t *Template) DelGroup(name string) {
	if _, exists := t.groups[name]; !exists {
		return
	}
	delete(t.groups, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// GetGroup returns a group by name.
func (t *Template) GetGroup(name string) (*group.Group, bool) {
	g, ok := t.groups[name]
	return g, ok
}

// ForEachGroup iterates groups in insertion order, stopping at the first
// error returned by fn.
func (t *Template) ForEachGroup(fn func(*group.Group) *gwerrors.Error) *gwerrors.Error {
	for _, n := range t.order {
		if err := fn(t.groups[n]); err != nil {
			return err
		}
	}
	return nil
}

// AddTag validates tag via t.Validator before inserting it into the named
// group, returning the validator's error verbatim on rejection
// (SPEC_FULL.md §4.3).
func (t *Template) AddTag(groupName string, tag group.TagDef) *gwerrors.Error {
	g, exists := t.groups[groupName]
	if !exists {
		return gwerrors.ErrGroupNotFound(groupName)
	}
	if t.Validator != nil {
		if err := t.Validator(tag); err != nil {
			return err
		}
	}
	return g.AddTag(tag)
}

// UpdateTag validates tag via t.Validator, exactly like AddTag, then
// replaces the existing tag definition in groupName (rejecting unknown tag
// names).
func (t *Template) UpdateTag(groupName string, tag group.TagDef) *gwerrors.Error {
	g, exists := t.groups[groupName]
	if !exists {
		return gwerrors.ErrGroupNotFound(groupName)
	}
	if t.Validator != nil {
		if err := t.Validator(tag); err != nil {
			return err
		}
	}
	return g.UpdateTag(tag)
}

// Groups returns every group in insertion order.
func (t *Template) Groups() []*group.Group {
	out := make([]*group.Group, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.groups[n])
	}
	return out
}
