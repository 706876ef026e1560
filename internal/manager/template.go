package manager

import (
	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/template"
)

// GroupSpec describes one group within a TemplateSpec.
type GroupSpec struct {
	Name       string
	IntervalMS uint32
	Tags       []group.TagDef
}

// TemplateSpec is the input DTO for AddTemplate, mirroring the YAML shape
// SPEC_FULL.md §4.3 supplemental's template loader produces.
type TemplateSpec struct {
	Name       string
	PluginName string
	Groups     []GroupSpec
}

// AddTemplate mirrors neu_manager_add_template: verify the plugin exists
// and isn't single-instance-only (PLUGIN_NOT_SUPPORT_TEMPLATE otherwise,
// the template-side analogue of add_node's single guard) → create an
// instance → build the Template, populating every group and tag → insert
// into TemplateRegistry. Any failure along the way destroys the plugin
// instance it created so nothing leaks (SPEC_FULL.md §4.7 add_template).
func (m *Manager) AddTemplate(spec TemplateSpec) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc, ok := m.plugins.Find(spec.PluginName)
	if !ok {
		return gwerrors.ErrPluginNotFound(spec.PluginName)
	}
	if desc.Single {
		return gwerrors.New(gwerrors.PluginNotSupportTemplate, "plugin "+spec.PluginName+" does not support templates")
	}

	inst, err := m.plugins.CreateInstance(spec.PluginName)
	if err != nil {
		return err
	}

	tmpl := template.New(spec.Name, spec.PluginName, desc.TagValidator)
	for _, gs := range spec.Groups {
		if gerr := tmpl.AddGroup(gs.Name, gs.IntervalMS); gerr != nil {
			m.plugins.DestroyInstance(inst)
			return gerr
		}
		for _, tag := range gs.Tags {
			if gerr := tmpl.AddTag(gs.Name, tag); gerr != nil {
				m.plugins.DestroyInstance(inst)
				return gerr
			}
		}
	}

	if aerr := m.templates.Add(tmpl, inst); aerr != nil {
		m.plugins.DestroyInstance(inst)
		return aerr
	}
	m.logger.Info().Str("template", spec.Name).Str("plugin", spec.PluginName).Msg("template added")
	return nil
}

// DelTemplate mirrors neu_manager_del_template: remove from the registry
// and release the plugin instance it was holding.
func (m *Manager) DelTemplate(name string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, err := m.templates.Del(name)
	if err != nil {
		return err
	}
	if inst != nil {
		m.plugins.DestroyInstance(inst)
	}
	m.logger.Info().Str("template", name).Msg("template removed")
	return nil
}

// ClearTemplates mirrors neu_manager_clear_templates: removes every
// template and releases every plugin instance they held.
func (m *Manager) ClearTemplates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.templates.Clear()
	for _, inst := range insts {
		m.plugins.DestroyInstance(inst)
	}
	m.logger.Info().Int("count", len(insts)).Msg("templates cleared")
}

// GetTemplate mirrors neu_manager_get_template.
func (m *Manager) GetTemplate(name string) (*template.Template, *gwerrors.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(name)
	if !ok {
		return nil, gwerrors.ErrTemplateNotFound(name)
	}
	return t, nil
}

// GetTemplates mirrors neu_manager_get_templates.
func (m *Manager) GetTemplates() []*template.Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.templates.List()
}

// AddTemplateGroup adds an empty group to an existing template.
func (m *Manager) AddTemplateGroup(tmplName, groupName string, intervalMS uint32) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return gwerrors.ErrTemplateNotFound(tmplName)
	}
	return t.AddGroup(groupName, intervalMS)
}

// UpdateTemplateGroup changes an existing template group's interval.
func (m *Manager) UpdateTemplateGroup(tmplName, groupName string, intervalMS uint32) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return gwerrors.ErrTemplateNotFound(tmplName)
	}
	return t.UpdateGroup(groupName, intervalMS)
}

// DelTemplateGroup removes a group from a template, no-op if absent.
func (m *Manager) DelTemplateGroup(tmplName, groupName string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return gwerrors.ErrTemplateNotFound(tmplName)
	}
	t.DelGroup(groupName)
	return nil
}

// GetTemplateGroup returns a single template group by name.
func (m *Manager) GetTemplateGroup(tmplName, groupName string) (*group.Group, *gwerrors.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return nil, gwerrors.ErrTemplateNotFound(tmplName)
	}
	g, ok := t.GetGroup(groupName)
	if !ok {
		return nil, gwerrors.ErrGroupNotFound(groupName)
	}
	return g, nil
}

// AddTemplateTags adds tags to a template group one at a time, stopping at
// the first rejected tag. Tags added before the failure are left in place
// (SPEC_FULL.md §7: partial application is the documented behavior, not an
// error to roll back). failIndex is the index of the failing tag, or -1 if
// every tag was applied.
func (m *Manager) AddTemplateTags(tmplName, groupName string, tags []group.TagDef) (failIndex int, err *gwerrors.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return -1, gwerrors.ErrTemplateNotFound(tmplName)
	}
	for i, tag := range tags {
		if aerr := t.AddTag(groupName, tag); aerr != nil {
			return i, aerr
		}
	}
	return -1, nil
}

// UpdateTemplateTags replaces existing tag definitions one at a time,
// stopping at the first rejection, with the same partial-application
// semantics as AddTemplateTags.
func (m *Manager) UpdateTemplateTags(tmplName, groupName string, tags []group.TagDef) (failIndex int, err *gwerrors.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return -1, gwerrors.ErrTemplateNotFound(tmplName)
	}
	for i, tag := range tags {
		if uerr := t.UpdateTag(groupName, tag); uerr != nil {
			return i, uerr
		}
	}
	return -1, nil
}

// DelTemplateTags removes tags from a template group by name, best-effort:
// unknown tag names are silently ignored rather than reported, since
// Group.DelTag already no-ops on an absent name (SPEC_FULL.md §7).
func (m *Manager) DelTemplateTags(tmplName, groupName string, tagNames []string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return gwerrors.ErrTemplateNotFound(tmplName)
	}
	g, ok := t.GetGroup(groupName)
	if !ok {
		return gwerrors.ErrGroupNotFound(groupName)
	}
	for _, name := range tagNames {
		g.DelTag(name)
	}
	return nil
}

// GetTemplateTags returns a template group's tags, optionally filtered by
// substring match on name.
func (m *Manager) GetTemplateTags(tmplName, groupName, nameFilter string) ([]group.TagDef, *gwerrors.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates.Find(tmplName)
	if !ok {
		return nil, gwerrors.ErrTemplateNotFound(tmplName)
	}
	g, ok := t.GetGroup(groupName)
	if !ok {
		return nil, gwerrors.ErrGroupNotFound(groupName)
	}
	if nameFilter != "" {
		return g.QueryTag(nameFilter), nil
	}
	return g.GetTags(), nil
}
