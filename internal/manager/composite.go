package manager

import (
	"context"

	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/node"
	"github.com/fieldmesh/iiotgw/internal/subscription"
)

// InstantiateTemplate mirrors neu_manager_instantiate_template: create a
// new driver node from tmplName's plugin, then replay every group and tag
// the template holds onto the freshly created Adapter. Only DRIVER-typed
// plugins may be instantiated this way (GROUP_NOT_ALLOW otherwise, since
// APP/NDRIVER nodes have no groups to populate). Any failure after node
// creation rolls the whole operation back by uninitializing and deleting
// the node — the template itself is never touched (SPEC_FULL.md §4.7,
// §8 scenario 3).
func (m *Manager) InstantiateTemplate(ctx context.Context, tmplName, newNodeName string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmpl, ok := m.templates.Find(tmplName)
	if !ok {
		return gwerrors.ErrTemplateNotFound(tmplName)
	}

	if err := m.addNodeLocked(ctx, newNodeName, tmpl.PluginName, false); err != nil {
		return err
	}

	adapter, ok := m.nodes.Find(newNodeName)
	if !ok {
		return gwerrors.ErrInternal("node vanished immediately after creation", nil)
	}
	if adapter.Type != node.Driver {
		m.rollbackInstantiate(newNodeName)
		return gwerrors.New(gwerrors.GroupNotAllow, "template "+tmplName+" plugin is not a driver, cannot instantiate groups")
	}

	applyErr := tmpl.ForEachGroup(func(g *group.Group) *gwerrors.Error {
		if err := adapter.AddGroup(g.Name(), g.GetInterval()); err != nil {
			return err
		}
		driverGroup, _ := adapter.GetGroup(g.Name())
		for _, tag := range g.GetTags() {
			if err := driverGroup.AddTag(tag); err != nil {
				return err
			}
		}
		return nil
	})
	if applyErr != nil {
		m.rollbackInstantiate(newNodeName)
		return applyErr
	}

	m.logger.Info().Str("template", tmplName).Str("node", newNodeName).Msg("template instantiated")
	return nil
}

// rollbackInstantiate tears down a partially-configured node created by a
// failed InstantiateTemplate call. Called with m.mu already held.
func (m *Manager) rollbackInstantiate(nodeName string) {
	if err := m.delNodeLocked(nodeName); err != nil {
		m.logger.Warn().Err(err).Str("node", nodeName).Msg("instantiate_template: rollback failed to remove node")
	}
}

// GetDriverGroup mirrors neu_manager_get_driver_group: a flattened view of
// every group on every driver node, one (driver, group, interval,
// tag count) record per group. The scheduler does not call it; each
// Poller reads its own Adapter's groups.
func (m *Manager) GetDriverGroup() []subscription.DriverGroupRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	driverType := node.Driver
	drivers := m.nodes.Filter(node.Filter{Type: &driverType})
	var out []subscription.DriverGroupRecord
	for _, d := range drivers {
		for _, g := range d.Groups() {
			out = append(out, subscription.DriverGroupRecord{
				Driver:   d.Name,
				Group:    g.Name(),
				Interval: g.GetInterval(),
				TagCount: g.TagCount(),
			})
		}
	}
	return out
}
