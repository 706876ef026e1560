package manager

import (
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/node"
	"github.com/fieldmesh/iiotgw/internal/subscription"
	"github.com/fieldmesh/iiotgw/internal/transport"
)

// Subscribe mirrors neu_manager_subscribe: app must exist, be an APP node,
// and not be the reserved monitor sink (SPEC_FULL.md §8 scenario 5); driver
// must exist and expose group. Only records the subscription — delivery is
// driven separately via SendSubscribe or the scheduler's fan-out.
//
// NODE_NOT_ALLOW_SUBSCRIBE is reserved for the monitor sink and for an app
// node of the wrong type (manager_internal.c:603-615); an app name that
// doesn't exist at all is NODE_NOT_EXIST, same as every other not-found
// case in this file.
func (m *Manager) Subscribe(app, driver, grp string, params *string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if app == monitorSink {
		return gwerrors.New(gwerrors.NodeNotAllowSubscribe, "monitor may not hold subscriptions")
	}
	appAdapter, ok := m.nodes.Find(app)
	if !ok {
		return gwerrors.ErrNodeNotExist(app)
	}
	if appAdapter.Type != node.App {
		return gwerrors.New(gwerrors.NodeNotAllowSubscribe, "node "+app+" is not an app node")
	}
	driverAdapter, ok := m.nodes.Find(driver)
	if !ok {
		return gwerrors.ErrNodeNotExist(driver)
	}
	if !driverAdapter.GroupExist(grp) {
		return gwerrors.ErrGroupNotFound(grp)
	}

	m.subs.Sub(driver, app, grp, params, appAdapter.Pipe, subscription.ViaSubscribe)
	m.logger.Info().Str("app", app).Str("driver", driver).Str("group", grp).Msg("subscription added")
	return nil
}

// Unsubscribe mirrors neu_manager_unsubscribe.
func (m *Manager) Unsubscribe(app, driver, grp string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs.Unsub(driver, app, grp)
	m.logger.Info().Str("app", app).Str("driver", driver).Str("group", grp).Msg("subscription removed")
	return nil
}

// SendSubscribe mirrors neu_manager_send_subscribe: push a SUBSCRIBE_GROUP
// notification to app over the transport. Per SPEC_FULL.md §4.7/§7 this is
// best-effort — a transport failure is logged and swallowed, never
// returned to the caller, since the subscription itself is already durably
// recorded by Subscribe regardless of delivery.
func (m *Manager) SendSubscribe(app, driver, grp string, params *string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	appAdapter, ok := m.nodes.Find(app)
	if !ok {
		return gwerrors.ErrNodeNotExist(app)
	}

	body, merr := marshalSubscribeGroupBody(transport.SubscribeGroupBody{App: app, Driver: driver, Group: grp, Params: params})
	if merr != nil {
		m.logger.Warn().Err(merr).Str("app", app).Msg("send_subscribe: failed to encode body")
		return nil
	}
	msg := transport.Message{
		Header: transport.NewHeader(transport.MsgSubscribeGroup, "manager", app),
		Body:   body,
	}
	if serr := m.transport.Send(appAdapter.Pipe, msg); serr != nil {
		m.logger.Warn().Err(serr).Str("app", app).Str("driver", driver).Str("group", grp).Msg("send_subscribe: delivery failed")
		return nil
	}
	m.logger.Info().Str("app", app).Str("driver", driver).Str("group", grp).Msg("send_subscribe: delivered")
	return nil
}

// GetSubGroup mirrors neu_manager_get_sub_group.
func (m *Manager) GetSubGroup(app string) []subscription.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs.Get(app)
}

// AddNDriverMap mirrors neu_manager_add_ndriver_map: ndriver must exist and
// be an NDRIVER node (NODE_NOT_ALLOW_MAP otherwise, manager_internal.c:698);
// a missing ndriver is NODE_NOT_EXIST (manager_internal.c:694), the same
// split Subscribe makes for app. driver must exist and expose group.
// Unlike Subscribe, no SendSubscribe notification is sent — ndriver maps
// are polled by the scheduler rather than pushed (SPEC_FULL.md §4.7, §4.8).
func (m *Manager) AddNDriverMap(ndriver, driver, grp string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ndriverAdapter, ok := m.nodes.Find(ndriver)
	if !ok {
		return gwerrors.ErrNodeNotExist(ndriver)
	}
	if ndriverAdapter.Type != node.NDriver {
		return gwerrors.New(gwerrors.NodeNotAllowMap, "node "+ndriver+" is not an ndriver node")
	}
	driverAdapter, ok := m.nodes.Find(driver)
	if !ok {
		return gwerrors.ErrNodeNotExist(driver)
	}
	if !driverAdapter.GroupExist(grp) {
		return gwerrors.ErrGroupNotFound(grp)
	}

	m.subs.Sub(driver, ndriver, grp, nil, ndriverAdapter.Pipe, subscription.ViaMap)
	m.logger.Info().Str("ndriver", ndriver).Str("driver", driver).Str("group", grp).Msg("ndriver map added")
	return nil
}

// DelNDriverMap mirrors neu_manager_del_ndriver_map.
func (m *Manager) DelNDriverMap(ndriver, driver, grp string) *gwerrors.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs.Unsub(driver, ndriver, grp)
	return nil
}

// GetNDriverMaps mirrors neu_manager_get_ndriver_maps.
func (m *Manager) GetNDriverMaps(ndriver string) []subscription.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs.GetNDriverMaps(ndriver)
}
