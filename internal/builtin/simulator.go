// Package builtin provides two in-process plugins registered at startup
// without a dynamic library load (SPEC_FULL.md §4.4 supplemental,
// "builtin plugin registration"): a DRIVER that synthesizes tag values so
// the gateway is runnable and testable without real field hardware, and an
// APP whose instances log the messages passed to their Log method. Modeled on the teacher's
// internal/plugins/base_plugin.go builtin-registration idiom, minus its
// package-level global map (superseded per SPEC_FULL.md §9 — registration
// goes through an explicit Manager/Registry instance here).
package builtin

import (
	"context"
	"math"
	"time"

	"github.com/fieldmesh/iiotgw/internal/cache"
	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/plugin"
	"github.com/fieldmesh/iiotgw/internal/tagvalue"
)

// SimulatorPluginName is the name AddNode/AddTemplate use to reference the
// built-in simulator driver.
const SimulatorPluginName = "simulator"

// simulatorInstance is a simulator driver's per-node handle. It satisfies
// node.DriverHandle: Start is invoked by Adapter.Init/StartPolling in its
// own goroutine.
type simulatorInstance struct {
	tick time.Duration
}

// SimulatorDescriptor is the plugin.Descriptor for the builtin simulator,
// passed to Manager.AddBuiltinPlugin. It validates every tag unconditionally
// (a real driver would reject addresses it can't resolve) and is not
// single-instance, so it may back any number of nodes and templates.
var SimulatorDescriptor = plugin.Descriptor{
	Name:   SimulatorPluginName,
	Kind:   plugin.Driver,
	Single: false,
	TagValidator: func(tag group.TagDef) *gwerrors.Error {
		return nil
	},
}

// NewSimulatorInstance is the builtin factory Manager.AddBuiltinPlugin
// registers under SimulatorPluginName.
func NewSimulatorInstance() (interface{}, error) {
	return &simulatorInstance{tick: 200 * time.Millisecond}, nil
}

// CloseSimulatorInstance is the matching destructor; the simulator holds no
// resources beyond its goroutine, which Start's ctx already tears down.
func CloseSimulatorInstance(interface{}) error { return nil }

// Start implements node.DriverHandle: register every tag in every group at
// its zero value, then periodically push a synthesized reading — a sine
// wave for FLOAT/DOUBLE tags (exercising §4.1's precision-gated change
// detection), an incrementing counter for integer-family tags, and a
// toggling value for BIT/BOOL — until ctx is canceled.
func (s *simulatorInstance) Start(ctx context.Context, c *cache.Cache, groups []*group.Group) {
	if c == nil {
		return
	}
	for _, g := range groups {
		for _, tag := range g.GetTags() {
			c.Add(g.Name(), tag.Name, zeroValue(tag))
		}
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var step int64
	for {
		select {
		case <-ticker.C:
			step++
			for _, g := range groups {
				for _, tag := range g.GetTags() {
					c.Update(g.Name(), tag.Name, time.Now().UnixMilli(), simulateValue(tag, step))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func zeroValue(tag group.TagDef) tagvalue.Value {
	switch tag.Kind {
	case tagvalue.KindFloat:
		return tagvalue.Float(0, tag.Precision)
	case tagvalue.KindDouble:
		return tagvalue.Double(0, tag.Precision)
	case tagvalue.KindBit:
		return tagvalue.Bit(false)
	case tagvalue.KindBool:
		return tagvalue.Bool(false)
	case tagvalue.KindString:
		return tagvalue.String("")
	default:
		return tagvalue.Int64(0)
	}
}

func simulateValue(tag group.TagDef, step int64) tagvalue.Value {
	switch tag.Kind {
	case tagvalue.KindFloat:
		return tagvalue.Float(float32(math.Sin(float64(step)/10)*100), tag.Precision)
	case tagvalue.KindDouble:
		return tagvalue.Double(math.Sin(float64(step)/10)*100, tag.Precision)
	case tagvalue.KindBit:
		return tagvalue.Bit(step%2 == 0)
	case tagvalue.KindBool:
		return tagvalue.Bool(step%2 == 0)
	case tagvalue.KindString:
		return tagvalue.String("sim")
	default:
		return tagvalue.Int64(step)
	}
}
