// Package group implements Group and TagDef (SPEC_FULL.md §4.2): a named
// collection of tag definitions sharing a poll interval. Tag definitions
// are opaque to Group — they are forwarded to a plugin-supplied validator
// by Template before insertion (see internal/template) — Group itself only
// enforces name uniqueness and ordering.
package group

import (
	"strings"

	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/tagvalue"
)

// IntervalLimit is the implementation-defined minimum poll interval in
// milliseconds a Group may carry when materialized on a live driver
// (SPEC_FULL.md §3, §4.7 instantiate_template). Grounded on Neuron's
// NEU_GROUP_INTERVAL_LIMIT.
const IntervalLimit = 100

// TagDef is a single tag's definition. It is opaque data as far as Group is
// concerned; validation is the plugin's job.
type TagDef struct {
	Name      string
	Kind      tagvalue.Kind
	Precision uint8
	// Address is the protocol-specific device address (register, node-id,
	// ...); its syntax is plugin-defined and unconstrained here.
	Address string
}

// Group is a named collection of TagDefs sharing a poll interval, in
// insertion order.
type Group struct {
	name       string
	intervalMS uint32
	order      []string
	tags       map[string]TagDef
}

// New constructs an empty Group with the given poll interval.
func New(name string, intervalMS uint32) *Group {
	return &Group{name: name, intervalMS: intervalMS, tags: make(map[string]TagDef)}
}

func (g *Group) Name() string { return g.name }

func (g *Group) GetInterval() uint32 { return g.intervalMS }

func (g *Group) SetInterval(ms uint32) { g.intervalMS = ms }

// AddTag inserts tag, rejecting duplicate names.
func (g *Group) AddTag(tag TagDef) *gwerrors.Error {
	if _, exists := g.tags[tag.Name]; exists {
		return gwerrors.New(gwerrors.TagExist, "tag "+tag.Name+" already exists in group "+g.name)
	}
	g.tags[tag.Name] = tag
	g.order = append(g.order, tag.Name)
	return nil
}

// UpdateTag replaces an existing tag's definition, rejecting unknown names.
func (g *Group) UpdateTag(tag TagDef) *gwerrors.Error {
	if _, exists := g.tags[tag.Name]; !exists {
		return gwerrors.ErrTagNotFound(tag.Name)
	}
	g.tags[tag.Name] = tag
	return nil
}

// DelTag removes tag by name, no-op if absent.
func (g *Group) DelTag(name string) {
	if _, exists := g.tags[name]; !exists {
		return
	}
	delete(g.tags, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// GetTags returns every tag definition in insertion order.
func (g *Group) GetTags() []TagDef {
	out := make([]TagDef, 0, len(g.order))
	for _, n := range g.order {
		out = append(out, g.tags[n])
	}
	return out
}

// QueryTag returns tags whose name contains substr, in insertion order.
func (g *Group) QueryTag(substr string) []TagDef {
	var out []TagDef
	for _, n := range g.order {
		if strings.Contains(n, substr) {
			out = append(out, g.tags[n])
		}
	}
	return out
}

func (g *Group) TagCount() int { return len(g.order) }
