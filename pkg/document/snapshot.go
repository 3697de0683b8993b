// Package document holds the canonical page tree and the pure reducer that
// mutates it. Apply is synchronous, does no I/O, and uses neither randomness
// nor the wall clock, so replaying the same operation log produces an
// identical snapshot on any machine.
package document

import (
	"github.com/arborsync/arbor/pkg/op"
)

// RootSentinel is the parent id of root entities.
const RootSentinel = "root"

// Entity is one node of the page tree. Ids are permanent: a removed entity
// keeps its slot as a tombstone and its id is never reassigned.
type Entity struct {
	ID          string
	Parent      string
	Display     string
	Props       op.Props
	CreationSeq uint64
	Removed     bool
}

// Edge is a relationship between two entities, stored independently of the
// parent/child tree.
type Edge struct {
	From        string
	To          string
	Rel         string
	Cardinality op.Cardinality
}

// Snapshot is the materialized document state: the entity map, the ordered
// parent-to-children index (live entities only, insertion order), the edge
// set, and the meta record.
type Snapshot struct {
	entities map[string]*Entity
	children map[string][]string
	edges    []Edge
	meta     op.Meta
	nextSeq  uint64
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		entities: make(map[string]*Entity),
		children: make(map[string][]string),
	}
}

// Entity returns a copy of the entity with the given id, tombstoned or not.
func (s *Snapshot) Entity(id string) (Entity, bool) {
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	out := *e
	out.Props = e.Props.Clone()
	return out, true
}

// Len returns the number of entities, tombstones included.
func (s *Snapshot) Len() int { return len(s.entities) }

// Children returns the ordered live children of the given entity id.
func (s *Snapshot) Children(id string) []string {
	return append([]string(nil), s.children[id]...)
}

// Roots returns the ordered live root entity ids.
func (s *Snapshot) Roots() []string { return s.Children(RootSentinel) }

// Edges returns a copy of the relationship edge set, in creation order.
func (s *Snapshot) Edges() []Edge {
	return append([]Edge(nil), s.edges...)
}

func (s *Snapshot) Meta() op.Meta { return s.meta }

// HydrationOps flattens the live state into the operation sequence a server
// transmits between snapshot brackets: entity creates in parent-before-child
// order with siblings in tree order, then relationship edges, then meta.
// Tombstones are not transmitted; hydration replaces replica state wholesale,
// so id stability of removed entities is a canonical-log concern, not a
// replica concern.
func (s *Snapshot) HydrationOps() []op.Message {
	var out []op.Message
	var walk func(parent string)
	walk = func(parent string) {
		for _, id := range s.children[parent] {
			e := s.entities[id]
			out = append(out, &op.EntityCreate{
				ID:      e.ID,
				Parent:  e.Parent,
				Display: e.Display,
				Props:   e.Props.Clone(),
			})
			walk(id)
		}
	}
	walk(RootSentinel)
	for _, edge := range s.edges {
		if s.isRemoved(edge.From) || s.isRemoved(edge.To) {
			continue
		}
		out = append(out, &op.RelSet{
			From:        edge.From,
			To:          edge.To,
			Rel:         edge.Rel,
			Cardinality: edge.Cardinality,
		})
	}
	if s.meta != (op.Meta{}) {
		out = append(out, &op.MetaUpdate{Data: s.meta})
	}
	return out
}

func (s *Snapshot) isRemoved(id string) bool {
	e, ok := s.entities[id]
	return !ok || e.Removed
}

func (s *Snapshot) removeChild(parent, id string) {
	kids := s.children[parent]
	for i, c := range kids {
		if c == id {
			s.children[parent] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

func (s *Snapshot) insertChild(parent, id string, position int) {
	kids := s.children[parent]
	if position < 0 || position > len(kids) {
		position = len(kids)
	}
	kids = append(kids, "")
	copy(kids[position+1:], kids[position:])
	kids[position] = id
	s.children[parent] = kids
}
