package document

import (
	"fmt"

	"github.com/arborsync/arbor/pkg/op"
)

// Apply runs one operation against the snapshot. On a validation failure it
// returns a *ValidationError and leaves the snapshot untouched: every check
// happens before the first write. Non-mutating frames (snapshot, batch and
// stream brackets, style, voice, direct-edit frames) apply with no effect.
func (s *Snapshot) Apply(m op.Message) error {
	switch v := m.(type) {
	case *op.EntityCreate:
		return s.applyCreate(v)
	case *op.EntityUpdate:
		return s.applyUpdate(v)
	case *op.EntityRemove:
		return s.applyRemove(v)
	case *op.EntityMove:
		return s.applyMove(v)
	case *op.EntityReorder:
		return s.applyReorder(v)
	case *op.RelSet:
		return s.applyRelSet(v)
	case *op.RelRemove:
		return s.applyRelRemove(v)
	case *op.MetaUpdate:
		s.meta = v.Data
		return nil
	default:
		return nil
	}
}

// Replay folds Apply over an empty snapshot. Identical logs produce
// identical snapshots: entity map, child order, and edge set all match.
func Replay(msgs []op.Message) (*Snapshot, error) {
	s := NewSnapshot()
	for i, m := range msgs {
		if err := s.Apply(m); err != nil {
			return nil, fmt.Errorf("replay: operation %d (%s): %w", i, m.Kind(), err)
		}
	}
	return s, nil
}

func (s *Snapshot) applyCreate(v *op.EntityCreate) error {
	if _, ok := s.entities[v.ID]; ok {
		return invalid(DuplicateID, v.ID, "entity id already exists")
	}
	if v.Parent != RootSentinel {
		if _, ok := s.entities[v.Parent]; !ok {
			return invalid(UnknownParent, v.Parent, "parent does not exist")
		}
	}
	s.entities[v.ID] = &Entity{
		ID:          v.ID,
		Parent:      v.Parent,
		Display:     v.Display,
		Props:       v.Props.Clone(),
		CreationSeq: s.nextSeq,
	}
	s.nextSeq++
	s.children[v.Parent] = append(s.children[v.Parent], v.ID)
	return nil
}

func (s *Snapshot) applyUpdate(v *op.EntityUpdate) error {
	e, err := s.live(v.Ref)
	if err != nil {
		return err
	}
	e.Props.Merge(v.Props)
	return nil
}

func (s *Snapshot) applyRemove(v *op.EntityRemove) error {
	e, err := s.live(v.Ref)
	if err != nil {
		return err
	}
	e.Removed = true
	s.removeChild(e.Parent, e.ID)
	return nil
}

func (s *Snapshot) applyMove(v *op.EntityMove) error {
	e, err := s.live(v.Ref)
	if err != nil {
		return err
	}
	if v.Parent != RootSentinel {
		if _, ok := s.entities[v.Parent]; !ok {
			return invalid(UnknownParent, v.Parent, "parent does not exist")
		}
		// Reparenting under the node itself or one of its descendants
		// would detach the subtree into a cycle.
		for p := v.Parent; p != RootSentinel; {
			if p == v.Ref {
				return invalid(UnknownParent, v.Parent, "move would create a cycle")
			}
			pe, ok := s.entities[p]
			if !ok {
				break
			}
			p = pe.Parent
		}
	}
	s.removeChild(e.Parent, e.ID)
	e.Parent = v.Parent
	s.insertChild(v.Parent, e.ID, v.Position)
	return nil
}

func (s *Snapshot) applyReorder(v *op.EntityReorder) error {
	if _, err := s.live(v.Ref); err != nil {
		return err
	}
	current := s.children[v.Ref]
	isChild := make(map[string]bool, len(current))
	for _, id := range current {
		isChild[id] = true
	}
	seen := make(map[string]bool, len(v.Children))
	for _, id := range v.Children {
		if !isChild[id] {
			return invalid(InvalidReorder, v.Ref, "%q is not a child", id)
		}
		if seen[id] {
			return invalid(InvalidReorder, v.Ref, "%q listed twice", id)
		}
		seen[id] = true
	}
	// Children omitted from the list keep their prior relative order,
	// appended after the supplied prefix.
	order := make([]string, 0, len(current))
	order = append(order, v.Children...)
	for _, id := range current {
		if !seen[id] {
			order = append(order, id)
		}
	}
	s.children[v.Ref] = order
	return nil
}

func (s *Snapshot) applyRelSet(v *op.RelSet) error {
	if err := s.endpoints(v.From, v.To); err != nil {
		return err
	}
	card := v.Cardinality
	if card == "" {
		card = op.ManyToMany
	}
	for i, e := range s.edges {
		if e.From != v.From || e.Rel != v.Rel {
			continue
		}
		if e.Cardinality != card {
			return invalid(InvalidCardinality, v.From,
				"edge type %q already has cardinality %s", v.Rel, e.Cardinality)
		}
		if card == op.ManyToOne || e.To == v.To {
			// Replace in place so edge order stays deterministic.
			s.edges[i] = Edge{From: v.From, To: v.To, Rel: v.Rel, Cardinality: card}
			return nil
		}
	}
	s.edges = append(s.edges, Edge{From: v.From, To: v.To, Rel: v.Rel, Cardinality: card})
	return nil
}

func (s *Snapshot) applyRelRemove(v *op.RelRemove) error {
	if err := s.endpoints(v.From, v.To); err != nil {
		return err
	}
	// Removing an absent triple is a no-op; only the exact triple named is
	// deleted, other edges from the same entity stay.
	for i, e := range s.edges {
		if e.From == v.From && e.To == v.To && e.Rel == v.Rel {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return nil
		}
	}
	return nil
}

// live resolves an id to a non-tombstoned entity.
func (s *Snapshot) live(id string) (*Entity, error) {
	e, ok := s.entities[id]
	if !ok || e.Removed {
		return nil, invalid(UnknownEntity, id, "entity does not exist")
	}
	return e, nil
}

// endpoints checks that both ids of a relationship are addressable.
// Tombstoned entities remain addressable for edge validation.
func (s *Snapshot) endpoints(from, to string) error {
	if _, ok := s.entities[from]; !ok {
		return invalid(UnknownEntity, from, "entity does not exist")
	}
	if _, ok := s.entities[to]; !ok {
		return invalid(UnknownEntity, to, "entity does not exist")
	}
	return nil
}
