package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborsync/arbor/pkg/op"
)

func buildTree(t *testing.T, msgs ...op.Message) *Snapshot {
	t.Helper()
	s, err := Replay(msgs)
	require.NoError(t, err)
	return s
}

func create(id, parent string) *op.EntityCreate {
	return &op.EntityCreate{ID: id, Parent: parent, Display: "node"}
}

func TestApplyCreate(t *testing.T) {
	t.Run("builds a basic tree", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("s1", "page"),
			create("s2", "page"),
		)
		assert.Equal(t, []string{"page"}, s.Roots())
		assert.Equal(t, []string{"s1", "s2"}, s.Children("page"))

		e, ok := s.Entity("s1")
		require.True(t, ok)
		assert.Equal(t, "page", e.Parent)
		assert.False(t, e.Removed)
	})

	t.Run("rejects unknown parent", func(t *testing.T) {
		s := NewSnapshot()
		err := s.Apply(create("s1", "nope"))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, UnknownParent, verr.Code)
		assert.Zero(t, s.Len())
	})

	t.Run("rejects duplicate id, tombstones included", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("s1", "page"),
			&op.EntityRemove{Ref: "s1"},
		)
		err := s.Apply(create("s1", "page"))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, DuplicateID, verr.Code)
	})

	t.Run("allows a tombstoned parent", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			&op.EntityRemove{Ref: "page"},
		)
		require.NoError(t, s.Apply(create("s1", "page")))
		// The child exists but is unreachable from the root walk.
		assert.Empty(t, s.Roots())
	})
}

func TestApplyUpdate(t *testing.T) {
	t.Run("merges props shallowly", func(t *testing.T) {
		s := buildTree(t, &op.EntityCreate{
			ID: "page", Parent: RootSentinel,
			Props: op.NewProps("title", op.String("Old"), "level", op.Number(1)),
		})
		require.NoError(t, s.Apply(&op.EntityUpdate{
			Ref:   "page",
			Props: op.NewProps("title", op.String("New")),
		}))

		e, _ := s.Entity("page")
		title, _ := e.Props.Get("title")
		level, _ := e.Props.Get("level")
		assert.Equal(t, "New", title.Str())
		assert.Equal(t, float64(1), level.Num())
	})

	t.Run("rejects a tombstoned target", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			&op.EntityRemove{Ref: "page"},
		)
		err := s.Apply(&op.EntityUpdate{Ref: "page"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, UnknownEntity, verr.Code)
	})
}

func TestApplyRemove(t *testing.T) {
	s := buildTree(t,
		create("page", RootSentinel),
		create("s1", "page"),
		create("s2", "page"),
	)
	require.NoError(t, s.Apply(&op.EntityRemove{Ref: "s1"}))

	assert.Equal(t, []string{"s2"}, s.Children("page"))
	e, ok := s.Entity("s1")
	require.True(t, ok, "tombstone keeps the id slot")
	assert.True(t, e.Removed)

	err := s.Apply(&op.EntityRemove{Ref: "s1"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, UnknownEntity, verr.Code)
}

func TestApplyMove(t *testing.T) {
	t.Run("reparents at a position", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("a", "page"),
			create("b", "page"),
			create("c", "page"),
		)
		require.NoError(t, s.Apply(&op.EntityMove{Ref: "c", Parent: "page", Position: 0}))
		assert.Equal(t, []string{"c", "a", "b"}, s.Children("page"))
	})

	t.Run("out of range position appends", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("a", "page"),
			create("b", "page"),
		)
		require.NoError(t, s.Apply(&op.EntityMove{Ref: "a", Parent: "page", Position: 99}))
		assert.Equal(t, []string{"b", "a"}, s.Children("page"))
	})

	t.Run("moves across parents", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("s1", "page"),
			create("s2", "page"),
			create("item", "s1"),
		)
		require.NoError(t, s.Apply(&op.EntityMove{Ref: "item", Parent: "s2", Position: 0}))
		assert.Empty(t, s.Children("s1"))
		assert.Equal(t, []string{"item"}, s.Children("s2"))
		e, _ := s.Entity("item")
		assert.Equal(t, "s2", e.Parent)
	})

	t.Run("rejects a cycle", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("s1", "page"),
			create("item", "s1"),
		)
		err := s.Apply(&op.EntityMove{Ref: "s1", Parent: "item"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, UnknownParent, verr.Code)
		// Untouched on rejection.
		assert.Equal(t, []string{"item"}, s.Children("s1"))
	})

	t.Run("rejects moving under itself", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("s1", "page"),
		)
		err := s.Apply(&op.EntityMove{Ref: "s1", Parent: "s1"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, UnknownParent, verr.Code)
	})
}

func TestApplyReorder(t *testing.T) {
	t.Run("reorders siblings", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("a", "page"),
			create("b", "page"),
		)
		require.NoError(t, s.Apply(&op.EntityReorder{Ref: "page", Children: []string{"b", "a"}}))
		assert.Equal(t, []string{"b", "a"}, s.Children("page"))
	})

	t.Run("omitted children keep their prior order after the prefix", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("a", "page"),
			create("b", "page"),
			create("c", "page"),
			create("d", "page"),
		)
		require.NoError(t, s.Apply(&op.EntityReorder{Ref: "page", Children: []string{"c"}}))
		assert.Equal(t, []string{"c", "a", "b", "d"}, s.Children("page"))
	})

	t.Run("rejects ids that are not children", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("a", "page"),
		)
		err := s.Apply(&op.EntityReorder{Ref: "page", Children: []string{"a", "ghost"}})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, InvalidReorder, verr.Code)
		assert.Equal(t, []string{"a"}, s.Children("page"))
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		s := buildTree(t,
			create("page", RootSentinel),
			create("a", "page"),
			create("b", "page"),
		)
		err := s.Apply(&op.EntityReorder{Ref: "page", Children: []string{"a", "a"}})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, InvalidReorder, verr.Code)
	})
}

func TestApplyRelSet(t *testing.T) {
	base := func(t *testing.T) *Snapshot {
		return buildTree(t,
			create("page", RootSentinel),
			create("a", "page"),
			create("b", "page"),
			create("c", "page"),
		)
	}

	t.Run("many_to_many accumulates edges", func(t *testing.T) {
		s := base(t)
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "b", Rel: "links"}))
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "c", Rel: "links"}))
		assert.Len(t, s.Edges(), 2)
	})

	t.Run("many_to_one replaces the previous edge", func(t *testing.T) {
		s := base(t)
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "b", Rel: "owner", Cardinality: op.ManyToOne}))
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "c", Rel: "owner", Cardinality: op.ManyToOne}))

		edges := s.Edges()
		require.Len(t, edges, 1)
		assert.Equal(t, "c", edges[0].To)
	})

	t.Run("conflicting cardinality is rejected", func(t *testing.T) {
		s := base(t)
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "b", Rel: "links"}))
		err := s.Apply(&op.RelSet{From: "a", To: "c", Rel: "links", Cardinality: op.ManyToOne})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, InvalidCardinality, verr.Code)
	})

	t.Run("re-setting the same edge is idempotent", func(t *testing.T) {
		s := base(t)
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "b", Rel: "links"}))
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "b", Rel: "links"}))
		assert.Len(t, s.Edges(), 1)
	})

	t.Run("unknown endpoint is rejected", func(t *testing.T) {
		s := base(t)
		err := s.Apply(&op.RelSet{From: "a", To: "ghost", Rel: "links"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, UnknownEntity, verr.Code)
	})

	t.Run("tombstoned endpoints stay addressable", func(t *testing.T) {
		s := base(t)
		require.NoError(t, s.Apply(&op.EntityRemove{Ref: "b"}))
		require.NoError(t, s.Apply(&op.RelSet{From: "a", To: "b", Rel: "links"}))
	})
}

func TestApplyRelRemove(t *testing.T) {
	s := buildTree(t,
		create("page", RootSentinel),
		create("a", "page"),
		create("b", "page"),
		&op.RelSet{From: "a", To: "b", Rel: "links"},
		&op.RelSet{From: "a", To: "b", Rel: "cites"},
	)

	require.NoError(t, s.Apply(&op.RelRemove{From: "a", To: "b", Rel: "links"}))
	edges := s.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "cites", edges[0].Rel)

	// Removing an absent triple is a no-op.
	require.NoError(t, s.Apply(&op.RelRemove{From: "a", To: "b", Rel: "links"}))
	assert.Len(t, s.Edges(), 1)
}

func TestApplyMeta(t *testing.T) {
	s := NewSnapshot()
	require.NoError(t, s.Apply(&op.MetaUpdate{Data: op.Meta{Title: "First"}}))
	require.NoError(t, s.Apply(&op.MetaUpdate{Data: op.Meta{Title: "Second", Identity: "formal"}}))
	assert.Equal(t, op.Meta{Title: "Second", Identity: "formal"}, s.Meta())
}

func TestApplyNonMutating(t *testing.T) {
	s := buildTree(t, create("page", RootSentinel))
	for _, m := range []op.Message{
		&op.Voice{Text: "working on the intro"},
		&op.StyleSet{CSS: "body{}"},
		&op.StyleEntity{Ref: "page", CSS: ".x{}"},
		&op.StreamStart{},
		&op.StreamEnd{},
		&op.BatchStart{},
		&op.BatchEnd{},
	} {
		require.NoError(t, s.Apply(m))
	}
	assert.Equal(t, 1, s.Len())
}

func TestReplayDeterminism(t *testing.T) {
	log := []op.Message{
		create("page", RootSentinel),
		create("s1", "page"),
		create("s2", "page"),
		&op.EntityUpdate{Ref: "s1", Props: op.NewProps("title", op.String("Intro"))},
		&op.EntityReorder{Ref: "page", Children: []string{"s2", "s1"}},
		&op.RelSet{From: "s1", To: "s2", Rel: "follows"},
		&op.EntityRemove{Ref: "s2"},
		&op.MetaUpdate{Data: op.Meta{Title: "Doc"}},
	}

	a, err := Replay(log)
	require.NoError(t, err)
	b, err := Replay(log)
	require.NoError(t, err)

	assert.Equal(t, a.Roots(), b.Roots())
	assert.Equal(t, a.Children("page"), b.Children("page"))
	assert.Equal(t, a.Edges(), b.Edges())
	assert.Equal(t, a.Meta(), b.Meta())
	assert.Equal(t, a.Len(), b.Len())

	ea, _ := a.Entity("s1")
	eb, _ := b.Entity("s1")
	assert.Equal(t, ea.CreationSeq, eb.CreationSeq)
	assert.Equal(t, ea.Props.Keys(), eb.Props.Keys())
}

func TestReplayStopsOnInvalidOperation(t *testing.T) {
	_, err := Replay([]op.Message{
		create("page", RootSentinel),
		create("s1", "ghost"),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, UnknownParent, verr.Code)
	assert.Contains(t, err.Error(), "operation 1")
}

func TestHydrationOps(t *testing.T) {
	s := buildTree(t,
		create("page", RootSentinel),
		create("s1", "page"),
		create("s2", "page"),
		create("item", "s1"),
		create("gone", "page"),
		&op.RelSet{From: "s1", To: "s2", Rel: "follows"},
		&op.RelSet{From: "s1", To: "gone", Rel: "cites"},
		&op.EntityRemove{Ref: "gone"},
		&op.MetaUpdate{Data: op.Meta{Title: "Doc"}},
	)

	msgs := s.HydrationOps()

	var ids []string
	var rels, metas int
	for _, m := range msgs {
		switch v := m.(type) {
		case *op.EntityCreate:
			ids = append(ids, v.ID)
		case *op.RelSet:
			rels++
		case *op.MetaUpdate:
			metas++
			assert.Equal(t, "Doc", v.Data.Title)
		}
	}
	// Parent-before-child, siblings in tree order, tombstones absent.
	assert.Equal(t, []string{"page", "s1", "item", "s2"}, ids)
	// The edge to the tombstone is not transmitted.
	assert.Equal(t, 1, rels)
	assert.Equal(t, 1, metas)

	// A replica replaying the hydration converges on the live tree.
	replica, err := Replay(msgs)
	require.NoError(t, err)
	assert.Equal(t, s.Roots(), replica.Roots())
	assert.Equal(t, s.Children("page"), replica.Children("page"))
	assert.Equal(t, s.Children("s1"), replica.Children("s1"))
}

func TestHydrationOmitsSubtreesUnderTombstones(t *testing.T) {
	// A live entity created under a tombstoned parent is unreachable from
	// the root walk, so it exists in the canonical log but is not
	// transmitted to replicas.
	s := buildTree(t,
		create("page", RootSentinel),
		&op.EntityRemove{Ref: "page"},
		create("orphan", "page"),
	)

	_, ok := s.Entity("orphan")
	require.True(t, ok)
	assert.Empty(t, s.HydrationOps())
}
