// Package op defines the operation language of the shared page document and
// its JSON wire encoding. Every frame on the synchronization channel is one
// of the Message types below, tagged on the wire by a "type" field.
package op

// Type tags a wire message.
type Type string

const (
	TypeSnapshotStart   Type = "snapshot.start"
	TypeSnapshotEnd     Type = "snapshot.end"
	TypeEntityCreate    Type = "entity.create"
	TypeEntityUpdate    Type = "entity.update"
	TypeEntityRemove    Type = "entity.remove"
	TypeEntityMove      Type = "entity.move"
	TypeEntityReorder   Type = "entity.reorder"
	TypeRelSet          Type = "rel.set"
	TypeRelRemove       Type = "rel.remove"
	TypeMetaUpdate      Type = "meta.update"
	TypeBatchStart      Type = "batch.start"
	TypeBatchEnd        Type = "batch.end"
	TypeStyleSet        Type = "style.set"
	TypeStyleEntity     Type = "style.entity"
	TypeVoice           Type = "voice"
	TypeStreamStart     Type = "stream.start"
	TypeStreamEnd       Type = "stream.end"
	TypeDirectEdit      Type = "direct_edit"
	TypeDirectEditError Type = "direct_edit.error"
)

// Cardinality constrains how many active edges may exist per (from, type).
type Cardinality string

const (
	// ManyToOne allows at most one active edge per (from, type); a new
	// rel.set for the same pair replaces the previous edge.
	ManyToOne Cardinality = "many_to_one"
	// ManyToMany is the default: edges accumulate per (from, type).
	ManyToMany Cardinality = "many_to_many"
)

// Meta is the single mutable document-level record, last write wins.
type Meta struct {
	Title    string `json:"title"`
	Identity string `json:"identity"`
}

// Message is implemented by every wire frame.
type Message interface {
	Kind() Type
}

// SnapshotStart and SnapshotEnd bracket an atomic full-state hydration.
type SnapshotStart struct{}
type SnapshotEnd struct{}

type EntityCreate struct {
	ID      string `json:"id"`
	Parent  string `json:"parent"`
	Display string `json:"display"`
	Props   Props  `json:"p"`
}

type EntityUpdate struct {
	Ref   string `json:"ref"`
	Props Props  `json:"p"`
}

type EntityRemove struct {
	Ref string `json:"ref"`
}

type EntityMove struct {
	Ref    string `json:"ref"`
	Parent string `json:"parent"`
	// Position is the target index among the new parent's children.
	// Negative or out-of-range values append at the end.
	Position int `json:"position"`
}

type EntityReorder struct {
	Ref      string   `json:"ref"`
	Children []string `json:"children"`
}

// RelSet creates or replaces a relationship edge. The edge type field is
// named "rel" on the wire because "type" tags the frame itself.
type RelSet struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	Rel         string      `json:"rel"`
	Cardinality Cardinality `json:"cardinality,omitempty"`
}

type RelRemove struct {
	From string `json:"from"`
	To   string `json:"to"`
	Rel  string `json:"rel"`
}

type MetaUpdate struct {
	Data Meta `json:"data"`
}

// BatchStart and BatchEnd bracket operations that consumers must make
// visible as one atomic unit.
type BatchStart struct{}
type BatchEnd struct{}

type StyleSet struct {
	CSS string `json:"css"`
}

type StyleEntity struct {
	Ref string `json:"ref"`
	CSS string `json:"css"`
}

// Voice is advisory producer narration, not a state mutation.
type Voice struct {
	Text string `json:"text"`
}

// StreamStart and StreamEnd mark producer activity.
type StreamStart struct{}
type StreamEnd struct{}

type DirectEdit struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Value    Value  `json:"value"`
}

type DirectEditError struct {
	Error string `json:"error"`
}

func (*SnapshotStart) Kind() Type   { return TypeSnapshotStart }
func (*SnapshotEnd) Kind() Type     { return TypeSnapshotEnd }
func (*EntityCreate) Kind() Type    { return TypeEntityCreate }
func (*EntityUpdate) Kind() Type    { return TypeEntityUpdate }
func (*EntityRemove) Kind() Type    { return TypeEntityRemove }
func (*EntityMove) Kind() Type      { return TypeEntityMove }
func (*EntityReorder) Kind() Type   { return TypeEntityReorder }
func (*RelSet) Kind() Type          { return TypeRelSet }
func (*RelRemove) Kind() Type       { return TypeRelRemove }
func (*MetaUpdate) Kind() Type      { return TypeMetaUpdate }
func (*BatchStart) Kind() Type      { return TypeBatchStart }
func (*BatchEnd) Kind() Type        { return TypeBatchEnd }
func (*StyleSet) Kind() Type        { return TypeStyleSet }
func (*StyleEntity) Kind() Type     { return TypeStyleEntity }
func (*Voice) Kind() Type           { return TypeVoice }
func (*StreamStart) Kind() Type     { return TypeStreamStart }
func (*StreamEnd) Kind() Type       { return TypeStreamEnd }
func (*DirectEdit) Kind() Type      { return TypeDirectEdit }
func (*DirectEditError) Kind() Type { return TypeDirectEditError }

// IsMutation reports whether m changes canonical document state when applied.
func IsMutation(m Message) bool {
	switch m.(type) {
	case *EntityCreate, *EntityUpdate, *EntityRemove, *EntityMove,
		*EntityReorder, *RelSet, *RelRemove, *MetaUpdate:
		return true
	default:
		return false
	}
}
