package op

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned when an incoming frame cannot be decoded.
// Receivers discard such frames; they must never desynchronize the channel.
var ErrMalformedMessage = errors.New("malformed message")

// Encode serializes m as a flat JSON object tagged with a "type" field.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(m.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

// Decode parses a wire frame into its concrete Message. Any failure,
// including an unknown type tag or a missing required field, is reported as
// ErrMalformedMessage.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var m Message
	switch head.Type {
	case TypeSnapshotStart:
		m = &SnapshotStart{}
	case TypeSnapshotEnd:
		m = &SnapshotEnd{}
	case TypeEntityCreate:
		m = &EntityCreate{}
	case TypeEntityUpdate:
		m = &EntityUpdate{}
	case TypeEntityRemove:
		m = &EntityRemove{}
	case TypeEntityMove:
		m = &EntityMove{}
	case TypeEntityReorder:
		m = &EntityReorder{}
	case TypeRelSet:
		m = &RelSet{}
	case TypeRelRemove:
		m = &RelRemove{}
	case TypeMetaUpdate:
		m = &MetaUpdate{}
	case TypeBatchStart:
		m = &BatchStart{}
	case TypeBatchEnd:
		m = &BatchEnd{}
	case TypeStyleSet:
		m = &StyleSet{}
	case TypeStyleEntity:
		m = &StyleEntity{}
	case TypeVoice:
		m = &Voice{}
	case TypeStreamStart:
		m = &StreamStart{}
	case TypeStreamEnd:
		m = &StreamEnd{}
	case TypeDirectEdit:
		m = &DirectEdit{}
	case TypeDirectEditError:
		m = &DirectEditError{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, head.Type)
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// validate rejects frames missing the fields their type requires. Shape
// checks live here at the boundary; referential checks live in the reducer.
func validate(m Message) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s missing %s", ErrMalformedMessage, m.Kind(), field)
	}
	switch v := m.(type) {
	case *EntityCreate:
		if v.ID == "" {
			return missing("id")
		}
		if v.Parent == "" {
			return missing("parent")
		}
	case *EntityUpdate:
		if v.Ref == "" {
			return missing("ref")
		}
	case *EntityRemove:
		if v.Ref == "" {
			return missing("ref")
		}
	case *EntityMove:
		if v.Ref == "" {
			return missing("ref")
		}
		if v.Parent == "" {
			return missing("parent")
		}
	case *EntityReorder:
		if v.Ref == "" {
			return missing("ref")
		}
	case *RelSet:
		if v.From == "" || v.To == "" || v.Rel == "" {
			return missing("from/to/rel")
		}
	case *RelRemove:
		if v.From == "" || v.To == "" || v.Rel == "" {
			return missing("from/to/rel")
		}
	case *DirectEdit:
		if v.EntityID == "" {
			return missing("entity_id")
		}
		if v.Field == "" {
			return missing("field")
		}
		if v.Value.Kind() == KindInvalid {
			return missing("value")
		}
	}
	return nil
}
