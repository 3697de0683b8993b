package op

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the closed set of prop value shapes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Value is a closed tagged union over the prop value shapes the document
// model admits: string, number, bool, timestamp, or a list of scalars.
// Timestamps ride the wire as RFC 3339 strings; the coercion happens here,
// at the codec boundary, never inside the reducer.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	list []Value
}

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// List builds a list value. Elements must themselves be scalars; a nested
// list is rejected at encode time.
func List(elems ...Value) Value {
	return Value{kind: KindList, list: elems}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Str() string     { return v.str }
func (v Value) Num() float64    { return v.num }
func (v Value) Bool() bool      { return v.b }
func (v Value) Time() time.Time { return v.t }
func (v Value) List() []Value   { return append([]Value(nil), v.list...) }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindList:
		out := make([]json.RawMessage, 0, len(v.list))
		for _, e := range v.list {
			if e.kind == KindList {
				return nil, fmt.Errorf("%w: nested list in prop value", ErrMalformedMessage)
			}
			raw, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}
		return json.Marshal(out)
	default:
		return nil, fmt.Errorf("%w: invalid prop value", ErrMalformedMessage)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	val, err := coerce(raw, true)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func coerce(raw any, allowList bool) (Value, error) {
	switch x := raw.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			return Time(t), nil
		}
		return String(x), nil
	case float64:
		return Number(x), nil
	case bool:
		return Bool(x), nil
	case []any:
		if !allowList {
			return Value{}, fmt.Errorf("%w: nested list in prop value", ErrMalformedMessage)
		}
		elems := make([]Value, 0, len(x))
		for _, e := range x {
			ev, err := coerce(e, false)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, ev)
		}
		return List(elems...), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported prop value %T", ErrMalformedMessage, raw)
	}
}
