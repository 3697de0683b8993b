package op

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Props is an ordered string-to-Value mapping. Key order is insertion order
// and survives a JSON round trip, so replaying the same operation log yields
// byte-for-byte identical prop layouts everywhere.
type Props struct {
	keys []string
	m    map[string]Value
}

// NewProps builds a Props from alternating key, value arguments.
func NewProps(pairs ...any) Props {
	var p Props
	for i := 0; i+1 < len(pairs); i += 2 {
		p.Set(pairs[i].(string), pairs[i+1].(Value))
	}
	return p
}

func (p *Props) Set(key string, v Value) {
	if p.m == nil {
		p.m = make(map[string]Value)
	}
	if _, ok := p.m[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.m[key] = v
}

func (p Props) Get(key string) (Value, bool) {
	v, ok := p.m[key]
	return v, ok
}

func (p Props) Len() int { return len(p.keys) }

// Keys returns the keys in insertion order.
func (p Props) Keys() []string {
	return append([]string(nil), p.keys...)
}

func (p Props) Clone() Props {
	var out Props
	for _, k := range p.keys {
		out.Set(k, p.m[k])
	}
	return out
}

// Merge shallow-merges other into p: existing keys keep their position and
// take the new value, new keys append in other's order.
func (p *Props) Merge(other Props) {
	for _, k := range other.keys {
		p.Set(k, other.m[k])
	}
}

func (p Props) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := p.m[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Props) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: props must be an object", ErrMalformedMessage)
	}
	*p = Props{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: non-string prop key", ErrMalformedMessage)
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		p.Set(key, v)
	}
	return nil
}
