// Package codec abstracts the byte encodings used by arbor: JSON on the
// wire, CBOR in the operation log.
package codec

import (
	"encoding/json"
	"io"

	"github.com/fxamacker/cbor/v2"
)

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// JSON implements Marshaler and Unmarshaler using encoding/json.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)        { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, dst any) error { return json.Unmarshal(data, dst) }
func (JSON) NewEncoder(w io.Writer) Encoder       { return json.NewEncoder(w) }
func (JSON) NewDecoder(r io.Reader) Decoder       { return json.NewDecoder(r) }

// CBOR implements Marshaler and Unmarshaler using fxamacker/cbor.
type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error)        { return cbor.Marshal(v) }
func (CBOR) Unmarshal(data []byte, dst any) error { return cbor.Unmarshal(data, dst) }
func (CBOR) NewEncoder(w io.Writer) Encoder       { return cbor.NewEncoder(w) }
func (CBOR) NewDecoder(r io.Reader) Decoder       { return cbor.NewDecoder(r) }
