// Package oplog persists the committed operation stream as length-prefixed
// CBOR records. It is the integration point between the store and durable
// storage: a snapshot can always be reconstructed from a stored log via
// document.Replay, independent of how the bytes are kept.
package oplog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/arborsync/arbor/internal/codec"
	"github.com/arborsync/arbor/pkg/document"
	"github.com/arborsync/arbor/pkg/op"
)

// maxRecordSize guards Reader against corrupt length prefixes.
const maxRecordSize = 16 << 20

// Record is one committed operation. The operation itself is stored in its
// JSON wire encoding so a log survives additions to the record envelope.
type Record struct {
	Seq   uint64 `cbor:"seq"`
	Doc   string `cbor:"doc"`
	Frame []byte `cbor:"frame"`
}

// Message decodes the record's operation.
func (r *Record) Message() (op.Message, error) {
	return op.Decode(r.Frame)
}

// Writer appends records to w. It implements server.Sink.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	seq uint64
	m   codec.Marshaler
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, m: codec.CBOR{}}
}

// Append writes one committed operation: a big-endian uint32 length prefix
// followed by the CBOR-encoded record.
func (lw *Writer) Append(docID string, m op.Message) error {
	frame, err := op.Encode(m)
	if err != nil {
		return fmt.Errorf("oplog: encoding operation: %w", err)
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	rec := Record{Seq: lw.seq, Doc: docID, Frame: frame}
	data, err := lw.m.Marshal(rec)
	if err != nil {
		return fmt.Errorf("oplog: encoding record: %w", err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := lw.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("oplog: writing length prefix: %w", err)
	}
	if _, err := lw.w.Write(data); err != nil {
		return fmt.Errorf("oplog: writing record: %w", err)
	}
	lw.seq++
	return nil
}

// Reader iterates the records of a stored log.
type Reader struct {
	r  *bufio.Reader
	um codec.Unmarshaler
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), um: codec.CBOR{}}
}

// Next returns the next record, or io.EOF at a clean end of log.
func (lr *Reader) Next() (*Record, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(lr.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("oplog: reading length prefix: %w", err)
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxRecordSize {
		return nil, fmt.Errorf("oplog: record size %d exceeds limit", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(lr.r, data); err != nil {
		return nil, fmt.Errorf("oplog: reading record: %w", err)
	}
	var rec Record
	if err := lr.um.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("oplog: decoding record: %w", err)
	}
	return &rec, nil
}

// Restore replays the stored log for one document into a fresh snapshot.
func Restore(r io.Reader, docID string) (*document.Snapshot, error) {
	lr := NewReader(r)
	var msgs []op.Message
	for {
		rec, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Doc != docID {
			continue
		}
		m, err := rec.Message()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return document.Replay(msgs)
}
