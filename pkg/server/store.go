// Package server implements the authoritative side of the synchronization
// channel: one serialized writer per document, with committed operations
// fanned out to every subscribed connection.
package server

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/arborsync/arbor/pkg/document"
	"github.com/arborsync/arbor/pkg/logger"
	"github.com/arborsync/arbor/pkg/op"
)

// DefaultQueueSize bounds each subscriber's outbound frame queue.
const DefaultQueueSize = 256

// Sink receives every committed operation, in commit order per document.
// The oplog package provides a durable implementation.
type Sink interface {
	Append(docID string, m op.Message) error
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l logger.Logger) Option { return func(s *Store) { s.logger = l } }
func WithSink(sink Sink) Option         { return func(s *Store) { s.sink = sink } }
func WithQueueSize(n int) Option        { return func(s *Store) { s.queueSize = n } }

// Store holds the canonical snapshot of every document. All operation
// application for one document is serialized under that document's lock;
// distinct documents proceed in parallel.
type Store struct {
	logger    logger.Logger
	queueSize int
	sink      Sink

	mu   sync.Mutex
	docs map[string]*doc
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		logger:    logger.New(io.Discard),
		queueSize: DefaultQueueSize,
		docs:      make(map[string]*doc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type doc struct {
	id string

	// mu serializes commits and subscriptions for this document. Enqueue
	// to subscriber queues is non-blocking, so holding mu across fan-out
	// cannot stall on a slow consumer; socket I/O happens on each
	// subscriber's own writer goroutine.
	mu   sync.Mutex
	snap *document.Snapshot
	subs map[string]*Subscription
}

func (s *Store) doc(id string) *doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		d = &doc{
			id:   id,
			snap: document.NewSnapshot(),
			subs: make(map[string]*Subscription),
		}
		s.docs[id] = d
	}
	return d
}

// Subscription is one connection's view of a document's committed stream.
// Frames are pre-encoded wire frames in commit order, starting with a full
// hydration (snapshot.start, creates, snapshot.end). If the consumer falls
// behind and the queue overflows, the subscription is dropped and Dropped
// is closed; the consumer must reconnect and re-hydrate.
type Subscription struct {
	ID string

	frames   chan []byte
	dropped  chan struct{}
	dropOnce sync.Once
}

func (s *Subscription) Frames() <-chan []byte    { return s.frames }
func (s *Subscription) Dropped() <-chan struct{} { return s.dropped }

func (s *Subscription) drop() {
	s.dropOnce.Do(func() { close(s.dropped) })
}

// Subscribe registers a new subscriber and queues its hydration atomically
// ahead of any later commit: no operation committed after this call can
// appear before the snapshot brackets in the frame stream.
func (s *Store) Subscribe(docID string) (*Subscription, error) {
	d := s.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()

	hydration := d.snap.HydrationOps()
	frames := make([][]byte, 0, len(hydration)+2)
	msgs := make([]op.Message, 0, len(hydration)+2)
	msgs = append(msgs, &op.SnapshotStart{})
	msgs = append(msgs, hydration...)
	msgs = append(msgs, &op.SnapshotEnd{})
	for _, m := range msgs {
		data, err := op.Encode(m)
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}

	sub := &Subscription{
		ID: uuid.NewString(),
		// Room for the whole hydration plus the configured live queue
		// depth, so hydration alone can never overflow.
		frames:  make(chan []byte, len(frames)+s.queueSize),
		dropped: make(chan struct{}),
	}
	for _, f := range frames {
		sub.frames <- f
	}
	d.subs[sub.ID] = sub

	s.logger.Debug("subscriber joined", "doc", docID, "subscriber", sub.ID,
		"hydration_frames", len(frames))
	return sub, nil
}

// Unsubscribe removes a subscriber after an intentional disconnect.
func (s *Store) Unsubscribe(docID, subID string) {
	d := s.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if sub, ok := d.subs[subID]; ok {
		delete(d.subs, subID)
		sub.drop()
	}
}

// Commit validates and applies msgs to the document, then fans the applied
// operations out to every subscriber in commit order. An operation that
// fails validation is dropped at this boundary (logged, skipped, and
// reported in the joined return error) without affecting the operations
// around it. Producing valid operations is the producer's responsibility.
func (s *Store) Commit(docID string, msgs ...op.Message) error {
	d := s.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	frames := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		// Encode first: an operation that cannot ride the wire must
		// never reach the canonical snapshot, or every later
		// hydration would fail on it.
		data, err := op.Encode(m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.snap.Apply(m); err != nil {
			s.logger.Warn("dropping invalid operation", "doc", docID,
				"op", m.Kind(), "error", err)
			errs = append(errs, err)
			continue
		}
		frames = append(frames, data)
		if s.sink != nil {
			if err := s.sink.Append(docID, m); err != nil {
				s.logger.Error("oplog append failed", "doc", docID, "error", err)
			}
		}
	}

	d.fanout(frames, s.logger)
	return errors.Join(errs...)
}

// DirectEdit runs a client-originated single-field edit through the same
// validator and reducer as every other producer. On success the equivalent
// entity.update is broadcast to all subscribers, the requester included; on
// failure the returned error must be reported to the requester only.
func (s *Store) DirectEdit(docID string, edit *op.DirectEdit) error {
	var p op.Props
	p.Set(edit.Field, edit.Value)
	upd := &op.EntityUpdate{Ref: edit.EntityID, Props: p}
	// Encode before applying: a value that cannot be encoded must not
	// end up in canonical props.
	data, err := op.Encode(upd)
	if err != nil {
		return err
	}

	d := s.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.snap.Apply(upd); err != nil {
		return err
	}
	if s.sink != nil {
		if err := s.sink.Append(docID, upd); err != nil {
			s.logger.Error("oplog append failed", "doc", docID, "error", err)
		}
	}
	d.fanout([][]byte{data}, s.logger)
	return nil
}

// View runs fn with the document's snapshot under the commit lock. fn must
// not retain the snapshot.
func (s *Store) View(docID string, fn func(snap *document.Snapshot)) {
	d := s.doc(docID)
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.snap)
}

// fanout enqueues frames to every subscriber without blocking. A subscriber
// whose queue is full is dropped on the spot: it will re-hydrate on
// reconnect rather than ever observe a gapped or merged stream.
func (d *doc) fanout(frames [][]byte, log logger.Logger) {
	if len(frames) == 0 {
		return
	}
	for id, sub := range d.subs {
		for _, f := range frames {
			select {
			case sub.frames <- f:
			default:
				delete(d.subs, id)
				sub.drop()
				log.Warn("dropping slow subscriber", "doc", d.id, "subscriber", id)
			}
			if isDropped(sub) {
				break
			}
		}
	}
}

func isDropped(sub *Subscription) bool {
	select {
	case <-sub.dropped:
		return true
	default:
		return false
	}
}
