package client

import (
	"github.com/arborsync/arbor/pkg/logger"
	"github.com/arborsync/arbor/pkg/op"
)

// Callbacks is how the channel hands frames to the application layer.
// Nil callbacks are skipped.
type Callbacks struct {
	// OnHydrated delivers a full snapshot as one atomic, ordered unit.
	// The replica must replace any state it previously held; hydration
	// never merges.
	OnHydrated func(msgs []op.Message)

	// OnMessage delivers one live operation, in server commit order.
	OnMessage func(msg op.Message)

	// OnBatch delivers a batch-bracketed run of operations as one atomic
	// unit.
	OnBatch func(msgs []op.Message)

	// OnDirectEditError reports a rejected direct edit. Recoverable: the
	// caller should revert any optimistic local change.
	OnDirectEditError func(errMsg string)

	// OnStateChange observes connection state transitions.
	OnStateChange func(s State)
}

// receiver turns the raw inbound frame stream into the atomic units the
// application layer is allowed to observe. While hydrating, every frame
// except direct_edit.error is buffered and released as a single flush on
// snapshot.end, so no partial tree is ever visible. In the live stream, the
// same buffering applies between batch brackets.
type receiver struct {
	cb     Callbacks
	logger logger.Logger

	// onLive is invoked when hydration completes.
	onLive func()

	hydrating bool
	batching  bool
	buf       []op.Message
}

func (r *receiver) beginHydration() {
	r.hydrating = true
	r.batching = false
	r.buf = nil
}

func (r *receiver) handleFrame(data []byte) {
	m, err := op.Decode(data)
	if err != nil {
		// Malformed frames are discarded; they must never
		// desynchronize the channel.
		r.logger.Debug("discarding malformed frame", "error", err)
		return
	}
	r.handle(m)
}

func (r *receiver) handle(m op.Message) {
	switch v := m.(type) {
	case *op.SnapshotStart:
		r.hydrating = true
		r.batching = false
		r.buf = nil
	case *op.SnapshotEnd:
		if !r.hydrating {
			r.logger.Debug("discarding stray snapshot.end")
			return
		}
		buf := r.buf
		r.buf = nil
		r.hydrating = false
		if r.cb.OnHydrated != nil {
			r.cb.OnHydrated(buf)
		}
		if r.onLive != nil {
			r.onLive()
		}
	case *op.DirectEditError:
		if r.cb.OnDirectEditError != nil {
			r.cb.OnDirectEditError(v.Error)
		}
	case *op.BatchStart:
		if r.hydrating {
			return
		}
		r.batching = true
		r.buf = nil
	case *op.BatchEnd:
		if r.hydrating {
			return
		}
		if !r.batching {
			r.logger.Debug("discarding stray batch.end")
			return
		}
		buf := r.buf
		r.buf = nil
		r.batching = false
		if r.cb.OnBatch != nil {
			r.cb.OnBatch(buf)
		}
	default:
		if r.hydrating || r.batching {
			r.buf = append(r.buf, m)
			return
		}
		if r.cb.OnMessage != nil {
			r.cb.OnMessage(m)
		}
	}
}
