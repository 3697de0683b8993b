// Package client implements the replica side of the synchronization channel:
// a reconnecting WebSocket connection that hydrates atomically, then delivers
// live operations to the application layer in server commit order.
package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/arborsync/arbor/pkg/logger"
	"github.com/arborsync/arbor/pkg/op"
)

// Option configures a Client.
type Option func(c *Client)

func WithLogger(l logger.Logger) Option { return func(c *Client) { c.logger = l } }
func WithRetryer(r Retryer) Option      { return func(c *Client) { c.retryer = r } }
func WithDialFunc(d DialFunc) Option    { return func(c *Client) { c.dial = d } }

// Client is a read/write replica connection. It owns the connection state
// machine, the hydration buffer, and the reconnection lifecycle. A replica
// that loses its connection is always brought back to truth by a fresh full
// snapshot; the channel never attempts to fill gaps in the live stream.
type Client struct {
	url     string
	dial    DialFunc
	retryer Retryer
	logger  logger.Logger
	recv    *receiver

	stateMu sync.Mutex
	state   State

	connMu sync.Mutex
	conn   Socket

	// closeCh cancels any pending reconnection timer; loopDone reports
	// that the run loop has stopped.
	closeCh   chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	started   bool
}

// New builds a Client for the given WebSocket URL. Connect starts it.
func New(url string, cb Callbacks, opts ...Option) *Client {
	c := &Client{
		url:     url,
		retryer: NewExponentialBackoff(),
		logger:  logger.New(io.Discard),
		state:   StateDisconnected,
	}
	c.recv = &receiver{cb: cb}
	c.recv.onLive = func() {
		c.mustTransitionTo(StateLive)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.recv.logger = c.logger
	if c.dial == nil {
		c.dial = func(ctx context.Context) (Socket, error) {
			return Dial(ctx, c.url)
		}
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) transitionTo(newState State) error {
	c.stateMu.Lock()
	if err := c.state.validateTransitionTo(newState); err != nil {
		c.stateMu.Unlock()
		return err
	}
	c.state = newState
	c.stateMu.Unlock()

	// The callback runs outside stateMu so it may call back into the
	// client, State included.
	c.logger.Debug("connection state transitioned", "new_state", newState)
	if c.recv.cb.OnStateChange != nil {
		c.recv.cb.OnStateChange(newState)
	}
	return nil
}

func (c *Client) mustTransitionTo(newState State) {
	if err := c.transitionTo(newState); err != nil {
		c.logger.Error("BUG: invalid connection state transition", "error", err)
	}
}

// Connect dials the server and starts the channel. On success the connection
// is Hydrating and the first OnHydrated callback will carry the full
// snapshot. If the initial dial fails, the error is returned and the client
// keeps retrying in the background with the configured backoff; call Close
// to abandon it.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transitionTo(StateConnecting); err != nil {
		return err
	}
	c.closeCh = make(chan struct{})
	c.loopDone = make(chan struct{})
	c.started = true

	conn, err := c.dial(ctx)
	if err != nil {
		c.mustTransitionTo(StateReconnecting)
		go c.run(nil, 0, err)
		return fmt.Errorf("initial connect: %w", err)
	}

	c.setConn(conn)
	c.recv.beginHydration()
	c.mustTransitionTo(StateHydrating)
	go c.run(conn, 0, nil)
	return nil
}

// run owns the read/reconnect lifecycle. It exits only when the client is
// closed or the retryer gives up.
func (c *Client) run(conn Socket, attempt int, lastErr error) {
	defer close(c.loopDone)

	for {
		if conn != nil {
			err := c.readLoop(conn)
			if c.State() == StateClosed {
				return
			}
			c.logger.Info("connection lost, reconnecting", "error", err)
			lastErr = err
			attempt = 0
			conn = nil
			if c.transitionTo(StateReconnecting) != nil {
				return
			}
		}

		delay, ok := c.retryer.NextDelay(attempt, lastErr)
		if !ok {
			c.logger.Error("reconnection attempts exhausted", "attempts", attempt)
			c.mustTransitionTo(StateDisconnected)
			return
		}

		c.logger.Debug("waiting before reconnect", "delay", delay, "attempt", attempt)
		select {
		case <-c.closeCh:
			return
		case <-time.After(delay):
		}

		if c.transitionTo(StateConnecting) != nil {
			return
		}
		newConn, err := c.dial(context.Background())
		if err != nil {
			c.logger.Warn("reconnect failed", "error", err, "attempt", attempt)
			attempt++
			lastErr = err
			if c.transitionTo(StateReconnecting) != nil {
				return
			}
			continue
		}

		c.retryer.Reset()
		attempt = 0
		c.setConn(newConn)
		// A fresh connection always re-hydrates; the flushed snapshot
		// replaces whatever the replica held before the outage.
		c.recv.beginHydration()
		if c.transitionTo(StateHydrating) != nil {
			newConn.Close()
			return
		}
		conn = newConn
	}
}

func (c *Client) readLoop(conn Socket) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.recv.handleFrame(data)
	}
}

func (c *Client) setConn(conn Socket) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// Send submits an operation frame to the server. The server validates it
// like any other producer's operation.
func (c *Client) Send(m op.Message) error {
	data, err := op.Encode(m)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	switch c.State() {
	case StateHydrating, StateLive:
		return conn.WriteMessage(data)
	default:
		return ErrNotConnected
	}
}

// DirectEdit submits a single-field edit. On success the server broadcasts
// the equivalent entity.update to every connection including this one; on
// rejection only this client sees OnDirectEditError.
func (c *Client) DirectEdit(entityID, field string, value op.Value) error {
	return c.Send(&op.DirectEdit{EntityID: entityID, Field: field, Value: value})
}

// Close shuts the channel down for good, cancelling any pending reconnection
// timer. It is safe to call more than once.
func (c *Client) Close() error {
	c.mustTransitionTo(StateClosed)
	c.closeOnce.Do(func() {
		if c.started {
			close(c.closeCh)
		}
	})

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	if c.started {
		<-c.loopDone
	}
	return nil
}
