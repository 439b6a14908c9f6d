// Package client implements a NATS client: publish, subscribe,
// non-blocking message drains and blocking request/response over one
// TCP connection. A single background reader owns every inbound byte,
// callers only ever write to the socket or read already routed
// messages, so frame decoding stays single-threaded.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/3kwa/goingnats/protocol"
	"github.com/3kwa/goingnats/subject"
	"github.com/3kwa/goingnats/transport"
)

// State of the connection. The client owns it exclusively.
type State int32

const (
	Disconnected State = iota
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 4222
	DefaultHandshakeTimeout = 2 * time.Second
)

type Options struct {
	// Name identifies this client to the server in CONNECT
	Name string

	// Host of the server, DefaultHost when empty
	Host string

	// Port of the server, DefaultPort when 0
	Port int

	// DialTimeout bounds the TCP connect
	DialTimeout time.Duration

	// HandshakeTimeout bounds the INFO/CONNECT exchange,
	// DefaultHandshakeTimeout when 0
	HandshakeTimeout time.Duration

	Log *zap.Logger
}

// ServerInfo is what the client retains from the INFO handshake.
type ServerInfo struct {
	ID         string
	MaxPayload int64
}

// Client is the facade over one connection: a transport, the background
// reader, the subscription registry and the inbox correlator. Safe for
// concurrent use. Close releases everything, callers are expected to
// `defer c.Close()` right after Connect.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn       *transport.Conn
	parser     *protocol.Parser
	registry   *registry
	correlator *correlator

	info ServerInfo

	sid   int64
	state int32

	readerWaiter sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error

	log *zap.Logger
}

// Connect dials the server, performs the INFO/CONNECT handshake and
// starts the background reader. The context bounds the dial and
// handshake only, the client's lifetime ends with Close.
func Connect(ctx context.Context, options Options) (*Client, error) {
	if options.Host == "" {
		options.Host = DefaultHost
	}
	if options.Port == 0 {
		options.Port = DefaultPort
	}
	if options.HandshakeTimeout == 0 {
		options.HandshakeTimeout = DefaultHandshakeTimeout
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := transport.Dial(ctx, transport.Options{
		Host:        options.Host,
		Port:        options.Port,
		DialTimeout: options.DialTimeout,
		Log:         log.Named("transport"),
	})
	if err != nil {
		return nil, err
	}

	// The handshake parser is handed to the reader loop, frames the
	// server sent right behind INFO are already buffered in it.
	parser := &protocol.Parser{}

	info, err := handshake(conn, parser, options)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	clientCtx, cancel := context.WithCancel(context.Background())

	c := &Client{
		ctx:        clientCtx,
		cancel:     cancel,
		conn:       conn,
		parser:     parser,
		registry:   newRegistry(),
		correlator: newCorrelator(),
		info:       info,
		state:      int32(Connected),
		log:        log,
	}

	c.readerWaiter.Add(1)
	go func() {
		defer c.readerWaiter.Done()
		c.readLoop()
	}()

	log.Debug("Connected",
		zap.String("server", info.ID),
		zap.Int64("maxPayload", info.MaxPayload))

	return c, nil
}

// handshake reads INFO and answers CONNECT before any other traffic.
func handshake(conn *transport.Conn, parser *protocol.Parser, options Options) (ServerInfo, error) {
	if err := conn.SetReadDeadline(time.Now().Add(options.HandshakeTimeout)); err != nil {
		return ServerInfo{}, err
	}

	var info *protocol.Info

	for info == nil {
		chunk, err := conn.ReceiveChunk()
		if err != nil {
			return ServerInfo{}, fmt.Errorf("handshake failed: %w", err)
		}

		parser.Feed(chunk)

		frame, err := parser.Next()
		if errors.Is(err, protocol.ErrNeedMore) {
			continue
		}
		if err != nil {
			return ServerInfo{}, fmt.Errorf("handshake failed: %w", err)
		}

		var ok bool
		if info, ok = frame.(*protocol.Info); !ok {
			return ServerInfo{}, fmt.Errorf("handshake failed: expected INFO, got %s", frame.FrameVerb())
		}
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return ServerInfo{}, err
	}

	payload, err := sjson.SetBytes([]byte("{}"), "name", options.Name)
	if err == nil {
		payload, err = sjson.SetBytes(payload, "verbose", false)
	}
	if err != nil {
		return ServerInfo{}, err
	}

	if err := protocol.WriteConnect(conn, payload); err != nil {
		return ServerInfo{}, fmt.Errorf("handshake failed: %w", err)
	}

	return ServerInfo{
		ID:         gjson.GetBytes(info.Payload, "server_id").String(),
		MaxPayload: gjson.GetBytes(info.Payload, "max_payload").Int(),
	}, nil
}

// Server reports what the server advertised in INFO.
func (c *Client) Server() ServerInfo {
	return c.info
}

// State reports the connection state.
func (c *Client) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Publish sends a payload on a subject, fire and forget. Wildcards are
// not legal in publish subjects.
func (c *Client) Publish(subj string, payload []byte) error {
	if c.State() != Connected {
		return ErrConnectionClosed
	}

	if _, err := subject.ValidLiteral(subj); err != nil {
		return err
	}

	if c.info.MaxPayload > 0 && int64(len(payload)) > c.info.MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds the server limit of %d", len(payload), c.info.MaxPayload)
	}

	return protocol.WritePub(c.conn, subj, "", payload)
}

// Subscribe registers interest in a subject pattern. Messages arriving
// on it surface through Get.
func (c *Client) Subscribe(pattern string) error {
	if c.State() != Connected {
		return ErrConnectionClosed
	}

	sid := atomic.AddInt64(&c.sid, 1)

	if err := c.registry.add(pattern, sid); err != nil {
		return err
	}

	if err := protocol.WriteSub(c.conn, pattern, sid); err != nil {
		c.registry.remove(sid)
		return err
	}

	return nil
}

// Unsubscribe removes every subscription on the exact pattern,
// releasing whatever was still queued on them.
func (c *Client) Unsubscribe(pattern string) error {
	if c.State() != Connected {
		return ErrConnectionClosed
	}

	var err error
	for _, sid := range c.registry.removeByPattern(pattern) {
		err = multierr.Append(err, protocol.WriteUnsub(c.conn, sid, 0))
	}

	return err
}

// Get drains every message queued across this client's subscriptions.
// With a zero wait it returns immediately, possibly empty. With a
// positive wait it sleeps, woken by deliveries rather than polling,
// until at least one message is queued or the wait elapses, then
// returns whatever is there. A dead connection yields an empty result,
// never an error.
func (c *Client) Get(wait time.Duration) []Message {
	msgs := c.registry.drain()
	if len(msgs) > 0 || wait <= 0 {
		return msgs
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-c.registry.wake:
			if msgs := c.registry.drain(); len(msgs) > 0 {
				return msgs
			}

		case <-timer.C:
			return c.registry.drain()

		case <-c.ctx.Done():
			return c.registry.drain()
		}
	}
}

// Request publishes a payload with a fresh reply inbox and blocks until
// the response arrives or the timeout elapses. This is the one
// deliberately blocking call in the API. On timeout the local wait
// stops and a late reply, should one arrive, is discarded.
func (c *Client) Request(subj string, payload []byte, timeout time.Duration) (Message, error) {
	if c.State() != Connected {
		return Message{}, ErrConnectionClosed
	}

	if _, err := subject.ValidLiteral(subj); err != nil {
		return Message{}, err
	}

	inbox := newInbox()
	waiter := c.correlator.register(inbox)

	sid := atomic.AddInt64(&c.sid, 1)
	started := time.Now()

	// The server drops the inbox subscription itself after one
	// delivery, so a reply received after our local timeout dies on
	// the server side too.
	err := protocol.WriteSub(c.conn, inbox, sid)
	if err == nil {
		err = protocol.WriteUnsub(c.conn, sid, 1)
	}
	if err == nil {
		err = protocol.WritePub(c.conn, subj, inbox, payload)
	}
	if err != nil {
		c.correlator.discard(inbox)
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m, ok := <-waiter:
		if !ok {
			return Message{}, ErrConnectionClosed
		}
		return m, nil

	case <-timer.C:
		c.correlator.discard(inbox)
		return Message{}, &TimeoutError{Subject: subj, Elapsed: time.Since(started)}

	case <-c.ctx.Done():
		c.correlator.discard(inbox)
		return Message{}, ErrConnectionClosed
	}
}

// Close unsubscribes everything, stops the background reader, releases
// the socket and wakes every blocked waiter. Idempotent, every exit
// path should run it, typically via defer.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.state, int32(Closing))

		var err error
		for _, sid := range c.registry.sids() {
			// Best effort, the connection may already be gone.
			err = multierr.Append(err, protocol.WriteUnsub(c.conn, sid, 0))
		}

		c.cancel()
		err = multierr.Append(err, c.conn.Close())

		c.readerWaiter.Wait()

		c.registry.terminate()
		c.correlator.failAll()

		atomic.StoreInt32(&c.state, int32(Closed))
		c.log.Debug("Closed")

		c.closeErr = err
	})

	return c.closeErr
}

// fail is the reader loop's half of Close: the connection is already
// dead, mark it so and wake everyone exactly once.
func (c *Client) fail() {
	if State(atomic.LoadInt32(&c.state)) == Connected {
		atomic.StoreInt32(&c.state, int32(Closed))
	}

	c.registry.terminate()
	c.correlator.failAll()
}
