// Package broker implements a minimal in-process NATS-style server. It
// exists so the demo commands and the end-to-end tests can run without
// an external server. It speaks the same verb subset as the client:
// INFO on accept, CONNECT, PING/PONG, SUB, UNSUB (with optional max),
// PUB routed as MSG to every matching subscription.
package broker

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/3kwa/goingnats/protocol"
	"github.com/3kwa/goingnats/subject"
)

const (
	// MaxPayload is advertised to every client in INFO.
	MaxPayload = 1048576

	chunkSize = 4096
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, 0 picks a free one
	Port int

	// ServerID is advertised in INFO
	ServerID string

	Log *zap.Logger
}

// Stats is a snapshot of the broker counters.
type Stats struct {
	Connections int64 `json:"connections"`
	Messages    int64 `json:"messages"`
	Delivered   int64 `json:"delivered"`
}

type Broker struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr     string
	serverID string
	listener net.Listener

	mu          sync.Mutex
	activeConns map[*conn]struct{}

	connections int64
	messages    int64
	delivered   int64

	log *zap.Logger
}

func New(options Options) *Broker {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	serverID := options.ServerID
	if serverID == "" {
		serverID = "goingnats"
	}

	return &Broker{
		addr:        net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		serverID:    serverID,
		activeConns: make(map[*conn]struct{}),
		log:         log,
	}
}

// Start binds the listener and begins accepting connections in the
// background. Stop with Close.
func (b *Broker) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	b.cancel = cancel

	listener, err := reuseport.Listen("tcp", b.addr)
	if err != nil {
		cancel()
		return err
	}

	b.listener = listener

	b.log.Info("Broker listening", zap.String("addr", listener.Addr().String()))

	b.stopWaiter.Add(1)
	go func() {
		defer b.stopWaiter.Done()
		b.acceptLoop(ctx)
	}()

	return nil
}

// Addr reports the bound address, useful when Port was 0.
func (b *Broker) Addr() net.Addr {
	return b.listener.Addr()
}

// Stats returns a snapshot of the counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Connections: atomic.LoadInt64(&b.connections),
		Messages:    atomic.LoadInt64(&b.messages),
		Delivered:   atomic.LoadInt64(&b.delivered),
	}
}

// Close stops accepting, drops every connection and waits for the
// per-connection loops to drain.
func (b *Broker) Close() error {
	if b.cancel == nil {
		return nil
	}

	b.log.Info("Stopping broker")
	b.cancel()

	err := b.listener.Close()

	b.mu.Lock()
	for c := range b.activeConns {
		err = multierr.Append(err, c.close())
		delete(b.activeConns, c)
	}
	b.mu.Unlock()

	b.stopWaiter.Wait()
	b.log.Info("Broker stopped")

	return err
}

func (b *Broker) acceptLoop(ctx context.Context) {
	for {
		netConn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}

			netOpError := new(net.OpError)
			if errors.As(err, &netOpError) {
				// The listener was closed under us, that's fine.
				return
			}

			b.log.Error("Failed to accept", zap.Error(err))
			return
		}

		atomic.AddInt64(&b.connections, 1)

		c := &conn{
			broker: b,
			conn:   netConn,
			log:    b.log.Named("conn").With(zap.String("remote", netConn.RemoteAddr().String())),
		}

		b.addConn(c)

		b.stopWaiter.Add(1)
		go func() {
			defer b.stopWaiter.Done()
			defer b.removeConn(c)
			c.serve(ctx)
		}()
	}
}

func (b *Broker) addConn(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.activeConns[c] = struct{}{}
}

func (b *Broker) removeConn(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.activeConns, c)
}

// route delivers a published payload to every matching subscription on
// every connection, in subscription insertion order, honouring
// auto-unsubscribe counts.
func (b *Broker) route(pub *protocol.Pub) {
	atomic.AddInt64(&b.messages, 1)

	b.mu.Lock()
	conns := make([]*conn, 0, len(b.activeConns))
	for c := range b.activeConns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		delivered := c.deliver(pub)
		atomic.AddInt64(&b.delivered, delivered)
	}
}

// subscription is one SUB on one connection. remaining below zero means
// no auto-unsubscribe was requested.
type subscription struct {
	sid       int64
	pattern   string
	remaining int64
}

type conn struct {
	broker *Broker
	conn   net.Conn

	writeMu sync.Mutex

	subMu sync.Mutex
	subs  []*subscription

	closeOnce sync.Once

	log *zap.Logger
}

func (c *conn) close() error {
	var err error

	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})

	return err
}

// Write serialises frame writes from the owning read loop and from
// other connections routing messages here.
func (c *conn) Write(data []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.Write(data)
}

func (c *conn) serve(ctx context.Context) {
	defer c.close()

	log := c.log

	info, err := c.broker.infoPayload()
	if err == nil {
		err = protocol.WriteInfo(c, info)
	}
	if err != nil {
		log.Warn("Failed to send INFO", zap.Error(err))
		return
	}

	parser := &protocol.Parser{}
	chunk := make([]byte, chunkSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			parser.Feed(chunk[:n])
		}

		for {
			frame, perr := parser.Next()
			if errors.Is(perr, protocol.ErrNeedMore) {
				break
			}

			if perr != nil {
				log.Warn("Malformed frame from client", zap.Error(perr))
				_ = protocol.WriteErr(c, "'Unknown Protocol Operation'")
				return
			}

			c.dispatch(frame)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("Client connection lost", zap.Error(err))
			}
			return
		}
	}
}

func (c *conn) dispatch(frame protocol.Frame) {
	switch f := frame.(type) {
	case *protocol.Connect:
		name := gjson.GetBytes(f.Payload, "name").String()
		c.log.Info("Client connected", zap.String("name", name))

	case *protocol.Ping:
		if err := protocol.WritePong(c); err != nil {
			c.log.Warn("Failed to respond to PING", zap.Error(err))
		}

	case *protocol.Pong:
		// keepalive answer, nothing to do

	case *protocol.Sub:
		c.subMu.Lock()
		c.subs = append(c.subs, &subscription{sid: f.SID, pattern: f.Subject, remaining: -1})
		c.subMu.Unlock()

	case *protocol.Unsub:
		c.unsubscribe(f.SID, f.Max)

	case *protocol.Pub:
		c.broker.route(f)

	default:
		c.log.Warn("Unexpected frame from client", zap.String("verb", string(frame.FrameVerb())))
	}
}

func (c *conn) unsubscribe(sid int64, max int64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for i, sub := range c.subs {
		if sub.sid != sid {
			continue
		}

		if max > 0 {
			sub.remaining = max
			return
		}

		c.subs = append(c.subs[:i], c.subs[i+1:]...)
		return
	}
}

// deliver writes a MSG for every subscription on this connection that
// matches the published subject. It returns the number delivered.
func (c *conn) deliver(pub *protocol.Pub) int64 {
	c.subMu.Lock()

	matched := make([]*subscription, 0, 2)
	kept := c.subs[:0]

	for _, sub := range c.subs {
		if !subject.Match(pub.Subject, sub.pattern) {
			kept = append(kept, sub)
			continue
		}

		matched = append(matched, sub)

		if sub.remaining > 0 {
			sub.remaining--
		}
		if sub.remaining != 0 {
			kept = append(kept, sub)
		}
	}

	c.subs = kept
	c.subMu.Unlock()

	var delivered int64

	for _, sub := range matched {
		if err := protocol.WriteMsg(c, pub.Subject, sub.sid, pub.Reply, pub.Payload); err != nil {
			c.log.Debug("Failed to deliver", zap.Int64("sid", sub.sid), zap.Error(err))
			continue
		}
		delivered++
	}

	return delivered
}

func (b *Broker) infoPayload() ([]byte, error) {
	info, err := sjson.SetBytes([]byte("{}"), "server_id", b.serverID)
	if err != nil {
		return nil, err
	}

	return sjson.SetBytes(info, "max_payload", MaxPayload)
}
