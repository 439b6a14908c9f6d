// Package transport owns the client side of the socket: dialing,
// serialised frame writes and blocking chunk reads. It carries no
// protocol knowledge, reassembly of the byte stream into frames is the
// reader's job via the protocol parser.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by Send and ReceiveChunk once Close has been
// called locally. A close initiated by the server surfaces as io.EOF
// from ReceiveChunk instead.
var ErrClosed = errors.New("connection closed")

const chunkSize = 4096

// Conn is a connected byte-stream socket. Sends from any number of
// goroutines are serialised, reads are expected from a single reader.
type Conn struct {
	conn net.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	chunk []byte

	log *zap.Logger
}

// Dial connects to the server named in options.
func Dial(ctx context.Context, options Options) (*Conn, error) {
	addr := net.JoinHostPort(options.Host, strconv.Itoa(options.Port))

	dialer := net.Dialer{Timeout: options.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	log.Debug("Connected", zap.String("addr", addr))

	return &Conn{
		conn:   conn,
		closed: make(chan struct{}),
		chunk:  make([]byte, chunkSize),
		log:    log,
	}, nil
}

// Send writes one encoded frame to the socket. Concurrent senders are
// serialised so frames never interleave on the wire.
func (c *Conn) Send(data []byte) error {
	if !c.isRunning() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	return nil
}

// Write implements io.Writer over Send so the protocol writers can
// target a Conn directly.
func (c *Conn) Write(data []byte) (int, error) {
	if err := c.Send(data); err != nil {
		return 0, err
	}

	return len(data), nil
}

// ReceiveChunk blocks until raw bytes arrive and returns them. The
// returned slice is only valid until the next call. It returns io.EOF
// on an orderly close by the server.
func (c *Conn) ReceiveChunk() ([]byte, error) {
	n, err := c.conn.Read(c.chunk)
	if n > 0 {
		return c.chunk[:n], nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		return nil, io.EOF
	}

	if !c.isRunning() {
		return nil, ErrClosed
	}

	return nil, fmt.Errorf("failed to receive: %w", err)
}

// SetReadDeadline bounds the next ReceiveChunk. The zero time clears
// the deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close releases the socket. It is safe to call more than once and
// from any goroutine, including while ReceiveChunk is blocked.
func (c *Conn) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})

	return err
}

// isRunning returns true if Close has not been called
func (c *Conn) isRunning() bool {
	select {
	case <-c.closed:
		return false

	default:
		return true
	}
}
