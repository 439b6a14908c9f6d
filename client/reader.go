package client

import (
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/3kwa/goingnats/protocol"
)

// readLoop is the single background task that owns the inbound half of
// the socket. It reads raw chunks, decodes them incrementally and
// routes every frame: PONG for PING, replies to the correlator,
// everything else through the registry fan-out. On EOF or a malformed
// stream it marks the connection dead and wakes every blocked waiter,
// once, on behalf of all of them.
func (c *Client) readLoop() {
	log := c.log.Named("readLoop")

	parser := c.parser

	for {
		// Drain first, the handshake may have left complete frames in
		// the parser before the first chunk arrives.
		if ok := c.drainFrames(parser, log); !ok {
			return
		}

		select {
		case <-c.ctx.Done():
			log.Debug("Context cancelled, exiting...")
			return

		default:
			chunk, err := c.conn.ReceiveChunk()
			if len(chunk) > 0 {
				parser.Feed(chunk)
			}

			if err != nil {
				if errors.Is(err, io.EOF) {
					log.Debug("Server closed the connection")
				} else if c.State() != Closing && c.State() != Closed {
					log.Warn("Connection lost", zap.Error(err))
				}

				c.fail()
				return
			}
		}
	}
}

// drainFrames decodes and routes every complete frame sitting in the
// parser. It reports false when the stream is malformed, which is fatal
// to the connection.
func (c *Client) drainFrames(parser *protocol.Parser, log *zap.Logger) bool {
	for {
		frame, err := parser.Next()
		if errors.Is(err, protocol.ErrNeedMore) {
			return true
		}

		if err != nil {
			log.Error("Malformed frame from server", zap.Error(err))
			c.fail()
			return false
		}

		switch f := frame.(type) {
		case *protocol.Ping:
			if err := protocol.WritePong(c.conn); err != nil {
				log.Warn("Failed to respond to PING", zap.Error(err))
			}

		case *protocol.Pong:
			// answer to a keepalive we never send, nothing to do

		case *protocol.Ok:
			// verbose acknowledgement, nothing to do

		case *protocol.Err:
			log.Warn("Server reported error", zap.String("reason", f.Reason))

		case *protocol.Info:
			log.Debug("Server info refreshed")

		case *protocol.Msg:
			c.route(f, log)

		default:
			log.Warn("Unexpected frame from server", zap.String("verb", string(frame.FrameVerb())))
		}
	}
}

// route hands a MSG to whoever is waiting on it. Replies go to the
// correlator, everything else fans out through the registry. A reply
// nobody waits for and a message nobody subscribes to are both dropped,
// they are expected outcomes, not errors.
func (c *Client) route(f *protocol.Msg, log *zap.Logger) {
	m := Message{
		Subject: f.Subject,
		Inbox:   f.Reply,
		Payload: f.Payload,
	}

	if strings.HasPrefix(f.Subject, inboxPrefix) {
		if !c.correlator.fulfill(f.Subject, m) {
			log.Debug("Late reply dropped", zap.String("inbox", f.Subject))
		}
		return
	}

	if c.registry.deliver(m) == 0 {
		log.Debug("No subscription matched", zap.String("subject", f.Subject))
	}
}
