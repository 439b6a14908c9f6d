package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNeedMore is returned by Parser.Next when the buffered bytes do
	// not yet hold a complete frame. It is not a failure, feed more bytes
	// and call Next again.
	ErrNeedMore = errors.New("need more data to complete a frame")

	ErrUnknownVerb  = errors.New("frame is malformed, the verb is not part of the protocol")
	ErrBadArgCount  = errors.New("frame is malformed, wrong number of arguments for the verb")
	ErrBadSID       = errors.New("frame is malformed, the sid is not numeric")
	ErrBadByteCount = errors.New("frame is malformed, the payload byte count is not numeric")
	ErrBadPayload   = errors.New("frame is malformed, the payload does not end with CRLF")
)

var (
	verbInfo    = []byte("INFO")
	verbConnect = []byte("CONNECT")
	verbPub     = []byte("PUB")
	verbSub     = []byte("SUB")
	verbUnsub   = []byte("UNSUB")
	verbMsg     = []byte("MSG")
	verbPing    = []byte("PING")
	verbPong    = []byte("PONG")
	verbOk      = []byte("+OK")
	verbErr     = []byte("-ERR")

	crlf = []byte("\r\n")
)

// Error reports a malformed frame together with the control line that
// could not be parsed. The byte stream can no longer be trusted after
// one of these, callers should treat it as fatal to the connection.
type Error struct {
	Line  []byte
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to parse %q: %v", string(e.Line), e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// header is a fully parsed PUB/MSG control line whose payload bytes have
// not all arrived yet.
type header struct {
	verb    Verb
	subject string
	reply   string
	sid     int64
	size    int64
	line    []byte
}

// Parser is an incremental frame decoder. Feed it raw chunks in arrival
// order and drain complete frames with Next. Partially received frames
// are carried between calls, Next never blocks.
//
// A Parser is not safe for concurrent use, it is owned by the single
// reader of a connection.
type Parser struct {
	buf     []byte
	pending *header
}

// Feed appends a raw chunk from the wire to the parse buffer.
func (p *Parser) Feed(chunk []byte) {
	p.buf = append(p.buf, chunk...)
}

// Next returns the next complete frame. It returns ErrNeedMore when the
// buffer holds only part of a frame, or a *Error carrying the offending
// control line when the stream is malformed.
func (p *Parser) Next() (Frame, error) {
	for {
		if p.pending != nil {
			frame, err := p.finishPayload()
			if err != nil || frame != nil {
				return frame, err
			}
			return nil, ErrNeedMore
		}

		eol := bytes.Index(p.buf, crlf)
		if eol < 0 {
			return nil, ErrNeedMore
		}

		line := make([]byte, eol)
		copy(line, p.buf[:eol])
		p.buf = p.buf[eol+2:]

		frame, err := p.parseLine(line)
		if err != nil {
			return nil, err
		}

		if frame != nil {
			return frame, nil
		}

		// The line was a PUB/MSG header, loop to consume its payload.
	}
}

// finishPayload consumes the payload and trailing CRLF of the pending
// PUB/MSG header. It returns (nil, nil) when more bytes are needed.
func (p *Parser) finishPayload() (Frame, error) {
	need := p.pending.size + 2
	if int64(len(p.buf)) < need {
		return nil, nil
	}

	payload := make([]byte, p.pending.size)
	copy(payload, p.buf[:p.pending.size])

	if !bytes.Equal(p.buf[p.pending.size:need], crlf) {
		return nil, &Error{Line: p.pending.line, Cause: ErrBadPayload}
	}

	p.buf = p.buf[need:]
	head := p.pending
	p.pending = nil

	if head.verb == MSG {
		return &Msg{
			Subject: head.subject,
			SID:     head.sid,
			Reply:   head.reply,
			Payload: payload,
		}, nil
	}

	return &Pub{
		Subject: head.subject,
		Reply:   head.reply,
		Payload: payload,
	}, nil
}

// parseLine parses a single control line. For PUB/MSG it records a
// pending header and returns (nil, nil), the payload follows on the wire.
func (p *Parser) parseLine(line []byte) (Frame, error) {
	args := bytes.Fields(line)
	if len(args) == 0 {
		return nil, &Error{Line: line, Cause: ErrUnknownVerb}
	}

	verb := args[0]

	switch {
	case bytes.EqualFold(verb, verbPing):
		if len(args) != 1 {
			return nil, &Error{Line: line, Cause: ErrBadArgCount}
		}
		return &Ping{}, nil

	case bytes.EqualFold(verb, verbPong):
		if len(args) != 1 {
			return nil, &Error{Line: line, Cause: ErrBadArgCount}
		}
		return &Pong{}, nil

	case bytes.EqualFold(verb, verbOk):
		if len(args) != 1 {
			return nil, &Error{Line: line, Cause: ErrBadArgCount}
		}
		return &Ok{}, nil

	case bytes.EqualFold(verb, verbErr):
		return &Err{Reason: string(trimVerb(line, verb))}, nil

	case bytes.EqualFold(verb, verbInfo):
		return &Info{Payload: trimVerb(line, verb)}, nil

	case bytes.EqualFold(verb, verbConnect):
		return &Connect{Payload: trimVerb(line, verb)}, nil

	case bytes.EqualFold(verb, verbSub):
		if len(args) != 3 {
			return nil, &Error{Line: line, Cause: ErrBadArgCount}
		}

		sid, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			return nil, &Error{Line: line, Cause: ErrBadSID}
		}

		return &Sub{Subject: string(args[1]), SID: sid}, nil

	case bytes.EqualFold(verb, verbUnsub):
		if len(args) != 2 && len(args) != 3 {
			return nil, &Error{Line: line, Cause: ErrBadArgCount}
		}

		sid, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return nil, &Error{Line: line, Cause: ErrBadSID}
		}

		unsub := &Unsub{SID: sid}

		if len(args) == 3 {
			max, err := strconv.ParseInt(string(args[2]), 10, 64)
			if err != nil {
				return nil, &Error{Line: line, Cause: ErrBadByteCount}
			}
			unsub.Max = max
		}

		return unsub, nil

	case bytes.EqualFold(verb, verbPub):
		if len(args) != 3 && len(args) != 4 {
			return nil, &Error{Line: line, Cause: ErrBadArgCount}
		}

		head := &header{verb: PUB, subject: string(args[1]), line: line}

		if len(args) == 4 {
			head.reply = string(args[2])
		}

		size, err := strconv.ParseInt(string(args[len(args)-1]), 10, 64)
		if err != nil || size < 0 {
			return nil, &Error{Line: line, Cause: ErrBadByteCount}
		}
		head.size = size

		p.pending = head
		return nil, nil

	case bytes.EqualFold(verb, verbMsg):
		if len(args) != 4 && len(args) != 5 {
			return nil, &Error{Line: line, Cause: ErrBadArgCount}
		}

		head := &header{verb: MSG, subject: string(args[1]), line: line}

		sid, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			return nil, &Error{Line: line, Cause: ErrBadSID}
		}
		head.sid = sid

		if len(args) == 5 {
			head.reply = string(args[3])
		}

		size, err := strconv.ParseInt(string(args[len(args)-1]), 10, 64)
		if err != nil || size < 0 {
			return nil, &Error{Line: line, Cause: ErrBadByteCount}
		}
		head.size = size

		p.pending = head
		return nil, nil

	default:
		return nil, &Error{Line: line, Cause: ErrUnknownVerb}
	}
}

// trimVerb strips the verb token and the whitespace after it, leaving
// the remainder of the control line untouched.
func trimVerb(line, verb []byte) []byte {
	rest := line[len(verb):]
	return bytes.TrimLeft(rest, " \t")
}
