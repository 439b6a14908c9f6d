package protocol

import (
	"fmt"
	"io"
	"strconv"
)

var (
	Terminal = []byte("\r\n")

	pingLine = []byte("PING\r\n")
	pongLine = []byte("PONG\r\n")
	okLine   = []byte("+OK\r\n")
)

func WritePing(w io.Writer) error {
	_, err := w.Write(pingLine)
	return err
}

func WritePong(w io.Writer) error {
	_, err := w.Write(pongLine)
	return err
}

func WriteOk(w io.Writer) error {
	_, err := w.Write(okLine)
	return err
}

func WriteErr(w io.Writer, reason string) error {
	_, err := fmt.Fprintf(w, "-ERR %s\r\n", reason)
	return err
}

// WriteInfo writes the INFO line with an already encoded JSON body.
func WriteInfo(w io.Writer, payload []byte) error {
	_, err := fmt.Fprintf(w, "INFO %s\r\n", payload)
	return err
}

// WriteConnect writes the CONNECT line with an already encoded JSON body.
func WriteConnect(w io.Writer, payload []byte) error {
	_, err := fmt.Fprintf(w, "CONNECT %s\r\n", payload)
	return err
}

func WriteSub(w io.Writer, subject string, sid int64) error {
	_, err := fmt.Fprintf(w, "SUB %s %d\r\n", subject, sid)
	return err
}

// WriteUnsub writes an UNSUB line. A max of 0 removes the subscription
// immediately, any other value removes it after max more deliveries.
func WriteUnsub(w io.Writer, sid int64, max int64) error {
	if max > 0 {
		_, err := fmt.Fprintf(w, "UNSUB %d %d\r\n", sid, max)
		return err
	}

	_, err := fmt.Fprintf(w, "UNSUB %d\r\n", sid)
	return err
}

// WritePub writes a full PUB frame, control line and payload. An empty
// reply publishes without asking for a response.
func WritePub(w io.Writer, subject, reply string, payload []byte) error {
	head := "PUB " + subject
	if reply != "" {
		head += " " + reply
	}
	head += " " + strconv.Itoa(len(payload))

	return writePayloadFrame(w, head, payload)
}

// WriteMsg writes a full MSG frame, control line and payload. Servers
// use this, clients only ever decode MSG.
func WriteMsg(w io.Writer, subject string, sid int64, reply string, payload []byte) error {
	head := "MSG " + subject + " " + strconv.FormatInt(sid, 10)
	if reply != "" {
		head += " " + reply
	}
	head += " " + strconv.Itoa(len(payload))

	return writePayloadFrame(w, head, payload)
}

// WriteFrame writes any decoded frame back in its wire form.
func WriteFrame(w io.Writer, f Frame) error {
	switch frame := f.(type) {
	case *Info:
		return WriteInfo(w, frame.Payload)
	case *Connect:
		return WriteConnect(w, frame.Payload)
	case *Pub:
		return WritePub(w, frame.Subject, frame.Reply, frame.Payload)
	case *Sub:
		return WriteSub(w, frame.Subject, frame.SID)
	case *Unsub:
		return WriteUnsub(w, frame.SID, frame.Max)
	case *Msg:
		return WriteMsg(w, frame.Subject, frame.SID, frame.Reply, frame.Payload)
	case *Ping:
		return WritePing(w)
	case *Pong:
		return WritePong(w)
	case *Ok:
		return WriteOk(w)
	case *Err:
		return WriteErr(w, frame.Reason)
	default:
		return fmt.Errorf("cannot encode frame: %w", ErrUnknownVerb)
	}
}

// Encode returns the wire form of a frame. Handy for tests and for
// callers that batch several frames into one send.
func Encode(f Frame) ([]byte, error) {
	var buf writerBuffer

	if err := WriteFrame(&buf, f); err != nil {
		return nil, err
	}

	return buf.b, nil
}

type writerBuffer struct {
	b []byte
}

func (w *writerBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// writePayloadFrame assembles control line, payload and both CRLF
// terminators into a single Write so frames never interleave on a
// shared connection.
func writePayloadFrame(w io.Writer, head string, payload []byte) error {
	b := make([]byte, 0, len(head)+len(payload)+4)
	b = append(b, head...)
	b = append(b, Terminal...)
	b = append(b, payload...)
	b = append(b, Terminal...)

	_, err := w.Write(b)
	return err
}
