package protocol

// Verb identifies the frame type on the wire.
type Verb string

const (
	INFO    Verb = "INFO"
	CONNECT Verb = "CONNECT"
	PUB     Verb = "PUB"
	SUB     Verb = "SUB"
	UNSUB   Verb = "UNSUB"
	MSG     Verb = "MSG"
	PING    Verb = "PING"
	PONG    Verb = "PONG"
	OK      Verb = "+OK"
	ERR     Verb = "-ERR"
)

// Frame is a single decoded protocol frame. Every verb has its own
// concrete type so callers can switch on the decoded value without ever
// re-interpreting raw bytes.
type Frame interface {
	FrameVerb() Verb
}

// Info carries the raw JSON body the server sends on connect.
type Info struct {
	Payload []byte
}

func (Info) FrameVerb() Verb { return INFO }

// Connect carries the raw JSON body a client sends in answer to INFO.
type Connect struct {
	Payload []byte
}

func (Connect) FrameVerb() Verb { return CONNECT }

type Pub struct {
	Subject string
	Reply   string
	Payload []byte
}

func (Pub) FrameVerb() Verb { return PUB }

type Sub struct {
	Subject string
	SID     int64
}

func (Sub) FrameVerb() Verb { return SUB }

// Unsub removes subscription SID. Max > 0 asks the server to remove it
// only after Max more deliveries.
type Unsub struct {
	SID int64
	Max int64
}

func (Unsub) FrameVerb() Verb { return UNSUB }

type Msg struct {
	Subject string
	SID     int64
	Reply   string
	Payload []byte
}

func (Msg) FrameVerb() Verb { return MSG }

type Ping struct{}

func (Ping) FrameVerb() Verb { return PING }

type Pong struct{}

func (Pong) FrameVerb() Verb { return PONG }

type Ok struct{}

func (Ok) FrameVerb() Verb { return OK }

type Err struct {
	Reason string
}

func (Err) FrameVerb() Verb { return ERR }

var _ Frame = (*Info)(nil)
var _ Frame = (*Connect)(nil)
var _ Frame = (*Pub)(nil)
var _ Frame = (*Sub)(nil)
var _ Frame = (*Unsub)(nil)
var _ Frame = (*Msg)(nil)
var _ Frame = (*Ping)(nil)
var _ Frame = (*Pong)(nil)
var _ Frame = (*Ok)(nil)
var _ Frame = (*Err)(nil)
