package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/3kwa/goingnats/protocol"
)

// feed pushes the whole input and drains a single frame.
func parseOne(input string) (protocol.Frame, error) {
	p := &protocol.Parser{}
	p.Feed([]byte(input))
	return p.Next()
}

var _ = Describe("Parsing", func() {
	Describe("Parser.Next()", func() {
		It("returns ErrNeedMore on an empty buffer", func() {
			p := &protocol.Parser{}
			_, err := p.Next()
			Expect(err).To(MatchError(protocol.ErrNeedMore))
		})

		It("returns ErrNeedMore while the control line has no terminator", func() {
			p := &protocol.Parser{}
			p.Feed([]byte("PING"))
			_, err := p.Next()
			Expect(err).To(MatchError(protocol.ErrNeedMore))
		})

		It("returns an error if the verb is unknown", func() {
			_, err := parseOne("EVIL\r\n")
			Expect(errors.Is(err, protocol.ErrUnknownVerb)).To(BeTrue())

			parseErr := new(protocol.Error)
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Line).To(Equal([]byte("EVIL")))
		})

		It("parses PING and PONG", func() {
			frame, err := parseOne("PING\r\n")
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Ping{}))

			frame, err = parseOne("PONG\r\n")
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Pong{}))
		})

		It("parses verbs case insensitively", func() {
			frame, err := parseOne("ping\r\n")
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Ping{}))

			frame, err = parseOne("msg greet 1 2\r\nhi\r\n")
			Expect(err).To(Succeed())
			Expect(frame.FrameVerb()).To(Equal(protocol.MSG))
		})

		It("parses +OK and -ERR", func() {
			frame, err := parseOne("+OK\r\n")
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Ok{}))

			frame, err = parseOne("-ERR 'Unknown Protocol Operation'\r\n")
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Err{Reason: "'Unknown Protocol Operation'"}))
		})

		It("parses INFO with its JSON body", func() {
			frame, err := parseOne(`INFO {"server_id":"abc","max_payload":1048576}` + "\r\n")
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Info{
				Payload: []byte(`{"server_id":"abc","max_payload":1048576}`),
			}))
		})

		It("parses CONNECT with its JSON body", func() {
			frame, err := parseOne(`CONNECT {"name":"goingnats","verbose":false}` + "\r\n")
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Connect{
				Payload: []byte(`{"name":"goingnats","verbose":false}`),
			}))
		})

		Describe("SUB", func() {
			It("parses a valid SUB", func() {
				frame, err := parseOne("SUB time.> 7\r\n")
				Expect(err).To(Succeed())
				Expect(frame).To(Equal(&protocol.Sub{Subject: "time.>", SID: 7}))
			})

			It("returns an error when the sid is not numeric", func() {
				_, err := parseOne("SUB time.> seven\r\n")
				Expect(errors.Is(err, protocol.ErrBadSID)).To(BeTrue())
			})

			It("returns an error on a missing sid", func() {
				_, err := parseOne("SUB time.>\r\n")
				Expect(errors.Is(err, protocol.ErrBadArgCount)).To(BeTrue())
			})
		})

		Describe("UNSUB", func() {
			It("parses UNSUB without a max", func() {
				frame, err := parseOne("UNSUB 7\r\n")
				Expect(err).To(Succeed())
				Expect(frame).To(Equal(&protocol.Unsub{SID: 7}))
			})

			It("parses UNSUB with a max", func() {
				frame, err := parseOne("UNSUB 7 1\r\n")
				Expect(err).To(Succeed())
				Expect(frame).To(Equal(&protocol.Unsub{SID: 7, Max: 1}))
			})
		})

		Describe("MSG", func() {
			It("parses MSG without a reply subject", func() {
				frame, err := parseOne("MSG greet 3 2\r\nhi\r\n")
				Expect(err).To(Succeed())
				Expect(frame).To(Equal(&protocol.Msg{
					Subject: "greet",
					SID:     3,
					Payload: []byte("hi"),
				}))
			})

			It("parses MSG with a reply subject", func() {
				frame, err := parseOne("MSG add 3 INBOX.abc 7\r\n[1,2,3]\r\n")
				Expect(err).To(Succeed())
				Expect(frame).To(Equal(&protocol.Msg{
					Subject: "add",
					SID:     3,
					Reply:   "INBOX.abc",
					Payload: []byte("[1,2,3]"),
				}))
			})

			It("parses an empty payload", func() {
				frame, err := parseOne("MSG greet 3 0\r\n\r\n")
				Expect(err).To(Succeed())
				Expect(frame).To(Equal(&protocol.Msg{
					Subject: "greet",
					SID:     3,
					Payload: []byte{},
				}))
			})

			It("keeps the payload byte exact, embedded CRLF included", func() {
				frame, err := parseOne("MSG greet 3 7\r\nab\r\ncd!\r\n")
				Expect(err).To(Succeed())
				Expect(frame).To(Equal(&protocol.Msg{
					Subject: "greet",
					SID:     3,
					Payload: []byte("ab\r\ncd!"),
				}))
			})

			It("returns an error when the byte count is not numeric", func() {
				_, err := parseOne("MSG greet 3 two\r\nhi\r\n")
				Expect(errors.Is(err, protocol.ErrBadByteCount)).To(BeTrue())
			})

			It("returns an error when the payload overruns the declared count", func() {
				_, err := parseOne("MSG greet 3 1\r\nhi\r\n")
				Expect(errors.Is(err, protocol.ErrBadPayload)).To(BeTrue())
			})
		})

		It("decodes frames fed a single byte at a time", func() {
			p := &protocol.Parser{}
			wire := "MSG greet 3 INBOX.abc 2\r\nhi\r\nPING\r\n"

			frames := []protocol.Frame{}
			for i := 0; i < len(wire); i++ {
				p.Feed([]byte{wire[i]})

				for {
					frame, err := p.Next()
					if errors.Is(err, protocol.ErrNeedMore) {
						break
					}
					Expect(err).To(Succeed())
					frames = append(frames, frame)
				}
			}

			Expect(frames).To(Equal([]protocol.Frame{
				&protocol.Msg{Subject: "greet", SID: 3, Reply: "INBOX.abc", Payload: []byte("hi")},
				&protocol.Ping{},
			}))
		})

		It("decodes several frames from a single chunk", func() {
			p := &protocol.Parser{}
			p.Feed([]byte("PING\r\nMSG a.b 1 2\r\nok\r\n+OK\r\n"))

			frame, err := p.Next()
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Ping{}))

			frame, err = p.Next()
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Msg{Subject: "a.b", SID: 1, Payload: []byte("ok")}))

			frame, err = p.Next()
			Expect(err).To(Succeed())
			Expect(frame).To(Equal(&protocol.Ok{}))

			_, err = p.Next()
			Expect(err).To(MatchError(protocol.ErrNeedMore))
		})
	})

	Describe("round trip", func() {
		frames := []protocol.Frame{
			&protocol.Info{Payload: []byte(`{"server_id":"abc"}`)},
			&protocol.Connect{Payload: []byte(`{"name":"goingnats","verbose":false}`)},
			&protocol.Pub{Subject: "greet", Payload: []byte("hi")},
			&protocol.Pub{Subject: "add", Reply: "INBOX.abc", Payload: []byte("[1,2,3]")},
			&protocol.Sub{Subject: "time.>", SID: 4},
			&protocol.Unsub{SID: 4},
			&protocol.Unsub{SID: 5, Max: 1},
			&protocol.Msg{Subject: "greet", SID: 4, Payload: []byte("hi")},
			&protocol.Msg{Subject: "add", SID: 4, Reply: "INBOX.abc", Payload: []byte("6")},
			&protocol.Ping{},
			&protocol.Pong{},
			&protocol.Ok{},
			&protocol.Err{Reason: "'Stale Connection'"},
		}

		It("decode(encode(frame)) yields the identical frame", func() {
			for _, frame := range frames {
				wire, err := protocol.Encode(frame)
				Expect(err).To(Succeed())

				p := &protocol.Parser{}
				p.Feed(wire)

				decoded, err := p.Next()
				Expect(err).To(Succeed())
				Expect(decoded).To(Equal(frame))
			}
		})

		It("encode(decode(bytes)) yields the identical bytes", func() {
			for _, frame := range frames {
				wire, err := protocol.Encode(frame)
				Expect(err).To(Succeed())

				p := &protocol.Parser{}
				p.Feed(wire)

				decoded, err := p.Next()
				Expect(err).To(Succeed())

				again, err := protocol.Encode(decoded)
				Expect(err).To(Succeed())
				Expect(again).To(Equal(wire))
			}
		})
	})
})
