package protocol

// This package implements parsing and serialising of the NATS wire
// protocol frames that goingnats exchanges with a server.
//
// The protocol aims to be
//
// - easy to implement
// - efficient to parse
// - be human readable
//
// See https://docs.nats.io/nats-protocol/nats-protocol for the
// authoritative description. The subset spoken here is:
//
// - `INFO`    - Sent by the server immediately after a client connects.
// - `CONNECT` - Sent by the client in answer to INFO.
// - `PUB`     - Publish a payload on a subject, optionally asking for a
//               reply on an inbox subject.
// - `SUB`     - Subscribe to a subject pattern under a client-chosen sid.
// - `UNSUB`   - Remove a subscription, optionally after N more messages.
// - `MSG`     - Server delivery of a published payload to a subscription.
// - `PING`    - Keepalive probe, either direction.
// - `PONG`    - Keepalive answer.
// - `+OK`     - Acknowledgement (verbose mode only).
// - `-ERR`    - Server reported error.
//
// === General Syntax
//
// - control lines are `\r\n` delimited
// - verbs are case insensitive, subjects and payloads are byte exact
// - subject tokens are `.` delimited; `*` matches one token, `>` matches
//   one or more trailing tokens and is only legal as the final token of a
//   subscription pattern
//
// === Payload carrying frames
//
// PUB and MSG declare the payload size on the control line. The payload
// follows as raw bytes and is itself terminated by `\r\n`:
//
//   ```
//     PUB <subject> [reply-to] <#bytes>\r\n<payload>\r\n
//     MSG <subject> <sid> [reply-to] <#bytes>\r\n<payload>\r\n
//   ```
//
// The declared byte count must match the payload exactly. A frame whose
// payload is not followed by `\r\n` is malformed and the stream can no
// longer be trusted.
//
// === Handshake
//
//   ```
//     < INFO {"server_id":"...","max_payload":1048576}\r\n
//     > CONNECT {"name":"<client-name>","verbose":false}\r\n
//   ```
//
// Both bodies are JSON. The client only ever inspects `server_id` and
// `max_payload`.
