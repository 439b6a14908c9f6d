package client

import (
	"sync"

	"github.com/3kwa/goingnats/subject"
)

// Message is a single delivered payload. Inbox is the reply-to subject
// when the sender asked for a response, empty otherwise.
type Message struct {
	Subject string
	Inbox   string
	Payload []byte
}

// queue is an unbounded FIFO. The reader loop pushes, Get drains.
// Enqueueing never blocks so a slow consumer cannot stall the socket.
type queue struct {
	items []Message
	done  bool
}

// subscription pairs a subject pattern with its delivery queue under
// the sid the server knows it by.
type subscription struct {
	sid     int64
	pattern string
	queue   queue
}

// registry maps subject patterns to delivery queues and fans inbound
// messages out to every matching subscription. One writer, the reader
// loop, runs concurrently with caller threads adding, removing and
// draining.
type registry struct {
	mu   sync.Mutex
	subs []*subscription

	// wake is signalled, coalescing, whenever a delivery lands so Get
	// can sleep instead of polling.
	wake chan struct{}
}

func newRegistry() *registry {
	return &registry{
		wake: make(chan struct{}, 1),
	}
}

// add registers a pattern under the given sid.
func (r *registry) add(pattern string, sid int64) error {
	if _, err := subject.Valid(pattern); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = append(r.subs, &subscription{sid: sid, pattern: pattern})
	return nil
}

// remove drops the subscription with the given sid, releasing any
// queued messages.
func (r *registry) remove(sid int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subs {
		if sub.sid == sid {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// removeByPattern drops every subscription on the exact pattern and
// returns their sids, so the caller can UNSUB each on the wire.
func (r *registry) removeByPattern(pattern string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sids []int64
	kept := r.subs[:0]

	for _, sub := range r.subs {
		if sub.pattern == pattern {
			sids = append(sids, sub.sid)
			continue
		}
		kept = append(kept, sub)
	}

	r.subs = kept
	return sids
}

// sids returns every live subscription id in insertion order.
func (r *registry) sids() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int64, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub.sid)
	}
	return out
}

// deliver enqueues the message on every subscription matching its
// subject, in insertion order, and reports how many took it. Zero
// matches is not an error, the message is simply dropped.
func (r *registry) deliver(m Message) int {
	r.mu.Lock()

	delivered := 0
	for _, sub := range r.subs {
		if sub.queue.done || !subject.Match(m.Subject, sub.pattern) {
			continue
		}
		sub.queue.items = append(sub.queue.items, m)
		delivered++
	}

	r.mu.Unlock()

	if delivered > 0 {
		r.signal()
	}

	return delivered
}

// drain empties every queue, concatenating in subscription insertion
// order. Messages within one subscription keep their arrival order.
func (r *registry) drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, sub := range r.subs {
		if len(sub.queue.items) == 0 {
			continue
		}
		out = append(out, sub.queue.items...)
		sub.queue.items = nil
	}
	return out
}

// terminate marks every queue dead and releases whatever was still
// queued. Safe to call more than once. Get waiters are woken so they
// observe the empty result instead of sleeping out their timeout.
func (r *registry) terminate() {
	r.mu.Lock()
	for _, sub := range r.subs {
		sub.queue.done = true
		sub.queue.items = nil
	}
	r.mu.Unlock()

	r.signal()
}

func (r *registry) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
