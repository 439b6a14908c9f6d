package client

import (
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// inboxPrefix marks the subjects replies come back on.
const inboxPrefix = "INBOX."

// correlator generates unique reply-to subjects and routes their
// replies back to the caller blocked in Request. Register, fulfill and
// discard are atomic per inbox, so at most one fulfillment ever wins
// and late replies are silently dropped.
type correlator struct {
	mu      sync.Mutex
	waiters map[string]chan Message
	failed  bool
}

func newCorrelator() *correlator {
	return &correlator{
		waiters: make(map[string]chan Message),
	}
}

// newInbox returns a reply subject unique to this process, so replies
// never collide across clients or concurrent requests.
func newInbox() string {
	id := uuid.New()
	return inboxPrefix + hex.EncodeToString(id[:])
}

// register creates the waiter for an inbox. The channel yields the
// reply, or closes without one when the connection dies.
func (c *correlator) register(inbox string) <-chan Message {
	waiter := make(chan Message, 1)

	c.mu.Lock()
	if c.failed {
		close(waiter)
	} else {
		c.waiters[inbox] = waiter
	}
	c.mu.Unlock()

	return waiter
}

// fulfill hands a reply to the waiter registered for the inbox. It
// reports false when no waiter exists, because it was never registered,
// already fulfilled, or timed out, in which case the message is dropped.
func (c *correlator) fulfill(inbox string, m Message) bool {
	c.mu.Lock()
	waiter, ok := c.waiters[inbox]
	if ok {
		delete(c.waiters, inbox)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	waiter <- m
	close(waiter)
	return true
}

// discard abandons an inbox whose caller stopped waiting.
func (c *correlator) discard(inbox string) {
	c.mu.Lock()
	delete(c.waiters, inbox)
	c.mu.Unlock()
}

// failAll wakes every blocked Request without a reply. Anything
// registered afterwards fails immediately. Safe to call more than once.
func (c *correlator) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failed = true

	for inbox, waiter := range c.waiters {
		close(waiter)
		delete(c.waiters, inbox)
	}
}
