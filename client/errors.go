package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrConnectionClosed is returned by every operation once the
// connection is gone, whether closed locally or lost to the server.
var ErrConnectionClosed = errors.New("connection closed")

// TimeoutError reports a Request whose reply did not arrive in time.
// It is recoverable, the caller may simply retry.
type TimeoutError struct {
	Subject string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request on %q timed out after %s", e.Subject, e.Elapsed)
}

// Timeout implements the net.Error convention.
func (e *TimeoutError) Timeout() bool {
	return true
}
