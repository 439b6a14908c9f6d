package transport

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// Host of the server to connect to
	Host string

	// Port of the server to connect to
	Port int

	// DialTimeout bounds the TCP connect. Zero means no bound beyond the
	// operating system's own.
	DialTimeout time.Duration

	Log *zap.Logger
}
