// Package transport frames JSON-RPC messages over a child process's stdio
// or a WebSocket connection. Transports know nothing about JSON-RPC
// semantics beyond "one frame in, one frame out" — correlation and
// dispatch live one layer up, in pkg/rpc.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Transport is the polymorphism point for the two wire carriers: stdio and
// WebSocket.
type Transport interface {
	// Connect establishes the underlying connection (spawns the child
	// process, or dials the WebSocket). Must be called before Send/Receive.
	Connect(ctx context.Context) error

	// Send writes one frame. Safe for concurrent use with Receive, but not
	// with itself: callers must serialize their own Send calls.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks until one frame is available, the transport is
	// closed, or ctx is done.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears the transport down. Idempotent.
	Close() error

	// IsAlive reports whether the transport believes it can still send.
	// This is a best-effort liveness check, not a guarantee.
	IsAlive() bool
}

// Error kinds raised by transports.
var (
	ErrConnect        = errors.New("transport: connect failed")
	ErrTransportClosed = errors.New("transport: closed")
	ErrFrameTooLarge  = errors.New("transport: frame exceeds maximum size")
	ErrEncoding       = errors.New("transport: encoding error")
)

// MaxFrameBytes is the default per-message bound (§4.1: "a large per-message
// bound (≥10 MB) is enforced to accommodate OCR and binary payloads encoded
// as text").
const MaxFrameBytes = 10 * 1024 * 1024

// ConnectError wraps a lower-level dial/spawn failure with ErrConnect so
// callers can classify it with errors.Is.
type ConnectError struct {
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }
