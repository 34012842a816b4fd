package mcp

import "context"

// Transport is the capability set {start, send, stop} over which
// StdioTransport and SSETransport are variants (spec's transport
// polymorphism design note). Send owns request/response correlation:
// for a message carrying an id, it blocks until the matching response
// arrives, times out, or ctx is done; for a notification it returns
// as soon as the message is written.
//
// A single outstanding Send at a time is assumed; concurrent Send
// calls against the same Transport are not required to be safe.
type Transport interface {
	// Start launches/connects the transport and begins whatever
	// background read loop it needs before Send can be used.
	Start(ctx context.Context) error

	// Send writes msg and, if it carries an id, waits for and returns
	// the correlated response. Notifications return (nil, nil).
	Send(ctx context.Context, msg *Message) (*Message, error)

	// Stop performs orderly shutdown, escalating as needed. It is
	// idempotent and swallows conditions that are expected on a
	// half-torn-down connection rather than returning them as errors.
	Stop(ctx context.Context) error

	// Connected reports whether Start has succeeded and Stop has not
	// yet been called.
	Connected() bool
}
