package client

import "errors"

var (
	// ErrManagerClosed is returned when an operation is attempted on a
	// manager that has been shut down.
	ErrManagerClosed = errors.New("client: manager closed")

	// ErrRetriesExhausted is returned when every candidate port has
	// been tried MaxRetries times without a successful connection.
	ErrRetriesExhausted = errors.New("client: bridge unavailable, retries exhausted")

	// ErrNotConnected is returned when a request is submitted while the
	// link is not in the authorized state.
	ErrNotConnected = errors.New("client: not connected")

	// ErrConnectionClosed aborts in-flight requests when the link drops
	// before their terminal message arrives.
	ErrConnectionClosed = errors.New("client: connection closed")

	// ErrRequestTimeout resolves a request whose terminal message did
	// not arrive within the configured deadline.
	ErrRequestTimeout = errors.New("client: request timed out")

	// ErrAuthRejected is returned when the agent refuses the token
	// presented during the handshake.
	ErrAuthRejected = errors.New("client: authorization rejected")
)
