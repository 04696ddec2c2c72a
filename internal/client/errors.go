package client

import (
	"errors"

	"github.com/stdb-loadgen/internal/metrics"
)

// Sentinel errors for the client's failure taxonomy. Per-operation
// failures never escape as raw errors to the scenario layer; they are
// folded into result structs carrying one of these plus a metrics kind.
var (
	// ErrConnection covers transport open and send failures.
	ErrConnection = errors.New("connection error")
	// ErrTimeout covers operations with no response inside the window.
	ErrTimeout = errors.New("timeout waiting for response")
	// ErrValidation covers responses received but malformed.
	ErrValidation = errors.New("malformed response")
	// ErrHTTPClient covers 4xx responses, never retried.
	ErrHTTPClient = errors.New("client error response")
	// ErrHTTPServer covers 5xx responses after retries are exhausted.
	ErrHTTPServer = errors.New("server error response")
)

// errorKind maps a sentinel to the registry's error-kind taxonomy.
// HTTP status errors fold into the three recorded kinds: 4xx is a
// validation-class failure, exhausted 5xx retries a connection-class one.
func errorKind(err error) metrics.ErrorKind {
	switch {
	case errors.Is(err, ErrTimeout):
		return metrics.ErrKindTimeout
	case errors.Is(err, ErrValidation), errors.Is(err, ErrHTTPClient):
		return metrics.ErrKindValidation
	default:
		return metrics.ErrKindConnection
	}
}
