package mcp

import "fmt"

// Kind classifies an error by the disposition its caller should give
// it: log-and-exclude, wrap-as-tool-error, escalate, and so on.
type Kind string

const (
	KindConfig        Kind = "config"
	KindConnect       Kind = "connect"
	KindFraming       Kind = "framing"
	KindTimeout       Kind = "timeout"
	KindRPC           Kind = "rpc"
	KindToolDispatch  Kind = "tool_dispatch"
	KindShutdownStall Kind = "shutdown_stall"
)

// TransportError represents a transport-level error (connect, framing,
// shutdown-stall). Kind records which disposition in the error table
// applies.
type TransportError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error of the given kind.
func NewTransportError(kind Kind, message string, cause error) *TransportError {
	return &TransportError{Kind: kind, Message: message, Cause: cause}
}

// TimeoutError represents a deadline elapsing on a transport
// operation (stdio read, SSE endpoint wait, SSE response wait).
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s", e.Operation)
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(operation string) *TimeoutError {
	return &TimeoutError{Operation: operation}
}

// RPCErr converts a JSON-RPC error member into a plain Go error at the
// MCPClient boundary.
type RPCErr struct {
	Code    int
	Message string
}

func (e *RPCErr) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func errFromRPC(e *RPCError) error {
	if e == nil {
		return nil
	}
	return &RPCErr{Code: e.Code, Message: e.Message}
}
