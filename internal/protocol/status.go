// ABOUTME: Runtime connection status and error code vocabulary.
// ABOUTME: Unknown error codes normalize to a fallback instead of being dropped.

package protocol

// RuntimeStatus describes the remote runtime's connection state as last
// reported by the transport. The tag set is owned by the runtime; values not
// listed here are carried through verbatim.
type RuntimeStatus string

const (
	StatusDisconnected RuntimeStatus = "disconnected"
	StatusConnecting   RuntimeStatus = "connecting"
	StatusConnected    RuntimeStatus = "connected"
	StatusError        RuntimeStatus = "error"
)

// ErrorCode classifies a runtime error reported in a status frame.
type ErrorCode string

const (
	ErrorCodeConnection ErrorCode = "CONNECTION_ERROR"
	ErrorCodeAgent      ErrorCode = "AGENT_ERROR"
	ErrorCodeRun        ErrorCode = "RUN_ERROR"
	ErrorCodeTool       ErrorCode = "TOOL_ERROR"
	ErrorCodeTransport  ErrorCode = "TRANSPORT_ERROR"

	// ErrorCodeUnknown is the fallback for codes this build does not
	// recognize. An unrecognized code still surfaces an error notification,
	// just tagged generically.
	ErrorCodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// Known reports whether the code is part of the recognized set.
func (c ErrorCode) Known() bool {
	switch c {
	case ErrorCodeConnection, ErrorCodeAgent, ErrorCodeRun, ErrorCodeTool,
		ErrorCodeTransport, ErrorCodeUnknown:
		return true
	}
	return false
}

// Normalize returns the code unchanged if recognized, ErrorCodeUnknown
// otherwise.
func (c ErrorCode) Normalize() ErrorCode {
	if c.Known() {
		return c
	}
	return ErrorCodeUnknown
}

// RuntimeError is the last error reported by the remote runtime.
type RuntimeError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}
