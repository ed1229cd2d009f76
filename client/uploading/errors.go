package uploading

import "fmt"

// SendErrorKind classifies a failed upload attempt.
type SendErrorKind string

const (
	// SendUnreachable covers connection failures and non-2xx responses.
	SendUnreachable SendErrorKind = "unreachable"
	// SendTimeout means the request exceeded the network timeout.
	SendTimeout SendErrorKind = "timeout"
	// SendBadResponse means the server answered 2xx with a malformed or
	// non-ok acknowledgement body.
	SendBadResponse SendErrorKind = "bad_response"
)

// SendError represents a failed upload. Every kind leads to local buffering;
// the kind only matters for logging and diagnostics.
type SendError struct {
	Kind       SendErrorKind
	InnerError error
}

func (e *SendError) Error() string {
	if e.InnerError != nil {
		return fmt.Sprintf("upload failed (%s): %v", e.Kind, e.InnerError)
	}
	return fmt.Sprintf("upload failed (%s)", e.Kind)
}

func (e *SendError) Unwrap() error {
	return e.InnerError
}

// SendErrorKindOf returns the kind of err if it is a SendError, or "" otherwise.
func SendErrorKindOf(err error) SendErrorKind {
	if e, ok := err.(*SendError); ok {
		return e.Kind
	}
	return ""
}
