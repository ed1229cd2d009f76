package capture

import "fmt"

// CaptureErrorReason classifies why a capture attempt failed.
type CaptureErrorReason string

const (
	// ReasonNoDisplaySession means no active display was available to grab.
	ReasonNoDisplaySession CaptureErrorReason = "no_display_session"
	// ReasonEncodeFailed means the grabbed frame could not be encoded.
	ReasonEncodeFailed CaptureErrorReason = "encode_failed"
)

// CaptureError represents a failed capture attempt.
type CaptureError struct {
	Reason     CaptureErrorReason
	InnerError error
}

func (e *CaptureError) Error() string {
	if e.InnerError != nil {
		return fmt.Sprintf("capture failed (%s): %v", e.Reason, e.InnerError)
	}
	return fmt.Sprintf("capture failed (%s)", e.Reason)
}

func (e *CaptureError) Unwrap() error {
	return e.InnerError
}

// IsNoDisplaySession reports whether err is a CaptureError caused by a missing
// display session.
func IsNoDisplaySession(err error) bool {
	if e, ok := err.(*CaptureError); ok {
		return e.Reason == ReasonNoDisplaySession
	}
	return false
}
