package tts

import "fmt"

// Error describes a failed synthesis request. StatusCode and
// ResponseText are set when the provider answered with a non-200
// status; Err carries the underlying transport or decode error.
type Error struct {
	Message      string
	StatusCode   int
	ResponseText string
	Err          error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d): %s", e.Message, e.StatusCode, e.ResponseText)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsClientError reports whether the provider rejected the request with
// a 4xx status. Such requests are not retried.
func (e *Error) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
