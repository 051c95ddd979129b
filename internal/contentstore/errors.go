package contentstore

import "fmt"

// NotFoundError is returned when a read does not answer 200 OK.
type NotFoundError struct {
	Path       string
	StatusCode int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %s not found: %d", e.Path, e.StatusCode)
}

// TransportError wraps a failure that happened before a usable response was
// read: network errors, an invalid credential, a malformed envelope.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WriteError is returned when a write does not answer 201 Created.
// StatusCode is zero when no response was received.
type WriteError struct {
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("write %s: %d - %s", e.Path, e.StatusCode, e.Body)
}

func (e *WriteError) Unwrap() error { return e.Err }
