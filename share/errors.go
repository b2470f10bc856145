package share

import (
	"errors"
	"fmt"
)

// ErrMalformedHandle is the cause of a load whose handle is not lowercase hex.
var ErrMalformedHandle = errors.New("malformed handle")

// ShareError reports a failed exchange with the snapshot store or a
// snapshot that did not validate. Status is the HTTP status when the store
// answered, 0 otherwise.
type ShareError struct {
	Op     string // "save" or "load"
	Handle string
	Status int
	Cause  error
}

func (e *ShareError) Error() string {
	msg := "share: " + e.Op
	if e.Handle != "" {
		msg += " " + e.Handle
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ShareError) Unwrap() error { return e.Cause }
