package logbuffer

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions spec'd as distinct error kinds.
var (
	// ErrCorrupt is returned when a frame's length prefix disagrees with the
	// bytes available to decode it.
	ErrCorrupt = errors.New("logbuffer: corrupt record frame")

	// ErrNoEncoder is returned when WriteObject is called with a value whose
	// type has no registered encoder.
	ErrNoEncoder = errors.New("logbuffer: no encoder registered for type")

	// ErrNoDecoder is returned when a type tag has no registered decoder.
	ErrNoDecoder = errors.New("logbuffer: no decoder registered for type tag")

	// ErrMissingDecoder is returned by a typed scan when it encounters a type
	// tag that has no registered decoder.
	ErrMissingDecoder = errors.New("logbuffer: missing decoder during typed scan")

	// ErrInvalidArgument is returned for malformed ranges, e.g. fromIndex > toIndex.
	ErrInvalidArgument = errors.New("logbuffer: invalid argument")

	// ErrClosed is returned for any operation attempted on a closed LogBuffer.
	ErrClosed = errors.New("logbuffer: buffer is closed")
)

// TailFailure wraps an error raised by a tail's callback. The cursor for that
// tail is never advanced when this error is returned.
type TailFailure struct {
	Tail string
	Err  error
}

func (e *TailFailure) Error() string {
	return fmt.Sprintf("logbuffer: tail %q failed: %v", e.Tail, e.Err)
}

func (e *TailFailure) Unwrap() error { return e.Err }

// newTailFailure wraps err as a TailFailure for the given tail name, unless
// err is already nil.
func newTailFailure(name string, err error) error {
	if err == nil {
		return nil
	}
	return &TailFailure{Tail: name, Err: err}
}
