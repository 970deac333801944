package checkpoint

import (
	"errors"
	"fmt"
)

// Error kinds reported by the checkpoint store. Match them with errors.Is.
var (
	ErrOpen      = errors.New("open checkpoint")
	ErrRead      = errors.New("read checkpoint")
	ErrMalformed = errors.New("parse checkpoint")
	ErrEncode    = errors.New("encode checkpoint")
	ErrTruncate  = errors.New("truncate checkpoint")
	ErrWrite     = errors.New("write checkpoint")
	ErrFlush     = errors.New("flush checkpoint")
)

// Error describes a failed checkpoint file operation.
type Error struct {
	// Kind is one of the Err* sentinels of this package.
	Kind error
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(kind error, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}
