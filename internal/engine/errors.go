package engine

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrInvalidArgument rejects reads with a zero size or negative offset.
var ErrInvalidArgument = errors.New("invalid argument")

// NotFoundError reports an inode that does not resolve to a node, or a
// document with no readable target.
type NotFoundError struct {
	Ino uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node %d not found", e.Ino)
}

// DecodeError wraps a malformed descriptor or content record. Inside a
// directory listing it drops the offending entry instead of failing the
// listing.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HandleError reports handle-count misuse: opening past the counter's
// maximum or releasing a node with no open handles.
type HandleError struct {
	Errno syscall.Errno
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("handle misuse: %v", e.Errno)
}
