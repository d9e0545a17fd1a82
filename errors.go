package goftp

import (
	"errors"
	"fmt"
	"net/textproto"
)

var (
	// ErrConnectFailed is returned when a session cannot be dialed or authenticated.
	ErrConnectFailed = errors.New("ftp connect failed")

	// ErrValidationFailed is returned when a session is alive but unhealthy.
	ErrValidationFailed = errors.New("ftp session validation failed")

	// ErrPoolExhausted is returned when every acquisition attempt failed.
	ErrPoolExhausted = errors.New("ftp pool exhausted")

	// ErrIOFailure marks a transfer, list or delete that failed at the protocol layer.
	ErrIOFailure = errors.New("ftp i/o failure")

	// ErrNotInitialized is returned by a Processor that has no pool.
	ErrNotInitialized = errors.New("ftp pool not initialized")

	// ErrTimeout is returned when the caller's context expires while acquiring.
	ErrTimeout = errors.New("ftp acquire timed out")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("ftp pool closed")

	// ErrNotFound is returned by a strict Download when no remote file matches.
	ErrNotFound = errors.New("remote file not found")
)

// PoolExhaustedError carries the last error seen by Acquire.
type PoolExhaustedError struct {
	Attempts int
	Err      error
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrPoolExhausted, e.Attempts, e.Err)
}

// Unwrap exposes both ErrPoolExhausted and the underlying cause to errors.Is.
func (e *PoolExhaustedError) Unwrap() []error {
	return []error{ErrPoolExhausted, e.Err}
}

// OpError describes a failed Processor operation.
type OpError struct {
	Op   string
	Path string
	Name string
	Err  error
}

func (e *OpError) Error() string {
	target := e.Path
	if e.Name != "" {
		target = joinRemote(e.Path, e.Name)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is makes an OpError match ErrIOFailure when it did not fail for a pool or
// precondition reason.
func (e *OpError) Is(target error) bool {
	if target != ErrIOFailure {
		return false
	}
	for _, other := range []error{ErrNotInitialized, ErrNotFound, ErrPoolExhausted, ErrPoolClosed, ErrTimeout} {
		if errors.Is(e.Err, other) {
			return false
		}
	}
	return true
}

// isReplyError reports whether err is a regular FTP reply (4xx/5xx) rather than
// a broken connection. Sessions that produced reply errors are still usable.
func isReplyError(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr)
}
