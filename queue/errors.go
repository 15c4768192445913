package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// ErrJobTerminal is returned when a transition targets a job that already
// completed or failed.
var ErrJobTerminal = errors.New("job already in a terminal state")

// ConnectivityError means the backend could not be reached: absent, refused,
// reset, closed, or timed out. Callers may fall back to local execution.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("queue %s: backend unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// DomainError is any other backend failure: malformed job data, a rejected
// transition, a script error.
type DomainError struct {
	Op  string
	Err error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is (or wraps) a *ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// classify wraps err as a ConnectivityError or DomainError by its type.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectivityError
	var de *DomainError
	if errors.As(err, &ce) || errors.As(err, &de) {
		return err
	}
	if isConnectivity(err) {
		return &ConnectivityError{Op: op, Err: err}
	}
	return &DomainError{Op: op, Err: err}
}

func isConnectivity(err error) bool {
	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
