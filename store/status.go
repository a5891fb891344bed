package store

import (
	"context"
	"errors"
	"net"
)

// Status classifies the outcome of a store call.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusKeyNotFound
	StatusKeyExists
	StatusTimeout
	StatusCanceled
	StatusUnavailable
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusKeyNotFound:
		return "key_not_found"
	case StatusKeyExists:
		return "key_exists"
	case StatusTimeout:
		return "timeout"
	case StatusCanceled:
		return "canceled"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "failure"
	}
}

// StatusOf maps an error returned by a Store to a Status. nil is StatusSuccess.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return StatusKeyNotFound
	case errors.Is(err, ErrKeyExists):
		return StatusKeyExists
	case errors.Is(err, ErrUnavailable):
		return StatusUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return StatusTimeout
	}
	return StatusFailure
}
