package api

import (
	"errors"
	"fmt"
)

// TransportError is a network or HTTP failure on a pull request.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int // 0 when no response was received
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Op + " " + e.URL
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		msg += fmt.Sprintf(": HTTP %d: %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFound reports whether the server answered 404.
func (e *TransportError) NotFound() bool { return e.StatusCode == 404 }

// ErrOutOfRange is matched by errors.Is on every *OutOfRangeError.
var ErrOutOfRange = errors.New("page out of range")

// OutOfRangeError reports a page request beyond the available rows.
type OutOfRangeError struct {
	Page       int
	TotalPages int
	Total      int64
	// Counted is set when Total came from the server's row count. A bare
	// HTTP 416 leaves it false.
	Counted bool
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("page %d out of range (total pages %d)", e.Page, e.TotalPages)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// ErrInvalidArtifact is returned for artifact names outside the server whitelist.
var ErrInvalidArtifact = errors.New("invalid artifact name")
