package lib

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrorKind classifies protocol failures.
type ErrorKind int

const (
	ChecksumMismatch ErrorKind = iota + 1
	SequenceMismatch
	Timeout
	AllocationFailure
	ProtocolViolation
)

func (k ErrorKind) String() string {
	switch k {
	case ChecksumMismatch:
		return "checksum mismatch"
	case SequenceMismatch:
		return "sequence mismatch"
	case Timeout:
		return "timeout"
	case AllocationFailure:
		return "allocation failure"
	case ProtocolViolation:
		return "protocol violation"
	}
	return "unknown error"
}

// Error is returned by connection operations. Kind tells callers what went
// wrong; Err carries the underlying cause when there is one.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

var (
	ErrChecksumMismatch  = &Error{Kind: ChecksumMismatch}
	ErrSequenceMismatch  = &Error{Kind: SequenceMismatch}
	ErrTimeout           = &Error{Kind: Timeout}
	ErrAllocationFailure = &Error{Kind: AllocationFailure}
	ErrProtocolViolation = &Error{Kind: ProtocolViolation}
)

var _ net.Error = (*Error)(nil)

func newError(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	s := "microtcp"
	if e.Op != "" {
		s += " " + e.Op
	}
	s += ": " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works
// regardless of Op and Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Timeout() bool {
	return e.Kind == Timeout
}

func (e *Error) Temporary() bool {
	return e.Kind == Timeout || e.Kind == SequenceMismatch || e.Kind == ChecksumMismatch
}

// isTimeout reports whether err is a read deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
