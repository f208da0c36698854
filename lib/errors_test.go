package lib

import (
	"io"
	"net"
	"os"
	"testing"

	"github.com/pkg/errors"
)

func TestErrorIsMatchesKind(t *testing.T) {
	testCases := []struct {
		err    error
		target error
		match  bool
	}{
		{err: newError(Timeout, "send", "no ack"), target: ErrTimeout, match: true},
		{err: newError(Timeout, "send", "no ack"), target: ErrChecksumMismatch, match: false},
		{err: errors.Wrap(newError(SequenceMismatch, "recv", "x"), "outer"), target: ErrSequenceMismatch, match: true},
		{err: wrapError(AllocationFailure, "pool", io.ErrShortBuffer), target: io.ErrShortBuffer, match: true},
		{err: io.EOF, target: ErrProtocolViolation, match: false},
	}
	for _, tc := range testCases {
		if got := errors.Is(tc.err, tc.target); got != tc.match {
			t.Errorf("errors.Is(%v, %v) = %t, expected %t", tc.err, tc.target, got, tc.match)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := wrapError(Timeout, "read", os.ErrDeadlineExceeded)
	expected := "microtcp read: timeout: " + os.ErrDeadlineExceeded.Error()
	if err.Error() != expected {
		t.Errorf("got %q, expected %q", err.Error(), expected)
	}

	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("timeout error should satisfy net.Error with Timeout() true")
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(os.ErrDeadlineExceeded) {
		t.Errorf("deadline exceeded should count as a timeout")
	}
	if isTimeout(io.EOF) {
		t.Errorf("EOF is not a timeout")
	}
}
