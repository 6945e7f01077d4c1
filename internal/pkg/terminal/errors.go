package terminal

import (
	"errors"
	"net"
)

// The link error taxonomy. The orchestrator's retry policy branches on
// these: Unreachable and Protocol are permanent for a run, Busy and
// Timeout are retried with backoff.
var (
	ErrUnreachable = errors.New("device unreachable")
	ErrProtocol    = errors.New("device protocol error")
	ErrBusy        = errors.New("device session already open")
	ErrTimeout     = errors.New("device operation timed out")
)

// classifyDialError maps a TCP probe failure onto the taxonomy.
func classifyDialError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnreachable
}

// Retryable reports whether a link error is worth retrying within the
// same run.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrTimeout)
}
