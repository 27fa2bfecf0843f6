package ping

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a single probe when no timeout is configured.
const DefaultTimeout = 2 * time.Second

var (
	// ErrTimeout reports that no echo reply arrived before the deadline.
	ErrTimeout = errors.New("ping timeout")
	// ErrNoReply reports that the probe completed without a reply.
	ErrNoReply = errors.New("no echo reply")
)

// Outcome classifies a probe for status bookkeeping.
type Outcome int

const (
	OutcomeUnreachable Outcome = iota
	OutcomeReachable
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReachable:
		return "reachable"
	case OutcomeErrored:
		return "errored"
	default:
		return "unreachable"
	}
}

// Result captures a single ping result.
type Result struct {
	RTT     time.Duration
	Success bool
	Error   error
}

// Outcome reports reachability only when a strictly positive RTT was measured.
// Timeouts and missing replies are unreachable; any other error is errored.
func (r Result) Outcome() Outcome {
	if r.Success && r.RTT > 0 {
		return OutcomeReachable
	}
	if r.Error == nil ||
		errors.Is(r.Error, ErrTimeout) ||
		errors.Is(r.Error, ErrNoReply) ||
		errors.Is(r.Error, context.DeadlineExceeded) {
		return OutcomeUnreachable
	}
	return OutcomeErrored
}

// Pinger sends a single ping and returns the result.
type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) Result
}

// New returns the default pinger chain: raw ICMP, then unprivileged datagram
// ICMP, then the system ping command.
func New() Pinger {
	return NewFallbackPinger(
		NewICMPPinger(true),
		NewFallbackPinger(NewICMPPinger(false), NewExternalPinger()),
	)
}
