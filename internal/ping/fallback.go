package ping

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"
)

// FallbackPinger delegates to primary, then secondary when the primary is not
// permitted to open its socket. Once a permission error has been seen the
// primary is skipped for the rest of the process lifetime.
type FallbackPinger struct {
	primary   Pinger
	secondary Pinger

	mu     sync.Mutex
	denied bool
}

// NewFallbackPinger wraps primary with a secondary fallback.
func NewFallbackPinger(primary, secondary Pinger) *FallbackPinger {
	return &FallbackPinger{primary: primary, secondary: secondary}
}

// Ping uses the primary pinger and falls back on permission-related errors.
func (p *FallbackPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if p.primaryDenied() {
		return p.secondary.Ping(ctx, addr, timeout)
	}
	result := p.primary.Ping(ctx, addr, timeout)
	if result.Success || !isPermissionError(result.Error) {
		return result
	}
	p.markDenied()
	return p.secondary.Ping(ctx, addr, timeout)
}

func (p *FallbackPinger) primaryDenied() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.denied
}

func (p *FallbackPinger) markDenied() {
	p.mu.Lock()
	p.denied = true
	p.mu.Unlock()
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}
