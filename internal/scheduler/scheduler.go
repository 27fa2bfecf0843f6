package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/config"
	"github.com/doridoridoriand/ipwatch/internal/log"
	"github.com/doridoridoriand/ipwatch/internal/ping"
	"github.com/doridoridoriand/ipwatch/internal/state"
)

const (
	defaultInterval = 5 * time.Second
)

// Scheduler drives the periodic probe cycle.
type Scheduler interface {
	Run(ctx context.Context) error
	UpdateConfig(global config.GlobalOptions)
	Stop()
}

// Source supplies the addresses to probe. Registry satisfies it.
type Source interface {
	Addresses() []string
	Name(address string) (string, bool)
}

// CycleStats describes the most recent completed cycle.
type CycleStats struct {
	Cycles       uint64
	LastStarted  time.Time
	LastDuration time.Duration
	LastProbed   int
}

// Impl runs one cycle over a snapshot of the source, then sleeps for the
// interval. Sleeping starts after the cycle ends, so the effective period is
// interval plus cycle duration.
//
// A cycle takes at most ceil(targets / MaxConcurrency) * Timeout, since every
// probe is bounded by a context deadline of Timeout.
type Impl struct {
	mu     sync.RWMutex
	cfg    config.GlobalOptions
	source Source
	pinger ping.Pinger
	state  state.Store
	logger *log.Logger
	now    func() time.Time
	cancel context.CancelFunc
	wake   chan struct{}

	statsMu sync.RWMutex
	stats   CycleStats
}

// NewScheduler constructs a scheduler instance.
func NewScheduler(global config.GlobalOptions, source Source, pinger ping.Pinger, store state.Store, logger *log.Logger) *Impl {
	return &Impl{
		cfg:    global,
		source: source,
		pinger: pinger,
		state:  store,
		logger: logger,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

// Run probes immediately, then keeps cycling until ctx is cancelled or Stop
// is called.
func (s *Impl) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	for {
		s.RunCycle(runCtx)
		if runCtx.Err() != nil {
			return runCtx.Err()
		}

		interval, _, _ := s.currentTiming()
		timer := time.NewTimer(interval)
		select {
		case <-runCtx.Done():
			timer.Stop()
			return runCtx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// UpdateConfig applies new timing options. The running wait is cut short so
// the next cycle picks them up.
func (s *Impl) UpdateConfig(global config.GlobalOptions) {
	s.mu.Lock()
	s.cfg = global
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop cancels a running loop.
func (s *Impl) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stats returns counters for the last completed cycle.
func (s *Impl) Stats() CycleStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// RunCycle probes every address in one snapshot of the source and records
// each outcome as soon as it arrives.
func (s *Impl) RunCycle(ctx context.Context) {
	started := s.now()
	addresses := s.source.Addresses()
	_, timeout, workers := s.currentTiming()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	probed := 0
	for _, addr := range addresses {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		probed++
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			defer func() { <-sem }()
			s.probe(ctx, addr, timeout)
		}(addr)
	}
	wg.Wait()

	s.statsMu.Lock()
	s.stats.Cycles++
	s.stats.LastStarted = started
	s.stats.LastDuration = s.now().Sub(started)
	s.stats.LastProbed = probed
	s.statsMu.Unlock()
}

func (s *Impl) probe(ctx context.Context, addr string, timeout time.Duration) {
	result := s.pingOnce(ctx, addr, timeout)
	if ctx.Err() != nil {
		// Shutting down; an aborted probe says nothing about the target.
		return
	}

	prev, known := s.state.Get(addr)
	next := s.state.Record(addr, result, s.now())

	name, registered := s.source.Name(addr)
	if !registered {
		// Removed while the probe was in flight.
		s.state.Remove(addr)
		return
	}

	s.logger.LogProbeResult(addr, result.Outcome().String(), result.RTT, result.Error)
	if state.Transitioned(prev, known, next) {
		s.logger.LogTransition(addr, name, next.Online, next.LastOnlineAt)
	}
}

func (s *Impl) pingOnce(ctx context.Context, addr string, timeout time.Duration) (result ping.Result) {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			result = ping.Result{Error: fmt.Errorf("probe panic: %v", r)}
		}
	}()
	return s.pinger.Ping(pingCtx, addr, timeout)
}

func (s *Impl) currentTiming() (interval, timeout time.Duration, workers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	interval = s.cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout = s.cfg.Timeout
	if timeout <= 0 {
		timeout = ping.DefaultTimeout
	}
	return interval, timeout, maxConcurrency(s.cfg.MaxConcurrency)
}

func maxConcurrency(value int) int {
	if value <= 0 {
		return 1
	}
	return value
}
