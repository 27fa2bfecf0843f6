package state

import (
	"sync"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/ping"
)

// StoreImpl is a thread-safe in-memory state store keyed by address.
type StoreImpl struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore creates an empty store.
func NewStore() *StoreImpl {
	return &StoreImpl{records: make(map[string]Record)}
}

// Record computes the next record for address from its previous one and
// stores it. The whole read-modify-write happens under the write lock.
func (s *StoreImpl) Record(address string, result ping.Result, now time.Time) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.records[address]
	next := Next(prev, known, result, now)
	s.records[address] = next
	return next
}

// Get returns a copy of the record for address.
func (s *StoreImpl) Get(address string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[address]
	return record, ok
}

// Snapshot returns a point-in-time copy of all records.
func (s *StoreImpl) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record, len(s.records))
	for address, record := range s.records {
		out[address] = record
	}
	return out
}

// Remove drops the record for address. Unknown addresses are ignored.
func (s *StoreImpl) Remove(address string) {
	s.mu.Lock()
	delete(s.records, address)
	s.mu.Unlock()
}

// Next applies one probe result to the previous record. An address that has
// never been recorded is treated as previously online.
//
// A target whose very first probe fails therefore gets LastOnlineAt = now
// although it was never seen online.
func Next(prev Record, known bool, result ping.Result, now time.Time) Record {
	now = now.Truncate(time.Second)
	next := Record{LastCheckedAt: now}

	if result.Outcome() == ping.OutcomeReachable {
		next.Online = true
		next.ResponseTime = result.RTT
		return next
	}

	if !known || prev.Online {
		// online -> offline: the previous check was the last one seen online
		next.LastOnlineAt = prev.LastCheckedAt
		if next.LastOnlineAt.IsZero() {
			next.LastOnlineAt = now
		}
		return next
	}

	next.LastOnlineAt = prev.LastOnlineAt
	if next.LastOnlineAt.IsZero() {
		next.LastOnlineAt = prev.LastCheckedAt
	}
	return next
}

// Transitioned reports whether next changed the online classification of prev.
func Transitioned(prev Record, known bool, next Record) bool {
	if !known {
		return !next.Online
	}
	return prev.Online != next.Online
}
