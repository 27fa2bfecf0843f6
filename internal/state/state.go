package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/ping"
)

const (
	// TimeLayout renders timestamps at second precision.
	TimeLayout = "2006-01-02 15:04:05"
	// NotApplicable replaces the response time of an unreachable target.
	NotApplicable = "N/A"
)

// Record is the latest reachability state of one address.
// A zero LastOnlineAt means the field is absent.
type Record struct {
	Online        bool
	ResponseTime  time.Duration
	LastCheckedAt time.Time
	LastOnlineAt  time.Time
}

// ResponseTimeLabel formats the response time in milliseconds with two
// decimals, or NotApplicable.
func (r Record) ResponseTimeLabel() string {
	if !r.Online || r.ResponseTime <= 0 {
		return NotApplicable
	}
	return fmt.Sprintf("%.2f", float64(r.ResponseTime)/float64(time.Millisecond))
}

// HasLastOnline reports whether LastOnlineAt is set.
func (r Record) HasLastOnline() bool {
	return !r.LastOnlineAt.IsZero()
}

type recordJSON struct {
	Online       bool    `json:"online"`
	ResponseTime string  `json:"response_time"`
	LastCheck    string  `json:"last_check"`
	LastOnline   *string `json:"last_online"`
}

// MarshalJSON encodes the record in the dashboard wire format.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Online:       r.Online,
		ResponseTime: r.ResponseTimeLabel(),
		LastCheck:    r.LastCheckedAt.Format(TimeLayout),
	}
	if r.HasLastOnline() {
		lastOnline := r.LastOnlineAt.Format(TimeLayout)
		out.LastOnline = &lastOnline
	}
	return json.Marshal(out)
}

// Store defines operations for tracking target state.
type Store interface {
	Record(address string, result ping.Result, now time.Time) Record
	Get(address string) (Record, bool)
	Snapshot() map[string]Record
	Remove(address string)
}
