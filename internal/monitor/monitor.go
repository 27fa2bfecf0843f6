// Package monitor is the query and mutation surface shared by the HTTP API,
// the dashboard and the metrics exporter.
package monitor

import (
	"sort"

	"github.com/doridoridoriand/ipwatch/internal/state"
)

// Targets is the registry as seen by the monitor.
type Targets interface {
	List() map[string]string
	Add(address, name string) error
	Remove(address string) error
}

// Snapshotter exposes a copy of every status record.
type Snapshotter interface {
	Snapshot() map[string]state.Record
}

// Verifier checks the admin credential.
type Verifier interface {
	Verify(credential string) error
}

// StatusView is a consistent read of every registered target.
type StatusView struct {
	Status map[string]state.Record `json:"status"`
	Names  map[string]string       `json:"names"`

	// Offline lists registered addresses whose last probe failed, sorted.
	Offline []string `json:"offline"`
}

// Counts summarises a view.
type Counts struct {
	Total   int
	Online  int
	Offline int
	Pending int
}

// Monitor combines the registry, the status store and the credential check.
type Monitor struct {
	targets Targets
	store   Snapshotter
	guard   Verifier
}

// New returns a Monitor.
func New(targets Targets, store Snapshotter, guard Verifier) *Monitor {
	return &Monitor{targets: targets, store: store, guard: guard}
}

// Status returns the records of registered targets only; targets not yet
// probed appear in Names but not in Status.
func (m *Monitor) Status() StatusView {
	names := m.targets.List()
	records := m.store.Snapshot()

	view := StatusView{
		Status:  make(map[string]state.Record, len(names)),
		Names:   names,
		Offline: make([]string, 0),
	}
	for address := range names {
		rec, ok := records[address]
		if !ok {
			continue
		}
		view.Status[address] = rec
		if !rec.Online {
			view.Offline = append(view.Offline, address)
		}
	}
	sort.Strings(view.Offline)
	return view
}

// Targets returns a copy of the address -> name mapping.
func (m *Monitor) Targets() map[string]string {
	return m.targets.List()
}

// Add registers a target after checking credential.
func (m *Monitor) Add(address, name, credential string) error {
	if err := m.guard.Verify(credential); err != nil {
		return err
	}
	return m.targets.Add(address, name)
}

// Remove unregisters a target after checking credential.
func (m *Monitor) Remove(address, credential string) error {
	if err := m.guard.Verify(credential); err != nil {
		return err
	}
	return m.targets.Remove(address)
}

// Counts tallies targets by state.
func (v StatusView) Counts() Counts {
	c := Counts{Total: len(v.Names), Offline: len(v.Offline)}
	c.Online = len(v.Status) - c.Offline
	c.Pending = c.Total - len(v.Status)
	return c
}

// Addresses returns the registered addresses in sorted order.
func (v StatusView) Addresses() []string {
	out := make([]string, 0, len(v.Names))
	for address := range v.Names {
		out = append(out, address)
	}
	sort.Strings(out)
	return out
}
