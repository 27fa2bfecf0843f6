// Package registry holds the set of monitored addresses and their display
// names.
package registry

import (
	"errors"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/doridoridoriand/ipwatch/internal/log"
	"github.com/doridoridoriand/ipwatch/internal/persist"
)

var (
	ErrInvalidAddress = errors.New("invalid IP format")
	ErrDuplicate      = errors.New("IP already exists")
	ErrNotFound       = errors.New("IP not found")
)

// Persister loads and saves the full address -> name mapping.
type Persister interface {
	Load() (map[string]string, error)
	Save(targets map[string]string) error
}

// Evictor drops per-address state when a target is removed.
type Evictor interface {
	Remove(address string)
}

// DefaultTargets seeds an empty installation.
func DefaultTargets() map[string]string {
	return map[string]string{
		"8.8.8.8": "Google DNS",
		"1.1.1.1": "Cloudflare DNS",
	}
}

// Registry is a concurrent address -> name map. Add and Remove are serialized
// with each other including the save that follows them; readers only contend
// on the map lock, which is never held across disk I/O.
type Registry struct {
	mutate sync.Mutex

	mu      sync.RWMutex
	targets map[string]string

	persister Persister
	evictor   Evictor
	logger    *log.Logger
}

// New returns a registry holding targets. persister and evictor may be nil.
func New(targets map[string]string, persister Persister, evictor Evictor, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	copied := make(map[string]string, len(targets))
	for address, name := range targets {
		copied[address] = name
	}
	return &Registry{
		targets:   copied,
		persister: persister,
		evictor:   evictor,
		logger:    logger,
	}
}

// Load builds the registry from persister, falling back to DefaultTargets
// when nothing usable is stored. It never fails.
func Load(persister Persister, evictor Evictor, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	targets := loadTargets(persister, logger)
	for address := range targets {
		if !ValidateAddress(address) {
			logger.Warn("stored target has invalid address", map[string]interface{}{"address": address})
		}
	}
	return New(targets, persister, evictor, logger)
}

func loadTargets(persister Persister, logger *log.Logger) map[string]string {
	if persister == nil {
		return DefaultTargets()
	}
	targets, err := persister.Load()
	switch {
	case err == nil:
		logger.Info("targets loaded", map[string]interface{}{"count": len(targets)})
		return targets
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no stored targets, using defaults", nil)
	default:
		logger.LogError("registry", err, map[string]interface{}{"action": "load"})
	}
	return DefaultTargets()
}

// List returns a point-in-time copy of the mapping.
func (r *Registry) List() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

// Addresses returns the registered addresses in sorted order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	addresses := make([]string, 0, len(r.targets))
	for address := range r.targets {
		addresses = append(addresses, address)
	}
	r.mu.RUnlock()
	sort.Strings(addresses)
	return addresses
}

// Name returns the display name for address.
func (r *Registry) Name(address string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.targets[address]
	return name, ok
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// Add registers address. An empty name is replaced by a "Server N"
// placeholder, N being the registry size after the insert, or the next
// number after it that no target uses yet.
func (r *Registry) Add(address, name string) error {
	if !ValidateAddress(address) {
		return ErrInvalidAddress
	}

	r.mutate.Lock()
	defer r.mutate.Unlock()

	r.mu.Lock()
	if _, ok := r.targets[address]; ok {
		r.mu.Unlock()
		return ErrDuplicate
	}
	if name == "" {
		name = r.placeholderLocked()
	}
	r.targets[address] = name
	snapshot := r.copyLocked()
	r.mu.Unlock()

	r.logger.Info("target added", map[string]interface{}{"address": address, "name": name})
	r.save(snapshot)
	return nil
}

// Remove unregisters address and evicts its status before returning.
func (r *Registry) Remove(address string) error {
	r.mutate.Lock()
	defer r.mutate.Unlock()

	r.mu.Lock()
	name, ok := r.targets[address]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.targets, address)
	snapshot := r.copyLocked()
	r.mu.Unlock()

	if r.evictor != nil {
		r.evictor.Remove(address)
	}
	r.logger.Info("target removed", map[string]interface{}{"address": address, "name": name})
	r.save(snapshot)
	return nil
}

// save is called with mutate held, so saves land in mutation order.
func (r *Registry) save(snapshot map[string]string) {
	if r.persister == nil {
		return
	}
	if err := r.persister.Save(snapshot); err != nil {
		r.logger.LogError("registry", err, map[string]interface{}{"action": "save", "count": len(snapshot)})
	}
}

func (r *Registry) placeholderLocked() string {
	used := make(map[string]struct{}, len(r.targets))
	for _, name := range r.targets {
		used[name] = struct{}{}
	}
	for n := len(r.targets) + 1; ; n++ {
		name := persist.PlaceholderName(n)
		if _, ok := used[name]; !ok {
			return name
		}
	}
}

func (r *Registry) copyLocked() map[string]string {
	out := make(map[string]string, len(r.targets))
	for address, name := range r.targets {
		out[address] = name
	}
	return out
}

// ValidateAddress reports whether address is a dotted quad: four segments of
// one to three decimal digits, each between 0 and 255.
func ValidateAddress(address string) bool {
	parts := strings.Split(address, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 || !isDigits(part) {
			return false
		}
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
