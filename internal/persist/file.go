// Package persist stores the monitored target list as a JSON file.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPath is the file used when no data file is configured.
const DefaultPath = "monitored_ips.json"

// FileStore loads and saves an address -> name mapping. Writes go to a
// temporary file that is renamed over the target, so readers never see a
// partially written file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the mapping. A missing file yields an error wrapping
// os.ErrNotExist.
func (f *FileStore) Load() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	targets, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse targets %s: %w", f.path, err)
	}
	return targets, nil
}

// Save replaces the file with targets.
func (f *FileStore) Save(targets map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(targets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure data directory: %w", err)
		}
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", f.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp targets: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace targets file: %w", err)
	}
	return nil
}

// Decode accepts either a JSON object of address -> name or the legacy JSON
// array of addresses, which is converted to "Server N" names by position.
func Decode(data []byte) (map[string]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty targets file")
	}

	if trimmed[0] == '[' {
		var addresses []string
		if err := json.Unmarshal(trimmed, &addresses); err != nil {
			return nil, err
		}
		return FromList(addresses), nil
	}

	var targets map[string]string
	if err := json.Unmarshal(trimmed, &targets); err != nil {
		return nil, err
	}
	if targets == nil {
		return nil, fmt.Errorf("targets file holds null")
	}
	return targets, nil
}

// FromList assigns positional placeholder names. A repeated address keeps the
// name of its last position.
func FromList(addresses []string) map[string]string {
	targets := make(map[string]string, len(addresses))
	for i, address := range addresses {
		targets[address] = PlaceholderName(i + 1)
	}
	return targets
}

// PlaceholderName is the generated display name for position n (1-based).
func PlaceholderName(n int) string {
	return fmt.Sprintf("Server %d", n)
}
