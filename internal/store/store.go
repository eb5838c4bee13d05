package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FormatVersion is the only on-disk format this package reads and writes
const FormatVersion = 1

// DefaultDebounce is how long Schedule waits before writing
const DefaultDebounce = 300 * time.Millisecond

// Definition is the persisted part of a supervised process
type Definition struct {
	ID         string   `json:"id"`
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	BeforeStop string   `json:"beforeStop,omitempty"`
	AfterStop  string   `json:"afterStop,omitempty"`
}

type file struct {
	Version     int          `json:"version"`
	Definitions []Definition `json:"definitions"`
}

// SnapshotFunc returns the definitions to write at the time the save fires
type SnapshotFunc func() []Definition

// Store keeps process definitions in a JSON file. Writes requested through
// Schedule are debounced so bursts of changes produce a single write.
type Store struct {
	path  string
	delay time.Duration

	// saveMu serializes snapshot and write so an older snapshot never
	// lands after a newer one
	saveMu sync.Mutex

	mu       sync.Mutex
	timer    *time.Timer
	armed    uint64
	snapshot SnapshotFunc
	saves    int
}

// New creates a store backed by path
func New(path string, delay time.Duration) *Store {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Store{path: path, delay: delay}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads definitions from disk. A missing file yields no definitions.
// Unreadable or corrupt files are logged and treated as empty.
func (s *Store) Load() []Definition {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[store] failed to read %s: %v", s.path, err)
		}
		return []Definition{}
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("[store] failed to parse %s: %v", s.path, err)
		return []Definition{}
	}

	defs := make([]Definition, 0, len(f.Definitions))
	for _, d := range f.Definitions {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.Args == nil {
			d.Args = []string{}
		}
		defs = append(defs, d)
	}
	return defs
}

// Save writes the definitions immediately
func (s *Store) Save(defs []Definition) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.write(defs)
}

func (s *Store) write(defs []Definition) error {
	if defs == nil {
		defs = []Definition{}
	}
	data, err := json.MarshalIndent(file{Version: FormatVersion, Definitions: defs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode definitions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	// write to a temp file and rename so a crash never leaves a torn file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store: %w", err)
	}

	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return nil
}

// Schedule arms the debounce timer, cancelling any pending one. When the
// timer fires, snapshot is called and its result is written.
func (s *Store) Schedule(snapshot SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snapshot
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed++
	gen := s.armed
	s.timer = time.AfterFunc(s.delay, func() {
		s.fire(gen)
	})
}

func (s *Store) fire(gen uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.timer == nil || s.armed != gen {
		// re-armed after this timer was already running
		s.mu.Unlock()
		return
	}
	s.timer = nil
	snapshot := s.snapshot
	s.mu.Unlock()

	if snapshot == nil {
		return
	}
	if err := s.write(snapshot()); err != nil {
		log.Printf("[store] save failed: %v", err)
	}
}

// Pending reports whether a debounced save is waiting to fire
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Flush performs a pending debounced save right away
func (s *Store) Flush() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.timer == nil {
		s.mu.Unlock()
		return nil
	}
	s.timer.Stop()
	s.timer = nil
	snapshot := s.snapshot
	s.mu.Unlock()

	if snapshot == nil {
		return nil
	}
	return s.write(snapshot())
}

// Saves returns the number of completed writes
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
