package compute

import (
	"sync"
	"sync/atomic"
)

// Store holds the result entries of one Engine. Implementations must make
// Claim atomic: for a given key exactly one caller ever sees owner == true.
type Store interface {
	// Claim returns the entry for key, creating it if needed. owner reports
	// whether this call created it and is therefore responsible for
	// evaluating it.
	Claim(key Key) (entry *Entry, owner bool)
	// Lookup returns the entry for key if one exists.
	Lookup(key Key) (*Entry, bool)
	// Len returns the number of entries.
	Len() int
}

// Entry is the result slot of one key. It is finalized exactly once.
type Entry struct {
	key   Key
	state atomic.Int32
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewEntry creates an unfinalized entry for key.
func NewEntry(key Key) *Entry {
	return &Entry{key: key, done: make(chan struct{})}
}

// Key returns the key the entry belongs to.
func (e *Entry) Key() Key { return e.key }

// Done is closed once the entry is finalized.
func (e *Entry) Done() <-chan struct{} { return e.done }

// State returns the current evaluation state.
func (e *Entry) State() State { return State(e.state.Load()) }

// Result returns the finalized value and error. It must only be called
// after Done is closed.
func (e *Entry) Result() (any, error) { return e.value, e.err }

// Finalized reports whether the result is recorded.
func (e *Entry) Finalized() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *Entry) setState(s State) { e.state.Store(int32(s)) }

// finalize records the result. Later calls are ignored.
func (e *Entry) finalize(value any, err error) bool {
	first := false
	e.once.Do(func() {
		e.value, e.err = value, err
		e.setState(StateFinalized)
		close(e.done)
		first = true
	})
	return first
}

// MemoryStore is a Store backed by a mutex-guarded map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]*Entry)}
}

func (s *MemoryStore) Claim(key Key) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e, false
	}
	e := NewEntry(key)
	s.entries[key] = e
	return e, true
}

func (s *MemoryStore) Lookup(key Key) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
