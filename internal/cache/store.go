package cache

import "sync"

// Generation identifies an epoch of background-read validity for one key.
// Bumping the generation supersedes every fetch begun under an older one.
type Generation uint64

// Snapshot is an immutable copy of a cache entry captured before an
// optimistic mutation. An absent snapshot (Present == false) records that no
// entry existed, so restoring it deletes the entry.
//
// Values stored in the cache must be treated as immutable by callers: updates
// replace the whole value rather than mutating it in place, which is what
// makes the shallow copy held here sufficient for exact rollback.
type Snapshot struct {
	Value   any
	Present bool
}

// Store holds the client's view of server state. All operations are
// synchronous and guarded by a single mutex; an entry always holds the most
// recently settled value, never a torn intermediate state.
type Store struct {
	mu      sync.Mutex
	entries map[string]any
	gens    map[string]Generation
	logger  Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger injects a structured logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs an empty cache store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]any),
		gens:    make(map[string]Generation),
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current value for key. It has no side effects.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key.String()]
	return v, ok
}

// Set replaces the entry for key with value.
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = value
}

// Update replaces the entry for key with the result of fn applied to the
// previous value (nil when absent). fn runs under the store lock, so two
// updates of the same key can never interleave and lose writes.
func (s *Store) Update(key Key, fn func(prev any) any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	s.entries[k] = fn(s.entries[k])
}

// Invalidate drops the entry for key and supersedes any fetch in flight.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	delete(s.entries, k)
	s.gens[k]++
	s.logger.Debug("cache entry invalidated", "key", k)
}

// CancelInFlight supersedes every background fetch currently in flight for
// key. The request itself is not aborted; its result is discarded when it
// completes under a stale generation. Callers applying an optimistic write
// must call this before writing, otherwise a read issued earlier can resolve
// later and clobber the optimistic value with stale data.
func (s *Store) CancelInFlight(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[key.String()]++
}

// BeginFetch marks the start of a background read for key and returns the
// generation the read belongs to.
func (s *Store) BeginFetch(key Key) Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key.String()]
}

// CompleteFetch stores value for key if gen is still current. It returns
// false, leaving the entry untouched, when the fetch was superseded by an
// Invalidate or CancelInFlight issued after BeginFetch.
func (s *Store) CompleteFetch(key Key, gen Generation, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	if s.gens[k] != gen {
		s.logger.Debug("stale fetch discarded", "key", k)
		return false
	}
	s.entries[k] = value
	return true
}

// TakeSnapshot captures the current entry for key for later rollback.
func (s *Store) TakeSnapshot(key Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key.String()]
	return Snapshot{Value: v, Present: ok}
}

// Restore replaces the entry for key with the snapshot, deleting the entry
// when the snapshot recorded absence. The replacement is wholesale, never a
// merge.
func (s *Store) Restore(key Key, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	if !snap.Present {
		delete(s.entries, k)
		return
	}
	s.entries[k] = snap.Value
}

// Len reports the number of entries currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
