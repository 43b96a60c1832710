package report

import lru "github.com/hashicorp/golang-lru/v2"

// LRUStore keeps recent runs in memory and delegates to a backing Store
// on miss. Cached runs can also be loaded by their agent session id.
type LRUStore struct {
	back     Store
	runs     *lru.Cache[string, *Run]
	sessions *lru.Cache[string, string] // session id -> run id
}

// NewLRUStore creates a cache holding up to size runs. Sizes below 1
// are raised to 1.
func NewLRUStore(size int, back Store) *LRUStore {
	if size < 1 {
		size = 1
	}
	s := &LRUStore{back: back}
	// lru.New only errors on non-positive sizes, guarded above.
	s.sessions, _ = lru.New[string, string](size)
	s.runs, _ = lru.NewWithEvict(size, s.forgetSession)
	return s
}

// Save caches the run and delegates to the backing store.
func (s *LRUStore) Save(run *Run) error {
	s.add(run)
	return s.back.Save(run)
}

// Load returns the run with the given run id, or the cached run whose
// session id matches key. Misses are loaded from the backing store and
// cached.
func (s *LRUStore) Load(key string) (*Run, error) {
	if run, ok := s.runs.Get(key); ok {
		return run, nil
	}
	id := key
	if runID, ok := s.sessions.Get(key); ok {
		id = runID
		if run, ok := s.runs.Get(id); ok {
			return run, nil
		}
	}

	run, err := s.back.Load(id)
	if err != nil {
		return nil, err
	}
	s.add(run)
	return run, nil
}

// Len returns the number of cached runs.
func (s *LRUStore) Len() int {
	return s.runs.Len()
}

func (s *LRUStore) add(run *Run) {
	s.runs.Add(run.ID, run)
	if run.SessionID != "" {
		s.sessions.Add(run.SessionID, run.ID)
	}
}

// forgetSession drops the session index entry of an evicted run, unless
// a newer run of the same session has taken it over.
func (s *LRUStore) forgetSession(runID string, run *Run) {
	if run.SessionID == "" {
		return
	}
	if id, ok := s.sessions.Peek(run.SessionID); ok && id == runID {
		s.sessions.Remove(run.SessionID)
	}
}
