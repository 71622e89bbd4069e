package report

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore keeps the most recent outcomes in memory in front of a
// backing Store. Every Save is written through; Load falls back to the
// backing store on a miss and caches what it finds.
type LRUStore struct {
	recent *lru.Cache[string, *Outcome]
	back   Store
}

// NewLRUStore returns a store caching up to size outcomes. Sizes below 1
// are raised to 1.
func NewLRUStore(size int, back Store) *LRUStore {
	recent, err := lru.New[string, *Outcome](max(size, 1))
	if err != nil {
		// lru.New fails only for a non-positive size.
		panic(err)
	}
	return &LRUStore{recent: recent, back: back}
}

func (s *LRUStore) Save(outcome *Outcome) error {
	s.recent.Add(outcome.ID, outcome)
	return s.back.Save(outcome)
}

func (s *LRUStore) Load(runID string) (*Outcome, error) {
	if o, ok := s.recent.Get(runID); ok {
		return o, nil
	}
	o, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}
	s.recent.Add(runID, o)
	return o, nil
}

// Lookup loads a run from s and selects the entries matching query, as
// ByCommand does.
func Lookup(s Store, runID, query string) (*Outcome, []Entry, error) {
	o, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	return o, ByCommand(o, query), nil
}
