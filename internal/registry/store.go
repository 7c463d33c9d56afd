package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coffersTech/redlogic/internal/rules"
)

// Summary describes a registered rule set.
type Summary struct {
	Name      string   `json:"name"`
	Source    string   `json:"source,omitempty"`
	Rules     int      `json:"rules"`
	Fields    []string `json:"fields"`
	LoadedAt  int64    `json:"loaded_at"`
	UpdatedAt int64    `json:"updated_at"`
}

type entry struct {
	ruleSet   *rules.RuleSet
	loadedAt  int64
	updatedAt int64
}

// Store holds rule sets by name.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates a new registry store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// Put adds a rule set or replaces the one with the same name. The first
// load time is kept across replacements.
func (s *Store) Put(rs *rules.RuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	e := &entry{ruleSet: rs.Clone(), loadedAt: now, updatedAt: now}
	if existing, ok := s.entries[rs.Name]; ok {
		e.loadedAt = existing.loadedAt
	}
	s.entries[rs.Name] = e
}

// Get returns a copy of the named rule set.
func (s *Store) Get(name string) (*rules.RuleSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return e.ruleSet.Clone(), true
}

// List returns summaries of all rule sets sorted by name.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Summary, 0, len(s.entries))
	for name, e := range s.entries {
		list = append(list, Summary{
			Name:      name,
			Source:    e.ruleSet.Source,
			Rules:     len(e.ruleSet.Filters),
			Fields:    e.ruleSet.Fields(),
			LoadedAt:  e.loadedAt,
			UpdatedAt: e.updatedAt,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Delete removes a rule set and reports whether it existed.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	delete(s.entries, name)
	return ok
}

// Len returns the number of rule sets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PruneOlderThan removes rule sets not updated within maxAge.
func (s *Store) PruneOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().Unix()
	count := 0
	maxAgeSec := int64(maxAge.Seconds())

	for name, e := range s.entries {
		if now-e.updatedAt > maxAgeSec {
			delete(s.entries, name)
			count++
		}
	}
	return count
}

// StartCleanupLoop prunes stale rule sets every interval until ctx is done.
func (s *Store) StartCleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.PruneOlderThan(maxAge)
			case <-ctx.Done():
				return
			}
		}
	}()
}
