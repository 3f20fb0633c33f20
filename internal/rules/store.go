package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store holds the active rule set. At most one enabled rule of a kind may
// guard a column; ids are never reused, including ids of removed rules.
type Store struct {
	mu      sync.RWMutex
	rules   map[string]Rule
	retired map[string]struct{}
	columns map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{rules: map[string]Rule{}, retired: map[string]struct{}{}, columns: map[string]int{}}
}

// RecommendedID derives the stable id of a recommended rule for column and kind.
func RecommendedID(column string, kind Kind) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(column+"|"+string(kind))).String()
}

// Add validates and stores r, returning the stored rule (with its id).
//
// When r is enabled and an enabled rule of the same column and kind exists,
// a user_defined rule replaces a recommended one (whose id is retired); any
// other combination fails with ErrDuplicateRule and leaves the store unchanged.
func (s *Store) Add(r Rule) (Rule, error) {
	if r.Origin == "" {
		r.Origin = OriginUserDefined
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := s.rules[r.ID]; ok {
		return Rule{}, fmt.Errorf("%w: id %s already in use", ErrDuplicateRule, r.ID)
	}
	if _, ok := s.retired[r.ID]; ok {
		return Rule{}, fmt.Errorf("%w: id %s was retired", ErrDuplicateRule, r.ID)
	}
	if r.Enabled {
		if cur, ok := s.enabledFor(r.Column, r.Kind); ok {
			if r.Origin != OriginUserDefined || cur.Origin != OriginRecommended {
				return Rule{}, fmt.Errorf("%w: %s rule %s already guards %q", ErrDuplicateRule, cur.Kind, cur.ID, cur.Column)
			}
			s.drop(cur.ID)
		}
	}
	s.rules[r.ID] = r
	return r, nil
}

// Remove deletes a rule and retires its id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	s.drop(id)
	return nil
}

// SetEnabled toggles a rule. Enabling fails with ErrDuplicateRule when another
// enabled rule of the same kind guards the column.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if enabled && !r.Enabled {
		if cur, ok := s.enabledFor(r.Column, r.Kind); ok {
			return fmt.Errorf("%w: %s rule %s already guards %q", ErrDuplicateRule, cur.Kind, cur.ID, cur.Column)
		}
	}
	r.Enabled = enabled
	s.rules[id] = r
	return nil
}

// Get returns a rule by id.
func (s *Store) Get(id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return r, nil
}

// List returns every rule in column order.
func (s *Store) List() []Rule {
	return s.collect(func(Rule) bool { return true })
}

// ListEnabled returns enabled rules ordered by column ordinal, then kind.
// Rules on columns unknown to the store sort last, by column name.
func (s *Store) ListEnabled() []Rule {
	return s.collect(func(r Rule) bool { return r.Enabled })
}

// Len returns the number of stored rules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// SetColumns records the dataset's column order used by the list methods.
func (s *Store) SetColumns(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = make(map[string]int, len(names))
	for i, n := range names {
		s.columns[n] = i
	}
}

// Retired returns the retired ids, sorted.
func (s *Store) Retired() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.retired))
	for id := range s.retired {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Restore rebuilds a store from persisted rules and retired ids. Rules are
// added in order so the one-per-kind invariant is re-checked.
func Restore(rs []Rule, retired []string) (*Store, error) {
	s := NewStore()
	for _, id := range retired {
		s.retired[id] = struct{}{}
	}
	for _, r := range rs {
		if _, err := s.Add(r); err != nil {
			return nil, fmt.Errorf("restore rule %s: %w", r.ID, err)
		}
	}
	return s, nil
}

func (s *Store) enabledFor(column string, kind Kind) (Rule, bool) {
	for _, r := range s.rules {
		if r.Enabled && r.Column == column && r.Kind == kind {
			return r, true
		}
	}
	return Rule{}, false
}

func (s *Store) drop(id string) {
	delete(s.rules, id)
	s.retired[id] = struct{}{}
}

func (s *Store) collect(keep func(Rule) bool) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ai, aok := s.columns[a.Column]
		bi, bok := s.columns[b.Column]
		switch {
		case aok && bok && ai != bi:
			return ai < bi
		case aok != bok:
			return aok
		case !aok && a.Column != b.Column:
			return a.Column < b.Column
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
	return out
}
