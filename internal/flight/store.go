package flight

import "errors"

// ErrSealed is returned when appending to a store after ingestion has
// finished.
var ErrSealed = errors.New("flight: store is sealed")

// Store groups records by message type, preserving arrival order within
// each type. Once sealed it never changes again, which is what makes the
// analysis methods safe to call concurrently.
type Store struct {
	byType map[string][]Record
	types  []string
	total  int
	sealed bool
}

// NewStore returns an empty, unsealed store.
func NewStore() *Store {
	return &Store{byType: make(map[string][]Record)}
}

// Append adds rec to the sequence for its type.
func (s *Store) Append(rec Record) error {
	if s.sealed {
		return ErrSealed
	}
	if _, ok := s.byType[rec.Type]; !ok {
		s.types = append(s.types, rec.Type)
	}
	s.byType[rec.Type] = append(s.byType[rec.Type], rec)
	s.total++
	return nil
}

// Seal makes the store immutable.
func (s *Store) Seal() { s.sealed = true }

// Sealed reports whether ingestion has finished.
func (s *Store) Sealed() bool { return s.sealed }

// Records returns the full ordered sequence for msgType. Types that never
// appeared yield an empty sequence.
func (s *Store) Records(msgType string) []Record { return s.byType[msgType] }

// Count returns how many records of msgType arrived.
func (s *Store) Count(msgType string) int { return len(s.byType[msgType]) }

// Len returns the total number of stored records.
func (s *Store) Len() int { return s.total }

// Types returns the message types in first-seen order.
func (s *Store) Types() []string {
	out := make([]string, len(s.types))
	copy(out, s.types)
	return out
}

// Counts returns the per-type record counts.
func (s *Store) Counts() map[string]int {
	out := make(map[string]int, len(s.byType))
	for typ, recs := range s.byType {
		out[typ] = len(recs)
	}
	return out
}
