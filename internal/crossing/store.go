// Package crossing turns per-frame track positions into debounced directional
// line-crossing events.
package crossing

// PositionStore holds the last known horizontal center for every track ID seen
// so far. Entries are created on first sighting and overwritten on every later
// sighting; they are never expired, so a track ID reused by the tracker simply
// continues the old history.
type PositionStore struct {
	last map[int]float64
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{last: make(map[int]float64)}
}

// Get returns the last position recorded for id.
func (s *PositionStore) Get(id int) (float64, bool) {
	x, ok := s.last[id]
	return x, ok
}

// Set records x as the latest position of id.
func (s *PositionStore) Set(id int, x float64) {
	s.last[id] = x
}

// Len returns the number of tracked IDs.
func (s *PositionStore) Len() int {
	return len(s.last)
}

// Clear forgets all positions.
func (s *PositionStore) Clear() {
	clear(s.last)
}
